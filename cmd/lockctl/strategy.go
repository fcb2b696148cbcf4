package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgebay/buildlock/internal/modeselect"
)

var (
	strategyArtifactDir string
	strategyBuildDir    string
	strategyUnitCount   int
	strategyConfigPath  string
	strategyJSON        bool
)

type strategyResult struct {
	Mode     string   `json:"mode"`
	Warnings []string `json:"warnings,omitempty"`
}

func newStrategyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Print the locking mode a build would select for the given directories",
		Long: `strategy runs the same mode-selection algorithm a build would run
before compiling anything: network-mount detection, then a
file-descriptor-headroom check against the requested unit count.

Examples:
  lockctl strategy --artifact-dir ./target --build-dir ./target/debug --units 400
  lockctl strategy --artifact-dir ./target --build-dir ./target/debug --units 400 --json`,
		RunE: runStrategy,
	}

	cmd.Flags().StringVar(&strategyArtifactDir, "artifact-dir", "", "artifact output directory (required)")
	cmd.Flags().StringVar(&strategyBuildDir, "build-dir", "", "build scratch directory (required)")
	cmd.Flags().IntVar(&strategyUnitCount, "units", 0, "number of build units in the plan (required)")
	cmd.Flags().StringVar(&strategyConfigPath, "config", "", "path to a mode-selection TOML config")
	cmd.Flags().BoolVar(&strategyJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("artifact-dir")
	_ = cmd.MarkFlagRequired("build-dir")
	_ = cmd.MarkFlagRequired("units")

	return cmd
}

func runStrategy(cmd *cobra.Command, args []string) error {
	cfg := modeselect.Config{}
	if strategyConfigPath != "" {
		var err error
		cfg, err = modeselect.LoadConfig(strategyConfigPath)
		if err != nil {
			return err
		}
	}

	strat, err := modeselect.DetermineStrategy(strategyArtifactDir, strategyBuildDir, strategyUnitCount, cfg, modeselect.StatfsChecker{})
	if err != nil {
		return err
	}

	if strategyJSON {
		out := strategyResult{Mode: strat.Mode.String()}
		for _, w := range strat.Warnings {
			out.Warnings = append(out.Warnings, w.Reason)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("mode: %s\n", strat.Mode)
	for _, w := range strat.Warnings {
		fmt.Printf("warning: %s\n", w.Reason)
	}
	return nil
}
