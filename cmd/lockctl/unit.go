package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgebay/buildlock/internal/interner"
	"github.com/forgebay/buildlock/internal/locklayout"
	"github.com/forgebay/buildlock/internal/unitlock"
)

var (
	unitHoldDir   string
	unitHoldState string
)

func newUnitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Manually drive one unit's lock state for diagnostics",
	}
	cmd.AddCommand(newUnitHoldCmd())
	return cmd
}

func newUnitHoldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hold",
		Short: "Walk a unit's lock to a state and hold it until interrupted",
		Long: `hold drives a single real UnitLock through the producer or consumer
chain up to --state and blocks holding it there until interrupted (Ctrl-C),
so a second lockctl invocation -- or a real build -- can be used to observe
what it contends with.

States: fingerprint, rmeta, rlib, partial, full`,
		RunE: runUnitHold,
	}
	cmd.Flags().StringVar(&unitHoldDir, "dir", "", "unit's lock directory (required)")
	cmd.Flags().StringVar(&unitHoldState, "state", "fingerprint", "state to reach: fingerprint, rmeta, rlib, partial, full")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func runUnitHold(cmd *cobra.Command, args []string) error {
	ul, err := unitlock.New(locklayout.DefaultResolver{}, interner.Shared(), unitHoldDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	path, err := stateChain(unitHoldState)
	if err != nil {
		return err
	}

	for _, s := range path {
		if err := ul.Transition(ctx, s); err != nil {
			return fmt.Errorf("lockctl: reaching %s: %w", unitHoldState, err)
		}
		fmt.Printf("holding: %s\n", ul.State())
	}

	<-sigCh
	fmt.Println("releasing")
	return ul.Transition(context.Background(), unitlock.None)
}

func stateChain(name string) ([]unitlock.State, error) {
	switch name {
	case "fingerprint":
		return []unitlock.State{unitlock.ReadFingerprint}, nil
	case "rmeta":
		return []unitlock.State{unitlock.ReadFingerprint, unitlock.CompilingRmeta}, nil
	case "rlib":
		return []unitlock.State{unitlock.ReadFingerprint, unitlock.CompilingRmeta, unitlock.CompilingRlib}, nil
	case "partial":
		return []unitlock.State{unitlock.SharedPartial}, nil
	case "full":
		return []unitlock.State{unitlock.SharedFull}, nil
	default:
		return nil, fmt.Errorf("lockctl: unknown state %q", name)
	}
}
