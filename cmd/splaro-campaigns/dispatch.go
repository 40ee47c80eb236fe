package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Fire due automated campaigns once and wait for their jobs",
	Long: `Runs a single scheduler tick, for cron-driven deployments that do not keep
the scheduler running inside serve.`,
	RunE: runDispatch,
}

func runDispatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	fired, err := a.Scheduler().Tick(cmd.Context())
	if err != nil {
		return fmt.Errorf("dispatch tick failed: %w", err)
	}

	a.Runner().Wait()

	fmt.Printf("Fired %d campaign(s)\n", fired)
	return nil
}
