package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourove-a/splaro/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Public URL: %s\n", valueOr(cfg.Server.PublicURL, "(click tracking off)"))
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  API auth: %v\n", cfg.API.KeyHash != "")
	fmt.Printf("  Notifier: %s\n", cfg.Notifier.Driver)
	fmt.Printf("  Lease: %s\n", cfg.Lease.Driver)
	fmt.Printf("  Runner: %d jobs, %d sends per job, %s send timeout\n",
		cfg.Runner.MaxJobs, cfg.Runner.Concurrency, cfg.Runner.SendTimeout)
	fmt.Printf("  Scheduler: %v (every %s)\n", cfg.Scheduler.Enabled, cfg.Scheduler.Interval)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
