package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourove-a/splaro/internal/app"
	"github.com/sourove-a/splaro/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "splaro-campaigns",
	Short: "Splaro campaigns - targeted notification campaigns for the shop",
	Long: `Splaro campaigns defines audience segments, manages the campaign lifecycle
and dispatches notifications to matching customers, recording every delivery.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("splaro-campaigns %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/splaro/campaigns.yaml", "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(directoryCmd)
	rootCmd.AddCommand(sandboxCmd)
}

// openApp loads the configuration and builds the application without starting it
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, version)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
