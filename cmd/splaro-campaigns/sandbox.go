package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/notifier"
)

var (
	sandboxListCampaign string
	sandboxListLimit    int
	sandboxClearDays    int
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect deliveries captured by the sandbox notifier",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured deliveries",
	RunE:  runSandboxList,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear captured deliveries",
	RunE:  runSandboxClear,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxListCampaign, "campaign", "", "Filter by campaign ID")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of captures")

	sandboxClearCmd.Flags().IntVar(&sandboxClearDays, "older-than", 0, "Clear captures older than N days")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxClearCmd)
}

func openSandbox() (*notifier.Sandbox, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return notifier.OpenSandbox(cfg.Notifier.Sandbox, slog.Default())
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	sb, err := openSandbox()
	if err != nil {
		return err
	}
	defer sb.Close()

	captures, err := sb.List(sandboxListCampaign, sandboxListLimit)
	if err != nil {
		return fmt.Errorf("failed to list captures: %w", err)
	}

	if len(captures) == 0 {
		fmt.Println("No deliveries in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAMPAIGN\tMODE\tRECIPIENT\tTITLE\tERROR\tCAPTURED")
	fmt.Fprintln(w, "--\t--------\t----\t---------\t-----\t-----\t--------")

	for _, c := range captures {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			c.CampaignID,
			c.Mode,
			c.RecipientID,
			truncate(c.Title, 40),
			valueOr(c.SimulatedErr, "-"),
			c.CapturedAt.Format(time.DateTime),
		)
	}

	return w.Flush()
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	sb, err := openSandbox()
	if err != nil {
		return err
	}
	defer sb.Close()

	olderThan := time.Duration(sandboxClearDays) * 24 * time.Hour
	count, err := sb.Clear(olderThan)
	if err != nil {
		return fmt.Errorf("failed to clear sandbox: %w", err)
	}

	fmt.Printf("Cleared %d deliveries\n", count)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
