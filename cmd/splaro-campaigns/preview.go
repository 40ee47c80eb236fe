package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourove-a/splaro/internal/models"
)

var previewSegment models.AudienceSegment

var previewCmd = &cobra.Command{
	Use:   "preview <kind>",
	Short: "Estimate the audience of a segment",
	Long: `Counts the customers matching a segment right now and prints a few of their IDs.
Kinds: ALL_USERS, RECENT_SIGNUPS, INACTIVE, VIP, BOUGHT_CATEGORY, SUBSCRIBED_ONLY.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().IntVar(&previewSegment.WindowDays, "window-days", 0, "Window in days (RECENT_SIGNUPS, INACTIVE)")
	previewCmd.Flags().IntVar(&previewSegment.MinOrders, "min-orders", 0, "Minimum order count (VIP)")
	previewCmd.Flags().Float64Var(&previewSegment.MinSpend, "min-spend", 0, "Minimum total spend (VIP)")
	previewCmd.Flags().StringVar(&previewSegment.Category, "category", "", "Product category (BOUGHT_CATEGORY)")
	previewCmd.Flags().StringVar(&previewSegment.District, "district", "", "Restrict to a district")
	previewCmd.Flags().StringVar(&previewSegment.Thana, "thana", "", "Restrict to a thana within the district")
}

func runPreview(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	seg := previewSegment
	seg.Kind = models.SegmentKind(strings.ToUpper(args[0]))

	est, err := a.Resolver().Estimate(cmd.Context(), seg)
	if err != nil {
		return err
	}

	fmt.Printf("Matching customers: %d\n", est.Count)
	if len(est.SampleIDs) > 0 {
		fmt.Printf("Sample: %s\n", strings.Join(est.SampleIDs, ", "))
	}
	return nil
}
