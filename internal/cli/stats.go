package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/clipvault/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics and active jobs",
	Long: `Show in-memory server statistics since the last restart: timings for
probing, sampling, classification and store access, token usage where the
vision provider reports it, and the jobs currently queued or running.

Examples:
  clipvault stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}

	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %s\n", (time.Duration(stats.UptimeSeconds) * time.Second).String())
	fmt.Printf("Job slots: %d\n", stats.Concurrency)

	sections := []struct {
		title string
		op    *metrics.OperationSnapshot
	}{
		{"Pipeline runs", stats.Pipeline},
		{"Probe", stats.Probe},
		{"Frame sampling", stats.Sample},
		{"Classification", stats.Classify},
		{"Store queries", stats.StoreQuery},
	}
	for _, s := range sections {
		if s.op == nil {
			continue
		}
		fmt.Printf("\n%s:\n", s.title)
		printOpStats(s.op)
	}

	fmt.Printf("\nActive jobs (%d):\n", len(stats.ActiveJobs))
	for _, j := range stats.ActiveJobs {
		since := j.QueuedAt
		if j.StartedAt != nil {
			since = *j.StartedAt
		}
		fmt.Printf("  %-36s %-8s %s\n", j.VideoID, j.Status, time.Since(since).Round(time.Second))
	}
	return nil
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d (%d failed), Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalInputTokens != nil && op.TotalOutputTokens != nil {
		fmt.Printf("  Tokens: %d in, %d out\n", *op.TotalInputTokens, *op.TotalOutputTokens)
	}
}
