package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	rejectReason    string
	reprocessFollow bool
)

var rejectCmd = &cobra.Command{
	Use:   "reject <video-id>",
	Short: "Reject a video by administrative decision",
	Long: `Mark a video as rejected regardless of its automated verdict. Videos that
are still processing cannot be rejected.

Examples:
  clipvault reject 5f0c... --reason "copyright claim"`,
	Args: cobra.ExactArgs(1),
	RunE: runReject,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <video-id>",
	Short: "Run moderation again for a finished video",
	Long: `Reset a completed, failed or rejected video to pending and start a fresh
moderation run. The previous verdict and error are discarded.

Examples:
  clipvault reprocess 5f0c...
  clipvault reprocess 5f0c... --follow`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

func init() {
	rejectCmd.Flags().StringVarP(&rejectReason, "reason", "r", "", "reason recorded with the rejection")
	reprocessCmd.Flags().BoolVarP(&reprocessFollow, "follow", "F", false, "follow the new run's progress")
}

func runReject(cmd *cobra.Command, args []string) error {
	v, err := apiClient.Reject(context.Background(), args[0], rejectReason)
	if err != nil {
		return fmt.Errorf("reject video: %w", err)
	}
	fmt.Printf("Rejected: %s (%s)\n", v.OriginalName, v.ID)
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	v, err := apiClient.Reprocess(ctx, args[0])
	if err != nil {
		return fmt.Errorf("reprocess video: %w", err)
	}
	fmt.Printf("Queued for reprocessing: %s (%s)\n", v.OriginalName, v.ID)

	if !reprocessFollow {
		return nil
	}
	if err := requireUser(); err != nil {
		return err
	}
	return followVideo(ctx, apiClient, v)
}
