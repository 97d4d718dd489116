package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/clipvault/internal/client"
)

var watchCmd = &cobra.Command{
	Use:   "watch <video-id>",
	Short: "Follow a video's processing progress",
	Long: `Follow live progress for a video until it is completed or failed.
If the video already finished, its outcome is printed right away.

Examples:
  clipvault watch 5f0c...`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	video, err := apiClient.GetVideo(ctx, args[0])
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("video not found: %s", args[0])
		}
		return fmt.Errorf("get video: %w", err)
	}
	if video.ProcessingStatus.Terminal() {
		fmt.Print(renderOutcome(defaultTheme, video))
		return nil
	}
	return followVideo(ctx, apiClient, video)
}
