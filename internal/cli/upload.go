package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	uploadTitle  string
	uploadDetach bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a clip and follow its moderation",
	Long: `Upload a video file. The server accepts it immediately and processes it in
the background; by default the command then shows live progress until the
verdict is in. Use --detach to return as soon as the upload is accepted.

Examples:
  clipvault upload beach.mp4
  clipvault upload raw/IMG_0042.mov --title "Harbour at dusk"
  clipvault upload big.mkv --detach`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "display title (defaults to the file name)")
	uploadCmd.Flags().BoolVarP(&uploadDetach, "detach", "d", false, "do not wait for processing")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	title := uploadTitle
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	video, err := apiClient.Upload(ctx, path, title)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Printf("Uploaded %s as %s\n", video.OriginalName, video.ID)

	if uploadDetach {
		fmt.Printf("Use 'clipvault watch %s' to follow processing.\n", video.ID)
		return nil
	}
	return followVideo(ctx, apiClient, video)
}
