package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/clipvault/internal/client"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <video-id>",
	Short: "Delete a video and its stored file",
	Long: `Delete a video. The uploaded file and the processing record are removed.
Videos that are still processing cannot be deleted.
Requires confirmation unless --force is used.

Examples:
  clipvault delete 5f0c...
  clipvault delete 5f0c... --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	video, err := apiClient.GetVideo(ctx, args[0])
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("video not found: %s", args[0])
		}
		return fmt.Errorf("get video: %w", err)
	}

	if !deleteForce {
		fmt.Printf("About to delete: %s (%s, %s)\n", video.OriginalName, video.ID, video.ProcessingStatus)
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := apiClient.DeleteVideo(ctx, video.ID); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	fmt.Printf("Deleted: %s\n", video.OriginalName)
	return nil
}
