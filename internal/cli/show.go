package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/clipvault/internal/client"
)

var showRaw bool

var showCmd = &cobra.Command{
	Use:   "show <video-id>",
	Short: "Show a video's processing record",
	Long: `Show the processing record of one video: status, metadata, verdict and the
per-frame audit trail.

Examples:
  clipvault show 5f0c...
  clipvault show 5f0c... --raw`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "dump the full record")
}

func runShow(cmd *cobra.Command, args []string) error {
	v, err := apiClient.GetVideo(context.Background(), args[0])
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("video not found: %s", args[0])
		}
		return fmt.Errorf("get video: %w", err)
	}

	if showRaw {
		pp.Println(v)
		return nil
	}

	fmt.Printf("Video: %s\n", v.ID)
	if v.Title != "" {
		fmt.Printf("  Title: %s\n", v.Title)
	}
	fmt.Printf("  File: %s (%s, %d bytes)\n", v.OriginalName, v.ContentType, v.Size)
	fmt.Printf("  Owner: %s\n", v.OwnerID)
	fmt.Printf("  Status: %s (%d%%)\n", v.ProcessingStatus, v.ProcessingProgress)
	fmt.Printf("  Uploaded: %s\n", v.CreatedAt.Format(time.RFC3339))
	if v.ProcessedAt != nil {
		fmt.Printf("  Processed: %s\n", v.ProcessedAt.Format(time.RFC3339))
		fmt.Printf("  Took: %s\n", v.ProcessedAt.Sub(v.CreatedAt).Round(time.Second))
	}

	if md := v.Metadata; md != nil {
		fmt.Println("\nMetadata:")
		fmt.Printf("  Duration: %.1fs\n", md.Duration)
		fmt.Printf("  Resolution: %dx%d\n", md.Width, md.Height)
		fmt.Printf("  Codec: %s, %.2f fps\n", md.Codec, md.FrameRate)
		if md.Format != "" {
			fmt.Printf("  Container: %s\n", md.Format)
		}
	}

	fmt.Println()
	fmt.Print(renderOutcome(defaultTheme, v))

	if len(v.FrameResults) > 0 {
		fmt.Println("\nFrames:")
		for _, f := range v.FrameResults {
			line := fmt.Sprintf("  #%d  %7.2fs  %s", f.Index, f.Timestamp, f.Verdict)
			if f.Error != "" {
				line += "  (" + f.Error + ")"
			}
			fmt.Println(line)
		}
	}
	return nil
}
