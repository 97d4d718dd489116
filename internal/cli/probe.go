package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/clipvault/internal/config"
	"github.com/raphaelgruber/clipvault/internal/media"
)

var (
	probeFrames int
	probeOut    string
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Inspect a local clip with ffprobe",
	Long: `Read the technical metadata of a local video file with the same prober the
server uses. With --frames, also capture that many evenly spaced stills into
--out so they can be checked with 'clipvault classify'.

Examples:
  clipvault probe beach.mp4
  clipvault probe beach.mp4 --frames 5 --out ./stills`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().IntVar(&probeFrames, "frames", 0, "capture this many stills")
	probeCmd.Flags().StringVarP(&probeOut, "out", "o", "", "directory for captured stills (default: a new temp dir)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	sampler := media.NewSampler(cfg.FFmpegPath, cfg.FFprobePath, cfg.MinSourceBytes)
	if err := sampler.CheckTools(); err != nil {
		return err
	}

	ctx := context.Background()
	md, err := sampler.Probe(ctx, args[0])
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	pp.Println(md)

	if probeFrames <= 0 {
		return nil
	}

	out := probeOut
	if out == "" {
		if out, err = os.MkdirTemp("", "clipvault-probe-"); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	} else if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	frames, err := sampler.Sample(ctx, args[0], out, md.Duration, probeFrames)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	fmt.Printf("\nCaptured %d of %d frames:\n", len(frames), probeFrames)
	for _, f := range frames {
		fmt.Printf("  #%d  %7.2fs  %s\n", f.Index, f.Timestamp, f.Path)
	}
	return nil
}
