package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/clipvault/internal/config"
	"github.com/raphaelgruber/clipvault/internal/llm"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image>...",
	Short: "Ask the configured vision model about still images",
	Long: `Send local still images to the configured vision model and print the verdict
for each, exactly as the server would judge a sampled frame. Provider, model
and prompt come from the same environment and policy file as the server.

Examples:
  clipvault classify ./stills/frame_000.jpg
  CLIPVAULT_VISION_PROVIDER=openai clipvault classify ./stills/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := config.ApplyPolicyFile(&cfg); err != nil {
		return err
	}

	ctx := context.Background()
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init vision model: %w", err)
	}
	classifier := llm.NewClassifier(model,
		llm.WithPrompt(cfg.Prompt),
		llm.WithMaxDimension(cfg.FrameMaxDimSize),
		llm.WithTimeout(cfg.ClassifyTimeout),
		llm.WithPacer(llm.NewPacer(cfg.ClassifyInterval)),
	)
	fmt.Printf("Model: %s\n\n", classifier.Model())

	failed := 0
	for _, path := range args {
		start := time.Now()
		verdict, err := classifier.Classify(ctx, path)
		took := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failed++
			fmt.Printf("%-8s %s (%s)\n", verdict, path, err)
			continue
		}
		if verbose {
			fmt.Printf("%-8s %s  %s\n", verdict, path, took)
		} else {
			fmt.Printf("%-8s %s\n", verdict, path)
		}
	}

	if failed == len(args) {
		return fmt.Errorf("no image could be classified")
	}
	return nil
}
