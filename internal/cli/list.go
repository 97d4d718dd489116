package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/clipvault/internal/models"
)

var (
	listAll    bool
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded videos",
	Long: `List videos, newest first. By default only the acting user's videos are
shown; --all lists every owner's.

Examples:
  clipvault list
  clipvault list --status failed
  clipvault list --all -n 100`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "list videos of all owners")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by processing status (pending, processing, completed, failed, rejected)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "max results")
}

func runList(cmd *cobra.Command, args []string) error {
	owner := userID
	if listAll {
		owner = ""
	} else if err := requireUser(); err != nil {
		return err
	}

	videos, err := apiClient.ListVideos(context.Background(), owner)
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}

	shown := 0
	for _, v := range videos {
		if listStatus != "" && v.ProcessingStatus != models.ProcessingStatus(listStatus) {
			continue
		}
		if shown == 0 {
			fmt.Printf("%-36s %-11s %-9s %-5s %-16s %s\n", "ID", "STATUS", "VERDICT", "SCORE", "UPLOADED", "TITLE")
			fmt.Println("------------------------------------------------------------------------------------------------")
		}
		if shown == listLimit {
			fmt.Printf("... more videos not shown (raise --limit)\n")
			break
		}
		shown++

		status := string(v.ProcessingStatus)
		if v.ProcessingStatus == models.StatusProcessing {
			status = fmt.Sprintf("%s %d%%", status, v.ProcessingProgress)
		}
		title := v.Title
		if title == "" {
			title = v.OriginalName
		}
		fmt.Printf("%-36s %-11s %-9s %-5d %-16s %s\n",
			v.ID, status, v.SensitivityStatus, v.SensitivityScore, v.CreatedAt.Local().Format("2006-01-02 15:04"), title)
		if verbose && v.Error != "" {
			fmt.Printf("  error: %s\n", v.Error)
		}
	}

	if shown == 0 {
		fmt.Println("No videos found.")
	}
	return nil
}
