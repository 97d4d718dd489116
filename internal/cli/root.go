// Package cli provides the command-line interface for clipvault.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/clipvault/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	userID    string
	plain     bool

	apiClient *client.Client
)

// localCommands run against local tools and never talk to the server.
var localCommands = map[string]bool{
	"probe":    true,
	"classify": true,
	"version":  true,
	"help":     true,
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "clipvault",
	Short: "Upload, moderate and track video clips",
	Long: `Clipvault ingests uploaded clips in the background: it samples still frames,
asks a vision model whether each one is safe, and records a verdict for the
whole clip. This CLI uploads clips, follows their progress live, and applies
administrative overrides.

The server address comes from --server or CLIPVAULT_SERVER_URL, the acting
user from --user or CLIPVAULT_USER.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if localCommands[cmd.Name()] {
			return nil
		}
		if userID == "" {
			userID = os.Getenv("CLIPVAULT_USER")
		}
		apiClient = client.New(serverURL, userID)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (default $CLIPVAULT_SERVER_URL or http://localhost:8484)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "acting user id")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "print progress as plain lines instead of the interactive view")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(reprocessCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(classifyCmd)
}

// interactive reports whether stdout is a terminal that can host the progress view.
func interactive() bool {
	return !plain && term.IsTerminal(int(os.Stdout.Fd()))
}

// requireUser fails early for commands that act on the caller's own videos.
func requireUser() error {
	if userID == "" {
		return fmt.Errorf("no user set: pass --user or set CLIPVAULT_USER")
	}
	return nil
}
