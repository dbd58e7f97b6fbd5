// Command shelf manages an inkshelf writing workspace and mirrors it to a
// remote page workspace.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	shelfDirFlag string
	quietFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "Organize works, chapters and episodes and sync them to a remote workspace",
	Long: `shelf keeps a local library of works (synopsis, characters, settings,
chapters, episodes and tags) in .inkshelf/shelf.db and mirrors it onto a
remote page tree.

Edits mark records dirty; 'shelf push' writes dirty records to the remote,
'shelf pull' reads the remote tree back, and 'shelf daemon' pushes after
every change.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)

	rootCmd.PersistentFlags().StringVar(&shelfDirFlag, "dir", "", "Path to the .inkshelf directory (default: search upward from the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Only write logs to the log file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
