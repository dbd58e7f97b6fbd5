package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/inkshelf/internal/ui"
)

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Read the remote workspace into the local library",
	Long: `Pull every work page under the remote root, with its synopsis,
characters, settings, chapters, episodes and the tag tree, and write the
records to the local database, clean.

Pages already known locally keep their local ids; new pages get fresh ids.
Local edits that were not pushed are overwritten by the remote version.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		ws, err := openWorkspace(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer ws.close()

		syncer, err := ws.syncer(ctx, false, nil)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s Pulling from %s...\n", ui.RenderAccent("🔄"), ws.cfg.Remote.RootPageID)
		report, err := syncer.Pull(ctx)
		if err != nil {
			ws.close()
			fatal("pull failed: %v", err)
		}
		printReport(report)
		if report.Total().Failed > 0 {
			ws.close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
