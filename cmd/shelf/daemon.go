package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/inkshelf/internal/shelf/daemon"
	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
	"github.com/mschirtzinger/inkshelf/internal/ui"
)

var daemonNoInitialPush bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Push local changes automatically as they happen",
	Long: `Watch the local database and push dirty records after every change.

Writes are debounced (daemon.debounce, default 2s) so a burst of edits turns
into one push. Passes never overlap; changes made during a pass queue a
single follow-up pass. A failed pass is logged and the daemon keeps
watching.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(cmd, nil); err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNoInitialPush, "no-initial-push", false, "Wait for the first change before pushing")
	rootCmd.AddCommand(daemonCmd)
}

// runDaemon runs the push daemon until the command context is cancelled.
// before, if set, is called once the workspace is open and may return an
// observer for sync progress.
func runDaemon(cmd *cobra.Command, before func(ws *workspace) (shelfsync.Observer, func(), error)) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	var observer shelfsync.Observer
	if before != nil {
		obs, cleanup, err := before(ws)
		if err != nil {
			return err
		}
		defer cleanup()
		observer = obs
	}

	syncer, err := ws.syncer(ctx, false, observer)
	if err != nil {
		return err
	}

	d, err := daemon.NewWithConfig(syncer, ws.db.Path(), &daemon.Config{
		DebounceInterval: ws.cfg.Daemon.Debounce,
		PushOnStart:      !daemonNoInitialPush,
		Logger:           ws.logger("daemon"),
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	fmt.Printf("%s Watching %s (debounce %v)\n", ui.RenderAccent("👀"), ws.db.Path(), ws.cfg.Daemon.Debounce)
	fmt.Println("Press Ctrl+C to stop...")

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("daemon stopped: %w", err)
	}

	stats := d.Stats()
	fmt.Printf("\n%s Daemon stopped after %d passes (%d failed)\n", ui.RenderPass("✓"), stats.Passes, stats.Failures)
	return nil
}
