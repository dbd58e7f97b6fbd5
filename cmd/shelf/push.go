package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
	"github.com/mschirtzinger/inkshelf/internal/ui"
)

var (
	pushAll    bool
	pushSince  string
	pushDryRun bool
)

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Write local changes to the remote workspace",
	Long: `Push dirty records to the remote page tree and mark them clean.

Records are selected when they are dirty, when --all is set, or when they
were updated after --since. --since takes RFC 3339 timestamps or phrases like
"2 hours ago" and "yesterday".

With --dry-run the pass runs against an empty in-memory remote: nothing is
written remotely and records stay dirty.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := shelfsync.Options{All: pushAll, DryRun: pushDryRun}
		if pushSince != "" {
			since, err := parseSince(pushSince, time.Now())
			if err != nil {
				fatal("%v", err)
			}
			opts.Since = since
		}

		ctx := cmd.Context()
		ws, err := openWorkspace(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer ws.close()

		syncer, err := ws.syncer(ctx, opts.DryRun, nil)
		if err != nil {
			fatal("%v", err)
		}

		label := "Pushing"
		if opts.DryRun {
			label = "Pushing (dry run)"
		}
		fmt.Printf("%s %s to %s...\n", ui.RenderAccent("🔄"), label, ws.cfg.Remote.RootPageID)

		report, err := syncer.Push(ctx, opts)
		if err != nil {
			ws.close()
			fatal("push failed: %v", err)
		}
		printReport(report)
		if report.Total().Failed > 0 {
			ws.close()
			os.Exit(1)
		}
	},
}

func init() {
	pushCmd.Flags().BoolVar(&pushAll, "all", false, "Push every record, dirty or not")
	pushCmd.Flags().StringVar(&pushSince, "since", "", "Also push records updated after this time")
	pushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "Run against an in-memory remote and keep records dirty")
	rootCmd.AddCommand(pushCmd)
}

// parseSince accepts RFC 3339 or a natural-language time relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: not a time", s)
	}
	return r.Time, nil
}

// printReport renders a pass report as a table plus its errors.
func printReport(r *shelfsync.Report) {
	var rows [][]string
	for _, kind := range schema.Kinds {
		c := r.Counts(kind)
		if c == (shelfsync.Counts{}) {
			continue
		}
		rows = append(rows, []string{string(kind), fmt.Sprint(c.Succeeded), fmt.Sprint(c.Failed), fmt.Sprint(c.Skipped)})
	}

	total := r.Total()
	if len(rows) == 0 {
		fmt.Printf("%s Nothing to %s\n", ui.RenderPass("✓"), r.Direction)
		return
	}
	fmt.Println(ui.Table([]string{"Kind", "Synced", "Failed", "Skipped"}, rows))

	mark := ui.RenderPass("✓")
	if total.Failed > 0 {
		mark = ui.RenderWarn("⚠")
	}
	fmt.Printf("%s %s complete in %v: %d synced, %d failed, %d skipped\n",
		mark, directionLabel(r.Direction), r.Duration().Round(time.Millisecond),
		total.Succeeded, total.Failed, total.Skipped)

	errs := r.Errors()
	if len(errs) == 0 {
		return
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	sort.Strings(msgs)
	for _, msg := range msgs {
		fmt.Printf("   %s %s\n", ui.RenderFail("✗"), msg)
	}
}

func directionLabel(d shelfsync.Direction) string {
	if d == shelfsync.DirectionPull {
		return "Pull"
	}
	return "Push"
}
