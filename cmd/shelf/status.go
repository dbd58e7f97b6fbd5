package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local records, pending changes and remote mappings",
	Long: `Display, per kind, how many records the local library holds, how
many are dirty (waiting for 'shelf push') and how many have a remote page.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		ws, err := openWorkspace(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer ws.close()

		stats, err := ws.db.Stats(ctx)
		if err != nil {
			ws.close()
			fatal("failed to read stats: %v", err)
		}

		var rows [][]string
		var total, dirty int
		for _, s := range stats {
			mapped := len(ws.pages.Entries(pagemap.Of(s.Kind)))
			rows = append(rows, []string{string(s.Kind), fmt.Sprint(s.Total), fmt.Sprint(s.Dirty), fmt.Sprint(mapped)})
			total += s.Total
			dirty += s.Dirty
		}

		fmt.Printf("\n%s\n", ui.RenderHeader("Library"))
		fmt.Println(ui.Table([]string{"Kind", "Records", "Dirty", "Mapped"}, rows))

		fmt.Printf("   Database: %s", ws.db.Path())
		if info, err := os.Stat(ws.db.Path()); err == nil {
			fmt.Printf(" (%.1f KB)", float64(info.Size())/1024)
		}
		fmt.Println()
		fmt.Printf("   Page map: %d entries (%s backend)\n", ws.pages.Len(), ws.cfg.PageMap.Backend)

		if ws.cfg.Remote.RootPageID != "" {
			fmt.Printf("   Remote root: %s\n", ui.RenderAccent(ws.cfg.Remote.RootPageID))
		} else {
			fmt.Printf("   Remote root: %s\n", ui.RenderMuted("not configured"))
		}

		if dirty > 0 {
			fmt.Printf("\n%s %d of %d records waiting to be pushed\n\n", ui.RenderWarn("⚠"), dirty, total)
		} else {
			fmt.Printf("\n%s Everything is pushed\n\n", ui.RenderPass("✓"))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
