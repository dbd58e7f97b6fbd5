package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/inkshelf/internal/shelf/backup"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
	"github.com/mschirtzinger/inkshelf/internal/ui"
)

var (
	exportFormat string
	importDryRun bool
	importDirty  bool
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "data",
	Short:   "Write the whole library to a backup file",
	Long: `Export every local record to a bundle.

The format follows the file extension: .jsonl (one record per line), .yaml
or .toml. Without a file, JSONL is written to stdout (or --format).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		ws, err := openWorkspace(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer ws.close()

		if len(args) == 0 {
			if _, err := backup.Export(ctx, ws.db, os.Stdout, backup.Format(exportFormat)); err != nil {
				ws.close()
				fatal("export failed: %v", err)
			}
			return
		}

		result, err := backup.ExportFile(ctx, ws.db, args[0])
		if err != nil {
			ws.close()
			fatal("export failed: %v", err)
		}
		fmt.Printf("%s Exported %d records to %s\n", ui.RenderPass("✓"), result.Records, args[0])
		printByKind(result)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Load records from a backup file",
	Long: `Import a bundle written by 'shelf export'.

Every record is validated before anything is written; one invalid record
aborts the import. Records with the same id are replaced.

With --dirty, imported records are marked dirty so the next push writes them
to the remote.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		ws, err := openWorkspace(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer ws.close()

		result, err := backup.ImportFile(ctx, ws.db, args[0], backup.ImportOptions{DryRun: importDryRun, Dirty: importDirty})
		if err != nil {
			if result != nil {
				for _, e := range result.Errors {
					fmt.Fprintf(os.Stderr, "   %s %s\n", ui.RenderFail("✗"), e)
				}
			}
			ws.close()
			fatal("import failed: %v", err)
		}

		verb := "Imported"
		if importDryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d records from %s\n", ui.RenderPass("✓"), verb, result.Records, args[0])
		printByKind(result)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", string(backup.FormatJSONL), "Format when writing to stdout (jsonl|yaml|toml)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate without writing")
	importCmd.Flags().BoolVar(&importDirty, "dirty", false, "Mark imported records dirty")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func printByKind(result *backup.Result) {
	for _, kind := range schema.Kinds {
		if n := result.ByKind[kind]; n > 0 {
			fmt.Printf("   %s: %d\n", kind, n)
		}
	}
}
