package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/inkshelf/internal/config"
	"github.com/mschirtzinger/inkshelf/internal/shelf/db"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote/notion"
	"github.com/mschirtzinger/inkshelf/internal/ui"
)

var (
	initToken  string
	initRootID string
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create .inkshelf and configure the remote workspace",
	Long: `Create the .inkshelf directory in the working directory, write
config.yaml and create the local database.

In a terminal, missing settings are asked for interactively. Otherwise pass
them as flags:

  shelf init --token secret_xxx --root 0123abcd...

The token can also come from INKSHELF_REMOTE_TOKEN at run time, in which
case it can be left out of the file.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir := shelfDirFlag
		if dir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				fatal("%v", err)
			}
			dir = filepath.Join(cwd, config.DirName)
		}

		if (initToken == "" || initRootID == "") && ui.IsTerminal(os.Stdin) {
			if err := askRemoteSettings(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Aborted.")
					return
				}
				fatal("%v", err)
			}
		}

		path, err := config.Init(dir, strings.TrimSpace(initToken), normalizePageID(initRootID))
		if err != nil {
			fatal("%v", err)
		}

		cfg, err := config.Load(dir)
		if err != nil {
			fatal("%v", err)
		}
		database, err := db.Open(cfg.DBPath())
		if err != nil {
			fatal("failed to create database: %v", err)
		}
		database.Close()

		fmt.Printf("%s Initialized %s\n", ui.RenderPass("✓"), dir)
		fmt.Printf("   Config: %s\n", path)
		fmt.Printf("   Database: %s\n", cfg.DBPath())

		if err := cfg.RemoteReady(); err != nil {
			fmt.Printf("\n%s %v\n", ui.RenderWarn("⚠"), err)
			return
		}
		if err := verifyRoot(cmd.Context(), cfg); err != nil {
			fmt.Printf("\n%s Could not reach the root page: %v\n", ui.RenderWarn("⚠"), err)
			fmt.Printf("   Share the page with the integration, then run 'shelf push'\n")
			return
		}
		fmt.Printf("   Remote root: %s\n", ui.RenderAccent(cfg.Remote.RootPageID))
	},
}

func init() {
	initCmd.Flags().StringVar(&initToken, "token", "", "Remote integration token")
	initCmd.Flags().StringVar(&initRootID, "root", "", "Remote root page id or URL")
	rootCmd.AddCommand(initCmd)
}

func askRemoteSettings() error {
	required := func(what string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", what)
			}
			return nil
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Integration token").
				Description("Created in the remote workspace's integration settings").
				EchoMode(huh.EchoModePassword).
				Value(&initToken).
				Validate(required("token")),
			huh.NewInput().
				Title("Root page").
				Description("Page id or URL of the page works are created under").
				Value(&initRootID).
				Validate(required("root page")),
		),
	).Run()
}

// normalizePageID accepts a bare id or a page URL and returns the id.
func normalizePageID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	// Page URLs end in "<slug>-<32 hex chars>".
	if i := strings.LastIndex(s, "-"); i >= 0 && len(s)-i-1 == 32 {
		s = s[i+1:]
	}
	return s
}

func verifyRoot(ctx context.Context, cfg *config.Config) error {
	client, err := notion.New(notion.Config{Token: cfg.Remote.Token, Timeout: cfg.Remote.Timeout})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, err = client.RetrievePage(ctx, cfg.Remote.RootPageID)
	return err
}
