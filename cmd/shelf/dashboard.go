package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/inkshelf/internal/shelf/dashboard"
	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Run the push daemon with a live WebSocket dashboard",
	Long: `Run the push daemon and serve its progress over WebSocket.

WebSocket messages include:
- status: Running totals, sent once on connect
- pass_started: A push began
- entity_synced: One record was written, or failed
- pass_complete: Per-kind counts and errors of the finished push

Example usage:
  shelf dashboard                # Start on dashboard.port (default 7420)
  shelf dashboard --port 9000    # Start on custom port

Open http://localhost:7420 in a browser, or connect a WebSocket client to
ws://localhost:7420/ws.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runDaemon(cmd, func(ws *workspace) (shelfsync.Observer, func(), error) {
			port := ws.cfg.Dashboard.Port
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetInt("port")
			}

			server := dashboard.NewServer(&dashboard.Config{
				Host:   "localhost",
				Port:   port,
				Logger: ws.logger("dashboard"),
			})
			if err := server.Start(); err != nil {
				return nil, nil, fmt.Errorf("failed to start dashboard: %w", err)
			}

			fmt.Printf("Dashboard server started on http://%s\n", server.GetAddr())
			fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
			fmt.Printf("Health check: http://%s/health\n", server.GetAddr())

			stop := func() {
				if err := server.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
				}
			}
			return dashboard.NewHandler(server, ws.logger("dashboard")), stop, nil
		})
		if err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 7420, "Port to listen on (default: dashboard.port)")
	dashboardCmd.Flags().BoolVar(&daemonNoInitialPush, "no-initial-push", false, "Wait for the first change before pushing")
	rootCmd.AddCommand(dashboardCmd)
}
