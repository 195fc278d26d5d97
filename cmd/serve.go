// File: cmd/serve.go
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vistral/deskpilot/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose screenshot and action prediction as JSON-RPC tools",
	Long: `Serve starts an HTTP server speaking JSON-RPC 2.0 at POST /mcp, exposing
the screenshot, predict_action and scroll_action tools to external
orchestrators. The server binds to loopback by default; the endpoint can
inject arbitrary input into the desktop, so expose it deliberately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := buildStack(ctx, cfg)
		if err != nil {
			return err
		}

		server := mcp.NewServer(cfg.Server, st.client, st.exec, st.capturer, st.store, st.logger)
		return server.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
