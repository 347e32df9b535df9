package cli

import (
	"context"
	"errors"

	"sqlrunner/internal/mcp"

	"github.com/spf13/cobra"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var ssePort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query tools over MCP (stdio by default, SSE with --sse-port)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if ssePort != 0 {
				cfg.MCP.SSEPort = ssePort
			}

			// stdio belongs to the protocol, so only SSE mode may log to the console.
			s, err := opts.build(cfg, cfg.MCP.SSEPort == 0)
			if err != nil {
				return err
			}
			defer s.Close()

			server, err := mcp.NewServer(s.cfg, s.svc, s.log)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if s.cfg.MCP.SSEPort > 0 {
				s.log.Info().Int("port", s.cfg.MCP.SSEPort).Msg("starting MCP SSE server")
				err = server.StartSSE(ctx, s.cfg.MCP.SSEPort)
			} else {
				s.log.Info().Msg("starting MCP stdio server")
				err = server.Start(ctx)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&ssePort, "sse-port", 0, "Serve over HTTP SSE on this port instead of stdio")
	return cmd
}
