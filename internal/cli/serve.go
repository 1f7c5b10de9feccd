package cli

import (
	"github.com/spf13/cobra"

	"windci/internal/app"
)

func newServeCmd(o *options) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the generation service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				o.cfg.Server.Port = port
			}
			return app.Serve(cmd.Context(), o.cfg, o.logger, nil)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port the HTTP server listens on")
	return cmd
}
