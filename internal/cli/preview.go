package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"windci/internal/client"
	"windci/internal/core"
	"windci/internal/preview"
	"windci/internal/schema"
)

func newPreviewCmd(o *options) *cobra.Command {
	var targetName string
	cmd := &cobra.Command{
		Use:   "preview <windfile>",
		Short: "Regenerate a preview through the service whenever the windfile changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := core.ParseTarget(targetName)
			if err != nil {
				return err
			}
			c := preview.New(
				client.New(o.cfg.Preview.ServerURL, o.cfg.Preview.RequestTimeout),
				preview.Options{Debounce: o.cfg.Preview.Debounce, Target: target, Logger: o.logger},
			)
			views := c.Subscribe()

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return c.Run(ctx) })
			g.Go(func() error { return preview.Watch(ctx, args[0], c, schema.Validate, o.logger) })
			g.Go(func() error {
				printViews(cmd.OutOrStdout(), args[0], views)
				return nil
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetName, "target", "t", "cli", "target to preview: cli, bamboo or jenkins")
	return cmd
}

// printViews writes every settled view until views is closed.
func printViews(w io.Writer, path string, views <-chan preview.View) {
	var lastSeq uint64
	for v := range views {
		switch v.State {
		case preview.Idle:
			if v.Err != nil {
				fmt.Fprintf(w, "--- %s: %v\n", path, v.Err)
			}
		case preview.Blocked:
			fmt.Fprintf(w, "--- %s blocked\n", path)
			printMarkers(w, path, v.Markers)
		case preview.Rendered:
			if v.Err != nil {
				fmt.Fprintf(w, "--- %s: %v (showing last preview)\n", path, v.Err)
				continue
			}
			if v.Render.Seq == lastSeq {
				continue
			}
			lastSeq = v.Render.Seq
			fmt.Fprintf(w, "--- %s %s %s (%s)\n", path, v.Target.WireName(), v.Render.Key, v.Render.Elapsed)
			fmt.Fprint(w, v.Text())
			if !strings.HasSuffix(v.Text(), "\n") {
				fmt.Fprintln(w)
			}
		}
	}
}
