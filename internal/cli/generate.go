package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"windci/internal/app"
	"windci/internal/client"
	"windci/internal/core"
	"windci/internal/logging"
	"windci/internal/service"
	"windci/internal/storage"
)

func newGenerateCmd(o *options) *cobra.Command {
	var (
		targetNames []string
		outDir      string
		remote      bool
	)
	cmd := &cobra.Command{
		Use:   "generate <windfile>",
		Short: "Generate pipelines from a windfile",
		Long: `Generate pipelines from a windfile ("-" reads standard input).

Without --out-dir the artifact is written to standard output, which requires
a single target. With --out-dir every artifact is saved as
<name>_<fingerprint>.<ext>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(targetNames)
			if err != nil {
				return err
			}
			if outDir == "" && len(targets) > 1 {
				return fmt.Errorf("%d targets need --out-dir", len(targets))
			}
			text, err := readWindfile(args[0])
			if err != nil {
				return err
			}

			gen, err := o.generator(remote)
			if err != nil {
				return err
			}
			var store *storage.ArtifactStore
			if outDir != "" {
				store = storage.NewArtifactStore(outDir)
			}

			for _, t := range targets {
				res, err := gen(logging.NewContext(cmd.Context(), o.logger), t, text)
				if err != nil {
					return o.report(cmd, args[0], err)
				}
				if store == nil {
					fmt.Fprint(cmd.OutOrStdout(), res.Text)
					continue
				}
				path, err := store.Save(windfileName(args[0]), res.Artifact)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", filepath.Join(outDir, path), res.Key)
				o.logger.Debug("artifact saved", slog.String("target", string(t)), slog.Duration("elapsed", res.Elapsed))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&targetNames, "target", "t", []string{"cli"}, "targets to generate: cli, bamboo, jenkins or all")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "directory to save artifacts in")
	cmd.Flags().BoolVar(&remote, "remote", false, "generate through the service at --server instead of locally")
	return cmd
}

// generator returns a local service, or a client for the configured server.
func (o *options) generator(remote bool) (generateFunc, error) {
	if remote {
		c := client.New(o.cfg.Preview.ServerURL, o.cfg.Preview.RequestTimeout)
		return func(ctx context.Context, t core.Target, text []byte) (*service.Result, error) {
			return c.Generate(ctx, t, string(text))
		}, nil
	}
	svc, err := app.NewService(o.cfg, nil)
	if err != nil {
		return nil, err
	}
	return svc.Generate, nil
}

func parseTargets(names []string) ([]core.Target, error) {
	var targets []core.Target
	seen := map[core.Target]bool{}
	for _, n := range names {
		if strings.EqualFold(n, "all") {
			return core.Targets, nil
		}
		t, err := core.ParseTarget(n)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}
	return targets, nil
}

func windfileName(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
