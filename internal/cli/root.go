// Package cli implements the windci command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"windci/internal/apperror"
	"windci/internal/config"
	"windci/internal/core"
	"windci/internal/logging"
	"windci/internal/service"
)

// Version is set at build time.
var Version = "dev"

// ErrInvalid is returned when a windfile has validation errors. The markers
// have already been printed.
var ErrInvalid = errors.New("windfile is invalid")

// rootFlagKeys maps persistent flags onto configuration keys.
var rootFlagKeys = map[string]string{
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"templates":  "templates.enabled",
	"local-root": "templates.local_root",
	"server":     "preview.server_url",
}

type options struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCmd builds the windci command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "windci",
		Short:         "Translate windfiles into Bash, Bamboo and Jenkins pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(o.configPath, cmd.Flags(), rootFlagKeys)
			if err != nil {
				return err
			}
			o.cfg = cfg
			o.logger = logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", os.Getenv("WINDCI_CONFIG"), "path to the configuration file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (json, text)")
	pf.Bool("templates", true, "resolve `use` actions")
	pf.String("local-root", ".", "directory local template references are read from")
	pf.String("server", "", "generation service URL")

	root.AddCommand(
		newGenerateCmd(o),
		newValidateCmd(o),
		newCheckCmd(o),
		newPreviewCmd(o),
		newServeCmd(o),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrInvalid) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// generateFunc produces an artifact for one target.
type generateFunc func(ctx context.Context, target core.Target, text []byte) (*service.Result, error)

func printMarkers(w io.Writer, path string, markers []apperror.Marker) {
	for _, m := range markers {
		fmt.Fprintf(w, "%s:%s\n", path, m)
	}
}

func readWindfile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the windci version",
		Args:  cobra.NoArgs,
		// skip configuration loading
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "windci", Version)
		},
	}
}
