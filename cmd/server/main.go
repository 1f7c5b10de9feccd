package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"windci/internal/app"
	"windci/internal/config"
	"windci/internal/logging"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"port":          "server.port",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"templates":     "templates.enabled",
	"template-base": "templates.default_base_url",
	"local-root":    "templates.local_root",
}

func main() {
	flags := pflag.NewFlagSet("windci-server", pflag.ExitOnError)
	configPath := flags.String("config", os.Getenv("WINDCI_CONFIG"), "path to the configuration file")
	flags.Int("port", 8080, "port the HTTP server listens on")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.Bool("templates", true, "resolve `use` actions")
	flags.String("template-base", "", "base URL for bare template names")
	flags.String("local-root", ".", "directory local template references are read from")
	dumpConfig := flags.Bool("dump-config", false, "print the effective configuration and exit")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, flags, flagKeys)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *dumpConfig {
		if err := config.Dump(os.Stdout, cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Serve(ctx, cfg, logger, nil); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}
