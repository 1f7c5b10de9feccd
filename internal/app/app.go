// Package app assembles the generation service from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"windci/internal/api"
	"windci/internal/config"
	"windci/internal/metrics"
	"windci/internal/server"
	"windci/internal/service"
	"windci/internal/template"
)

// Resolver returns the template resolver for cfg, or nil when templates are
// disabled.
func Resolver(cfg config.TemplatesConfig) template.Resolver {
	if !cfg.Enabled {
		return nil
	}
	return &template.Router{
		Git:  template.NewGitResolver(cfg.DefaultBaseURL),
		File: template.NewFileResolver(cfg.LocalRoot),
	}
}

// NewService builds the service for cfg. m may be nil.
func NewService(cfg *config.Config, m *metrics.Metrics) (*service.Service, error) {
	svc, err := service.New(service.Options{
		Resolver:       Resolver(cfg.Templates),
		ResolveTimeout: cfg.Templates.Timeout,
		Metrics:        m,
	})
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// Handler builds the HTTP handler of the generation service.
func Handler(cfg *config.Config, logger *slog.Logger) (http.Handler, error) {
	m := metrics.New()
	svc, err := NewService(cfg, m)
	if err != nil {
		return nil, err
	}
	return api.NewRouter(api.Options{
		Service:      svc,
		Logger:       logger,
		Metrics:      m,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}), nil
}

// Serve runs the generation service until ctx is done. A nil ln listens on
// the configured port.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, ln net.Listener) error {
	handler, err := Handler(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("generation service configured",
		slog.Bool("templates", cfg.Templates.Enabled),
		slog.Int64("max_body_bytes", cfg.Server.MaxBodyBytes))

	srv := server.New(cfg.Server.ToServerConfig(), handler, logger)
	if ln == nil {
		return srv.Run(ctx)
	}
	return srv.Serve(ctx, ln)
}
