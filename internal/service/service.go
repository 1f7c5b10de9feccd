// Package service runs the translation pipeline for one request:
// validate, normalize, resolve templates, generate and fingerprint.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"windci/internal/apperror"
	"windci/internal/core"
	"windci/internal/fingerprint"
	"windci/internal/generator"
	"windci/internal/logging"
	"windci/internal/metrics"
	"windci/internal/schema"
	"windci/internal/template"
)

// Artifact is the generated text for one target and its fingerprint.
type Artifact struct {
	Target core.Target
	Text   string
	Key    string
}

// Result is a generated artifact and the time spent producing it.
type Result struct {
	Artifact
	Elapsed time.Duration
}

// Options configures a Service. The zero value is usable.
type Options struct {
	// Validator defaults to the embedded windfile schema.
	Validator *schema.Validator
	// Resolver fetches templates. Nil leaves templates unresolved and the
	// generators emit failing placeholders for them.
	Resolver template.Resolver
	// ResolveTimeout bounds template resolution per request. Zero means no bound.
	ResolveTimeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Generators selects the generator for a target; defaults to generator.For.
	Generators func(core.Target) (generator.Generator, error)
}

// Service is stateless apart from its read-only options and is safe for
// concurrent use.
type Service struct {
	validator      *schema.Validator
	resolver       template.Resolver
	resolveTimeout time.Duration
	metrics        *metrics.Metrics
	generators     func(core.Target) (generator.Generator, error)
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	v := opts.Validator
	if v == nil {
		var err error
		if v, err = schema.Default(); err != nil {
			return nil, fmt.Errorf("load windfile schema: %w", err)
		}
	}
	gens := opts.Generators
	if gens == nil {
		gens = generator.For
	}
	return &Service{
		validator:      v,
		resolver:       opts.Resolver,
		resolveTimeout: opts.ResolveTimeout,
		metrics:        opts.Metrics,
		generators:     gens,
	}, nil
}

// Schema returns the validator's schema source.
func (s *Service) Schema() []byte {
	return s.validator.Source()
}

// Validate returns the markers for raw without generating anything.
func (s *Service) Validate(raw []byte) []apperror.Marker {
	return s.validator.Validate(raw)
}

// Generate translates raw into the artifact for target.
func (s *Service) Generate(ctx context.Context, target core.Target, raw []byte) (res *Result, err error) {
	start := time.Now()
	logger := logging.FromContext(ctx).With(slog.String("component", "service"), slog.String("target", target.WireName()))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("generation panicked", slog.Any("panic", r))
			res, err = nil, apperror.New(apperror.Internal, "generation failed: %v", r)
		}
		outcome := "ok"
		if err != nil {
			outcome = string(apperror.KindOf(err))
		}
		s.metrics.ObserveGeneration(target.WireName(), outcome, time.Since(start))
	}()

	gen, err := s.generators(target)
	if err != nil {
		return nil, err
	}
	if _, err := core.ParseDocument(raw); err != nil {
		return nil, err
	}
	if markers := s.validator.Validate(raw); apperror.HasErrors(markers) {
		errs := apperror.Errors(markers)
		logger.Debug("document failed validation", slog.Int("errors", len(errs)))
		return nil, apperror.WithMarkers(apperror.ValidationFailed,
			fmt.Sprintf("document has %d validation error(s)", len(errs)), markers)
	}

	def, err := core.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if s.resolver != nil && len(def.Templates()) > 0 {
		rctx := ctx
		if s.resolveTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, s.resolveTimeout)
			defer cancel()
		}
		if def, err = template.ResolveAll(rctx, def, s.resolver); err != nil {
			return nil, err
		}
	}

	text := gen.Generate(def)
	res = &Result{
		Artifact: Artifact{Target: target, Text: text, Key: fingerprint.Compute(def, target)},
		Elapsed:  time.Since(start),
	}
	logger.Info("generated artifact",
		slog.String("pipeline", def.Metadata.Name),
		slog.String("key", res.Key),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}
