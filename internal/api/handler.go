// Package api exposes the generation service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"windci/internal/apperror"
	"windci/internal/core"
	"windci/internal/logging"
	"windci/internal/metrics"
	"windci/internal/service"
)

// DefaultMaxBodyBytes is used when Options.MaxBodyBytes is not positive.
const DefaultMaxBodyBytes = 1 << 20

// Options configures the router.
type Options struct {
	Service      *service.Service
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	MaxBodyBytes int64
}

// GenerateResponse is the body of a successful generation.
type GenerateResponse struct {
	Result string `json:"result"`
	Key    string `json:"key"`
}

// ValidateResponse is the body of POST /validate.
type ValidateResponse struct {
	Valid   bool              `json:"valid"`
	Markers []apperror.Marker `json:"markers"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Kind    apperror.Kind     `json:"kind"`
	Message string            `json:"message"`
	Markers []apperror.Marker `json:"markers,omitempty"`
}

type handler struct {
	svc     *service.Service
	maxBody int64
}

// NewRouter builds the HTTP routes of the generation service.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: opts.Service, maxBody: opts.MaxBodyBytes}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(accessLog(logger.With("component", "api"), opts.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/schemas/windfile.json", h.schema)
	r.Post("/validate", h.validate)
	r.Post("/generate/{target}/yaml", h.generate)
	r.Post("/generate/{target}", h.generate)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Kind: apperror.UnknownTarget, Message: "no such route"})
	})
	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) schema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(h.svc.Schema())
}

func (h *handler) validate(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	markers := h.svc.Validate(body)
	if markers == nil {
		markers = []apperror.Marker{}
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: !apperror.HasErrors(markers), Markers: markers})
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	target, err := core.ParseTarget(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Generate(r.Context(), target, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Result: res.Text, Key: res.Key})
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err == nil {
		return body, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Kind:    apperror.MalformedDocument,
			Message: "document exceeds the size limit",
		})
		return nil, false
	}
	writeError(w, r, apperror.Wrap(apperror.MalformedDocument, err, "cannot read body"))
	return nil, false
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = apperror.Wrap(apperror.Internal, err, "unexpected error")
	}
	status := apperror.HTTPStatus(appErr.Kind)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
	}
	msg := appErr.Message
	if appErr.Err != nil {
		msg = appErr.Error()
	}
	writeJSON(w, status, ErrorResponse{Kind: appErr.Kind, Message: msg, Markers: appErr.Markers})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
