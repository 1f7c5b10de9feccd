// Package client calls a remote generation service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"windci/internal/api"
	"windci/internal/apperror"
	"windci/internal/core"
	"windci/internal/service"
)

// Client talks to the generation service at BaseURL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a client for baseURL using a client with the given timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Generate submits text for target. Network failures are TransportFailure;
// error responses are decoded into the *apperror.Error the server reported.
func (c *Client) Generate(ctx context.Context, target core.Target, text string) (*service.Result, error) {
	url := fmt.Sprintf("%s/generate/%s/yaml", c.BaseURL, target.WireName())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(text))
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/x-yaml")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.TransportFailure, err, "POST %s", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Wrap(apperror.TransportFailure, err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}

	var out api.GenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperror.Wrap(apperror.TransportFailure, err, "decode response")
	}
	return &service.Result{
		Artifact: service.Artifact{Target: target, Text: out.Result, Key: out.Key},
		Elapsed:  processTime(resp.Header.Get(api.ProcessTimeHeader)),
	}, nil
}

func decodeError(status int, body []byte) error {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Kind == "" {
		kind := apperror.Internal
		if status >= http.StatusBadGateway {
			kind = apperror.TransportFailure
		}
		return apperror.New(kind, "unexpected status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return &apperror.Error{Kind: e.Kind, Message: e.Message, Markers: e.Markers}
}

func processTime(header string) time.Duration {
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// IsTransport reports whether err means the service could not be reached.
func IsTransport(err error) bool {
	return apperror.IsKind(err, apperror.TransportFailure) || errors.Is(err, context.DeadlineExceeded)
}
