// Package stx20 provides REST clients for the STX20 token API and the STX20
// marketplace API.
package stx20

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Option configures a client.
type Option func(*rest)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *rest) { r.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(r *rest) { r.httpClient.Timeout = d }
}

// WithLogger sets the logger used for quarantined records.
func WithLogger(l *slog.Logger) Option {
	return func(r *rest) { r.logger = l }
}

// WithSaturationCounter counts integer fields clamped to the int64 range,
// labelled by record kind ("token", "listing", "balance").
func WithSaturationCounter(c *prometheus.CounterVec) Option {
	return func(r *rest) { r.saturated = c }
}

// rest is the JSON transport shared by both STX20 clients.
type rest struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	saturated  *prometheus.CounterVec
}

// noteSaturated records a record whose fields were clamped. The record is
// still kept.
func (r *rest) noteSaturated(ctx context.Context, kind, id string, fields []string) {
	if len(fields) == 0 {
		return
	}
	if r.saturated != nil {
		r.saturated.WithLabelValues(kind).Add(float64(len(fields)))
	}
	r.logger.WarnContext(ctx, "stx20: value saturated to int64 range",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.Any("fields", fields),
	)
}

func newRest(baseURL string, opts []Option) rest {
	r := rest{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r *rest) doGet(ctx context.Context, path string, out any) error {
	return r.do(ctx, http.MethodGet, path, nil, out)
}

func (r *rest) doPost(ctx context.Context, path string, body, out any) error {
	return r.do(ctx, http.MethodPost, path, body, out)
}

func (r *rest) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHTTPStatus maps non-2xx responses to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 512 {
		bodyStr = bodyStr[:512]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
