package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"schooltrans-service/internal/metrics"
)

var (
	// ErrTransientFetch marks network failures, timeouts and 5xx/429
	// answers that survived every retry.
	ErrTransientFetch = errors.New("transient backend failure")
	ErrNotFound       = errors.New("resource not found")
)

// StatusError is returned for non-2xx answers that are not retried.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.Status, e.Body)
}

type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client is a JSON client for one REST service.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewClient(service, baseURL string, opts Options, logger *slog.Logger, m *metrics.Metrics) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

func (c *Client) Service() string {
	return c.service
}

// Do sends body (JSON-encoded when not nil) to path and decodes a successful
// answer into out (skipped when out is nil). GETs are retried on transient
// failures; mutations are sent once.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.service, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.opts.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s %s: %w: %v", method, path, ErrTransientFetch, ctx.Err())
			case <-time.After(c.opts.RetryBackoff * time.Duration(attempt)):
			}
		}

		respBody, status, err := c.once(ctx, method, path, payload)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w: %v", method, path, ErrTransientFetch, err)
			c.logger.WarnContext(ctx, "backend request failed",
				"service", c.service, "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		switch {
		case status >= 200 && status < 300:
			if out == nil || len(respBody) == 0 || status == http.StatusNoContent {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("%s %s: decode response: %w", method, path, err)
			}
			return nil
		case status == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("%s %s: %w: HTTP %d", method, path, ErrTransientFetch, status)
			c.logger.WarnContext(ctx, "backend answered with retryable status",
				"service", c.service, "path", path, "status", status, "attempt", attempt+1)
			continue
		default:
			return &StatusError{Service: c.service, Status: status, Body: strings.TrimSpace(string(respBody))}
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(ctx, c.service, time.Since(start), 0)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.RecordBackendRequest(ctx, c.service, time.Since(start), resp.StatusCode)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

type tokenKey struct{}

// WithToken stores the caller's bearer token so outgoing requests forward it.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}
