// Package storeapi is the REST client for the remote commerce API.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/session"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 4 << 20

type rawResponse struct {
	status int
	body   []byte
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker[*rawResponse]
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBreaker trips the circuit after maxFailures consecutive transport or 5xx failures
// and keeps it open for openTimeout.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		c.breaker = newBreaker(maxFailures, openTimeout)
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: timeout,
		breaker: newBreaker(5, 30*time.Second),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(maxFailures uint32, openTimeout time.Duration) *gobreaker.CircuitBreaker[*rawResponse] {
	return gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        "store-api",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}

// envelope is the common {success, message} wrapper of every response body.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func (e *envelope) rejected() (bool, string) {
	return e.Success != nil && !*e.Success, e.Message
}

type enveloped interface {
	rejected() (bool, string)
}

// do sends one authenticated request. A missing or expired credential fails with
// domain.ErrAuth before anything is sent.
func (c *Client) do(ctx context.Context, sess session.Session, method, path string, in, out any) error {
	if err := sess.Check(c.now()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", sess.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, err := c.breaker.Execute(func() (*rawResponse, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrNetwork, method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s response: %w", domain.ErrNetwork, path, err)
		}
		raw := &rawResponse{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return raw, newServerError(raw)
		}
		return raw, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s %s: %w", domain.ErrNetwork, method, path, err)
		}
		return err
	}

	switch {
	case raw.status == http.StatusUnauthorized || raw.status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuth, messageOf(raw.body, http.StatusText(raw.status)))
	case raw.status < 200 || raw.status >= 300:
		return newServerError(raw)
	}

	if out == nil || len(bytes.TrimSpace(raw.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.body, out); err != nil {
		return &domain.ServerError{StatusCode: raw.status, Message: fmt.Sprintf("malformed %s response: %v", path, err)}
	}
	if e, ok := out.(enveloped); ok {
		if rejected, msg := e.rejected(); rejected {
			return &domain.ServerError{StatusCode: raw.status, Message: msg}
		}
	}
	return nil
}

func newServerError(raw *rawResponse) *domain.ServerError {
	return &domain.ServerError{StatusCode: raw.status, Message: messageOf(raw.body, "")}
}

func messageOf(body []byte, fallback string) string {
	var e envelope
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return fallback
}
