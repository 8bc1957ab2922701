// Package client talks to the catalog backend over HTTP.
package client

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

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/pkg/logger"
)

// Config holds backend client settings
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	GenerateTimeout time.Duration
	UploadTimeout   time.Duration
	JWTSecret       string
	JWTSubject      string
	GenerateRPS     float64
	GenerateBurst   int
	MaxFailures     int
	BreakerTimeout  time.Duration
}

// BackendClient wraps the catalog backend HTTP API
type BackendClient struct {
	cfg     Config
	http    *http.Client
	breaker *Breaker
	limiter *rate.Limiter
	signer  *TokenSigner
}

// New creates a backend client with a traced transport
func New(cfg Config) *BackendClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 120 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.GenerateRPS > 0 {
		limit = rate.Limit(cfg.GenerateRPS)
	}
	burst := cfg.GenerateBurst
	if burst <= 0 {
		burst = 1
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &BackendClient{
		cfg:     cfg,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker: NewBreaker("catalog-backend", cfg.MaxFailures, cfg.BreakerTimeout),
		limiter: rate.NewLimiter(limit, burst),
		signer:  NewTokenSigner(cfg.JWTSecret, cfg.JWTSubject, 0),
	}
}

// Breaker exposes the breaker for readiness reporting
func (c *BackendClient) Breaker() *Breaker {
	return c.breaker
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	timeout     time.Duration
	// fallback is the operator-facing text used when the backend gives none
	fallback string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one request. Transport errors become NetworkFailure, non-2xx
// answers become ServerError carrying the envelope text.
func (c *BackendClient) do(ctx context.Context, r request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, c.cfg.BaseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", r.method, r.path, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.signer != nil {
		token, err := c.signer.Sign()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var (
		resp   *response
		result error
	)
	err = c.breaker.Call(func() error {
		res, err := c.http.Do(req)
		if err != nil {
			result = domain.NetworkFailure(r.fallback, err)
			return result
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			result = domain.NetworkFailure(r.fallback, err)
			return result
		}

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			msg, _ := envelopeError(body)
			if msg == "" {
				msg = r.fallback
			}
			result = domain.ServerError(res.StatusCode, msg)
			if res.StatusCode >= 500 {
				return result
			}
			return nil
		}

		resp = &response{status: res.StatusCode, header: res.Header, body: body}
		return nil
	})
	if errors.Is(err, ErrBreakerOpen) {
		logger.Warn(ctx).
			Str("path", r.path).
			Msg("Circuit breaker is open - request blocked")
		return nil, domain.NetworkFailure("backend temporarily unavailable", err)
	}
	if result != nil {
		logger.Debug(ctx).
			Err(result).
			Str("method", r.method).
			Str("path", r.path).
			Msg("Backend request failed")
		return nil, result
	}
	return resp, nil
}

// envelopeError extracts the text of an {"error": ...} body. The second
// result reports whether an error field was present and set at all.
func envelopeError(body []byte) (string, bool) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	raw, ok := envelope["error"]
	if !ok || raw == nil || raw == false {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, v != ""
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg, true
		}
	}
	return "", true
}

func (c *BackendClient) decode(ctx context.Context, body []byte, out interface{}, fallback string) error {
	if err := json.Unmarshal(body, out); err != nil {
		logger.Error(ctx).Err(err).Msg("Failed to decode backend response")
		return domain.ServerError(http.StatusOK, fallback)
	}
	return nil
}

func (c *BackendClient) jsonBody(v interface{}) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return bytes.NewReader(data), nil
}
