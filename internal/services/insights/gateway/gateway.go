// Package gateway issues outbound HTTP calls to metric providers with
// timeout, bounded retry, and shared rate limiting. It never interprets the
// domain meaning of a response body; classification happens upstream.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/linkforge/insights/internal/platform/timeouts"
)

// maxBodyBytes caps how much of a provider response is read. PageSpeed
// payloads run to a few megabytes; anything larger is truncated rather than
// buffered unbounded.
const maxBodyBytes = 8 << 20

// defaultMaxAttempts counts the first try plus two retries.
const defaultMaxAttempts = 3

// Request describes one outbound provider call.
type Request struct {
	Method   string
	URL      string
	Query    url.Values
	JSONBody any
}

// Response is the uninterpreted outcome of a provider call: the HTTP status
// plus the parsed JSON body. Body is nil when the payload is not valid JSON;
// RawBody always holds the (capped) bytes that were read.
type Response struct {
	StatusCode int
	Body       map[string]any
	RawBody    []byte
}

// CallConfig tunes one call: per-attempt timeout, retry budget with fixed
// delay, and an optional shared limiter.
type CallConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Limiter     *Limiter
}

// Client executes provider calls over an injectable HTTP client.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a gateway client. A nil httpClient selects
// http.DefaultClient; per-attempt timeouts come from CallConfig, not the
// client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Call performs the request with bounded retry. Transport failures and 5xx
// responses are retried after a fixed delay; 4xx responses are returned to
// the caller on the first attempt since retrying them cannot help. Retry is
// only safe here because every provider call is an idempotent read.
func (c *Client) Call(ctx context.Context, cfg CallConfig, req Request) (Response, error) {
	if err := cfg.Limiter.Acquire(ctx); err != nil {
		return Response{}, err
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = timeouts.ProviderRetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepRetry(ctx, retryDelay); err != nil {
				return Response{}, err
			}
		}

		res, err := c.attempt(ctx, cfg, req)
		if err != nil {
			lastErr = err
			continue
		}
		if res.StatusCode >= 500 && attempt < maxAttempts {
			lastErr = fmt.Errorf("provider status %d", res.StatusCode)
			continue
		}
		return res, nil
	}
	return Response{}, fmt.Errorf("provider call failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, cfg CallConfig, req Request) (Response, error) {
	attemptCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	callURL := req.URL
	if len(req.Query) > 0 {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return Response{}, fmt.Errorf("parse provider url: %w", err)
		}
		q := parsed.Query()
		for key, values := range req.Query {
			for _, value := range values {
				q.Add(key, value)
			}
		}
		parsed.RawQuery = q.Encode()
		callURL = parsed.String()
	}

	var body io.Reader
	if req.JSONBody != nil {
		encoded, err := json.Marshal(req.JSONBody)
		if err != nil {
			return Response{}, fmt.Errorf("marshal provider request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, callURL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build provider request: %w", err)
	}
	if req.JSONBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("provider request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read provider response: %w", err)
	}

	response := Response{StatusCode: res.StatusCode, RawBody: raw}
	var parsed map[string]any
	if json.Unmarshal(raw, &parsed) == nil {
		response.Body = parsed
	}
	return response, nil
}

func sleepRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
