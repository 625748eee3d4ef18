// Package llmtransport implements the two-operation LLM contract every
// external collaborator (classifier, generator, judge, fact-extraction
// fallback) is called through: Generate(prompt) -> text and
// InvokeJSON(prompt, schema) -> json. Callers never see a raw transport
// error — TransportFailure is the only error this package returns. The
// classifier, judge and fact-extraction callers each apply their own neutral
// fallback to it; a failed generation call is returned by Engine.Enforce as
// an error.
//
// Grounded on spec.md's "LLM transport contract" (§6) for the interface
// shape, and on the teacher's auth/ratelimit.go for the per-actor
// golang.org/x/time/rate limiting idiom (here, one limiter per backend
// instead of per caller identity).
package llmtransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// TransportFailure wraps any error from the underlying HTTP call, retry
// exhaustion, or response decoding — the one error type this package ever
// returns, so callers can pattern-match on a single sentinel-ish wrapper
// instead of inspecting net/http internals.
type TransportFailure struct {
	Backend string
	Err     error
}

func (f *TransportFailure) Error() string {
	return fmt.Sprintf("llmtransport: %s backend failed: %v", f.Backend, f.Err)
}

func (f *TransportFailure) Unwrap() error { return f.Err }

// Client is the two-operation contract every verifier/classifier calls
// against. A single Client instance multiplexes several named backends,
// each with its own rate limiter; one retry budget (maxRetries) applies to
// every backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiters   map[string]*rate.Limiter
	maxRetries int
	timeout    time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	HTTPClient        *http.Client
	MaxRetries        int
	CallTimeout       time.Duration
	BackendRatePerSec map[string]float64 // e.g. {"classifier": 5, "judge": 2}
}

// New builds a Client with one independent rate.Limiter per configured
// backend, so a burst against the judge backend never starves the
// classifier backend sharing the same process.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limiters := make(map[string]*rate.Limiter, len(cfg.BackendRatePerSec))
	for backend, perSec := range cfg.BackendRatePerSec {
		limiters[backend] = rate.NewLimiter(rate.Limit(perSec), 1)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		limiters:   limiters,
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

func (c *Client) limiterFor(backend string) *rate.Limiter {
	if l, ok := c.limiters[backend]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Inf, 1)
	c.limiters[backend] = l
	return l
}

// Generate sends prompt to backend and returns the raw text completion.
func (c *Client) Generate(ctx context.Context, backend, prompt string) (string, error) {
	var result string
	err := c.withRetry(ctx, backend, func(ctx context.Context) error {
		text, err := c.doGenerate(ctx, backend, prompt)
		if err != nil {
			return err
		}
		result = text
		return nil
	})
	if err != nil {
		return "", &TransportFailure{Backend: backend, Err: err}
	}
	return result, nil
}

// InvokeJSON sends prompt to backend and decodes the response body into out
// (a pointer to the caller's target struct, playing the role of a schema).
func (c *Client) InvokeJSON(ctx context.Context, backend, prompt string, out interface{}) error {
	err := c.withRetry(ctx, backend, func(ctx context.Context) error {
		return c.doInvokeJSON(ctx, backend, prompt, out)
	})
	if err != nil {
		return &TransportFailure{Backend: backend, Err: err}
	}
	return nil
}

func (c *Client) withRetry(ctx context.Context, backend string, attempt func(context.Context) error) error {
	limiter := c.limiterFor(backend)

	var lastErr error
	backoff := 200 * time.Millisecond
	for i := 0; i <= c.maxRetries; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := attempt(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}
		if i < c.maxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return lastErr
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (c *Client) doGenerate(ctx context.Context, backend, prompt string) (string, error) {
	var resp generateResponse
	if err := c.post(ctx, "/"+backend+"/generate", generateRequest{Prompt: prompt}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) doInvokeJSON(ctx context.Context, backend, prompt string, out interface{}) error {
	return c.post(ctx, "/"+backend+"/invoke_json", generateRequest{Prompt: prompt}, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
