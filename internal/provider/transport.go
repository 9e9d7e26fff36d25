package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// TransportConfig holds the shared HTTP adapter settings
type TransportConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	ChunkSize     int
}

// ErrUnreadableAcceptance marks a 2xx response whose body could not be read.
// The provider took the request, so the messages must not be submitted again.
var ErrUnreadableAcceptance = errors.New("provider accepted the request but the response was unreadable")

// StatusError is a non-2xx provider response
type StatusError struct {
	Provider models.Provider
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s responded %d: %s", e.Provider, e.Code, body)
}

// messageScoped: 4xx other than auth and throttling refuses the request payload, not the account
func (e *StatusError) messageScoped() bool {
	switch {
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden, e.Code == http.StatusTooManyRequests:
		return false
	default:
		return e.Code >= 400 && e.Code < 500
	}
}

// httpTransport applies rate limiting, a circuit breaker and a timeout to provider calls.
// Limiters and breakers are held per credential so one account cannot trip another's circuit.
type httpTransport struct {
	provider models.Provider
	baseURL  string
	client   *http.Client
	guards   *guardPool
}

func newHTTPTransport(provider models.Provider, cfg TransportConfig, defaultBaseURL string) *httpTransport {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &httpTransport{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		guards:   newGuardPool(provider, cfg.RatePerSecond, cfg.Burst),
	}
}

// guard is the limiter and breaker pair for one credential
type guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// guardPool hands out one guard per credential, expiring idle ones
type guardPool struct {
	provider  models.Provider
	perSecond float64
	burst     int
	entries   *cache.Cache
}

const guardIdleTTL = 30 * time.Minute

func newGuardPool(provider models.Provider, perSecond float64, burst int) *guardPool {
	return &guardPool{
		provider:  provider,
		perSecond: perSecond,
		burst:     burst,
		entries:   cache.New(guardIdleTTL, 2*guardIdleTTL),
	}
}

// get returns the guard for credential, creating it on first use.
// Credentials are hashed so secrets are never held as map keys.
func (p *guardPool) get(credential string) *guard {
	sum := sha256.Sum256([]byte(credential))
	key := hex.EncodeToString(sum[:])

	if v, found := p.entries.Get(key); found {
		g := v.(*guard)
		p.entries.Set(key, g, cache.DefaultExpiration)
		return g
	}

	g := &guard{
		limiter: newLimiter(p.perSecond, p.burst),
		breaker: newBreaker(p.provider),
	}
	if err := p.entries.Add(key, g, cache.DefaultExpiration); err != nil {
		if v, found := p.entries.Get(key); found {
			return v.(*guard)
		}
	}
	return g
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func newBreaker(provider models.Provider) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(provider),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsMessageRejection(err) || errors.Is(err, ErrUnreadableAcceptance)
		},
	})
}

// postJSON sends body as JSON to path and decodes a 2xx response into out.
// credential selects the limiter and breaker the call is accounted against.
func (t *httpTransport) postJSON(ctx context.Context, credential, path string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", t.provider, err)
	}

	g := t.guards.get(credential)
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", t.provider, err)
	}

	raw, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", t.provider, err)
		}
		defer resp.Body.Close()

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Provider: t.provider, Code: resp.StatusCode, Body: string(respBody)}
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableAcceptance, t.provider, readErr)
		}
		return respBody, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s circuit open: %w", t.provider, err)
	}
	if err != nil {
		return err
	}

	respBody, _ := raw.([]byte)
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnreadableAcceptance, t.provider, err)
		}
	}
	return nil
}
