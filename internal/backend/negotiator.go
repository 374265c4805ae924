// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	auraerr "github.com/aura-dev/aura/pkg/errors"
	"github.com/aura-dev/aura/pkg/health"
)

// DefaultAttemptTimeout bounds each per-variant request.
const DefaultAttemptTimeout = 8 * time.Second

// maxReplyBytes caps how much of a backend reply is read.
const maxReplyBytes = 1 << 20

// Config holds negotiator configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	AttemptTimeout time.Duration
	Variants       []Variant

	// HTTPClient overrides the default client, useful for testing
	// against a mock server.
	HTTPClient *http.Client
}

// Result is a successful negotiation outcome.
type Result struct {
	Text    string
	Variant string
}

// variantState tracks per-variant outcome history for the status
// surface and the preferred-variant shortcut.
type variantState struct {
	failureCount  int64
	lastFailureAt time.Time
	lastSuccessAt time.Time
}

// Negotiator tries each configured variant in declared order against the
// backend base address, returning the first successfully normalized
// result. Attempts are strictly sequential: the remote backend may carry
// implicit server-side state whose ordering matters, so variants are
// never raced.
type Negotiator struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client

	variants []Variant

	mu        sync.Mutex
	preferred string // last variant that succeeded; retried first
	states    map[string]*variantState
	nowFunc   func() time.Time // for testing
}

// New creates a Negotiator. The base URL is required; an empty variant
// list means the default probe order.
func New(cfg Config) (*Negotiator, error) {
	if cfg.BaseURL == "" {
		return nil, auraerr.New(auraerr.CodeBackendConfigInvalid, "backend base URL is required")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	variants := cfg.Variants
	if len(variants) == 0 {
		variants = DefaultVariants()
	}

	states := make(map[string]*variantState, len(variants))
	for _, v := range variants {
		states[v.Name] = &variantState{}
	}

	return &Negotiator{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		timeout:  cfg.AttemptTimeout,
		client:   cfg.HTTPClient,
		variants: variants,
		states:   states,
		nowFunc:  time.Now,
	}, nil
}

// Negotiate walks the variant order until one attempt succeeds. All
// per-variant failures are absorbed here; only a credential failure or
// the aggregate exhaustion leaves this method as an error.
func (n *Negotiator) Negotiate(ctx context.Context, req Request) (Result, error) {
	for _, v := range n.attemptOrder() {
		if err := ctx.Err(); err != nil {
			return Result{}, auraerr.Wrap(err, auraerr.CodeBackendUpstreamFailure,
				"negotiation abandoned")
		}

		text, err := n.attempt(ctx, v, req)
		if err == nil {
			n.recordSuccess(v.Name)
			return Result{Text: text, Variant: v.Name}, nil
		}

		if auraerr.IsUnauthorized(err) {
			// The same credential backs every variant; trying the rest
			// cannot recover, and the caller needs an actionable message.
			n.recordFailure(v.Name)
			return Result{}, err
		}

		n.recordFailure(v.Name)
		slog.Debug("backend variant failed, falling through",
			"variant", v.Name,
			"error", err,
		)
	}

	return Result{}, auraerr.New(auraerr.CodeBackendAllExhausted,
		"all backend variants exhausted",
		auraerr.Field("base_url", n.baseURL),
		auraerr.Field("variants", len(n.variants)),
	)
}

// attemptOrder returns the declared order with the last-successful
// variant moved to the front.
func (n *Negotiator) attemptOrder() []Variant {
	n.mu.Lock()
	preferred := n.preferred
	n.mu.Unlock()

	if preferred == "" {
		return n.variants
	}

	ordered := make([]Variant, 0, len(n.variants))
	for _, v := range n.variants {
		if v.Name == preferred {
			ordered = append([]Variant{v}, ordered...)
			continue
		}
		ordered = append(ordered, v)
	}
	return ordered
}

func (n *Negotiator) attempt(ctx context.Context, v Variant, req Request) (string, error) {
	body, err := json.Marshal(v.BuildPayload(req))
	if err != nil {
		return "", auraerr.Wrapf(err, auraerr.CodeBackendRequestInvalid,
			"marshalling %s payload", v.Name)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, n.baseURL+v.Path, bytes.NewReader(body))
	if err != nil {
		return "", auraerr.Wrapf(err, auraerr.CodeBackendRequestInvalid,
			"building %s request", v.Name)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(httpReq)
	if err != nil {
		// Timeouts and transport errors count as this variant's network
		// failure only.
		return "", auraerr.Wrap(err, auraerr.CodeBackendUpstreamFailure,
			"posting to backend", auraerr.FieldVariant(v.Name))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", auraerr.Wrap(err, auraerr.CodeBackendUpstreamFailure,
			"reading backend reply", auraerr.FieldVariant(v.Name))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", auraerr.New(auraerr.CodeBackendAuthUnauthorized,
			"backend rejected the configured credential",
			auraerr.FieldVariant(v.Name),
			auraerr.Field("status", resp.StatusCode),
		)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", auraerr.Errorf(auraerr.CodeBackendUpstreamFailure,
			"backend returned status %d for %s", resp.StatusCode, v.Name)
	}

	return v.Extract(raw)
}

func (n *Negotiator) recordSuccess(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.preferred != name {
		slog.Info("backend variant negotiated", "variant", name)
	}
	n.preferred = name
	if st, ok := n.states[name]; ok {
		st.lastSuccessAt = n.nowFunc()
	}
}

func (n *Negotiator) recordFailure(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.preferred == name {
		// The shortcut is invalidated the moment it fails again.
		n.preferred = ""
	}
	if st, ok := n.states[name]; ok {
		st.failureCount++
		st.lastFailureAt = n.nowFunc()
	}
}

// Metrics returns a point-in-time health snapshot per variant name.
func (n *Negotiator) Metrics() map[string]health.Metrics {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[string]health.Metrics, len(n.states))
	for name, st := range n.states {
		m := health.Metrics{
			FailureCount: st.failureCount,
			Preferred:    name == n.preferred,
		}
		if !st.lastFailureAt.IsZero() {
			t := st.lastFailureAt
			m.LastFailureAt = &t
		}
		if !st.lastSuccessAt.IsZero() {
			t := st.lastSuccessAt
			m.LastSuccessAt = &t
		}
		out[name] = m
	}
	return out
}

// SetNowFunc overrides the time source (for testing).
func (n *Negotiator) SetNowFunc(fn func() time.Time) {
	n.mu.Lock()
	n.nowFunc = fn
	n.mu.Unlock()
}
