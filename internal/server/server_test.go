// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/backend"
	"github.com/aura-dev/aura/internal/gateway"
	"github.com/aura-dev/aura/internal/server"
	"github.com/aura-dev/aura/internal/store"
	auraerr "github.com/aura-dev/aura/pkg/errors"
	"github.com/aura-dev/aura/pkg/health"
)

// stubNegotiator records every request and answers from a script.
type stubNegotiator struct {
	mu   sync.Mutex
	reqs []backend.Request

	reply string
	err   error
}

func (n *stubNegotiator) Negotiate(_ context.Context, req backend.Request) (backend.Result, error) {
	n.mu.Lock()
	n.reqs = append(n.reqs, req)
	n.mu.Unlock()
	if n.err != nil {
		return backend.Result{}, n.err
	}
	return backend.Result{Text: n.reply, Variant: "run_predict"}, nil
}

func (n *stubNegotiator) last(t *testing.T) backend.Request {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.reqs)
	return n.reqs[len(n.reqs)-1]
}

type testEnv struct {
	srv   *server.Server
	store *store.MemoryStore
	neg   *stubNegotiator
}

func newTestEnv(t *testing.T, neg *stubNegotiator) *testEnv {
	t.Helper()

	srv, err := server.New(server.Config{
		ListenAddr:     "127.0.0.1:0",
		RevealInterval: time.Millisecond,
	})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	gw := gateway.New(st, neg, gateway.Config{})
	t.Cleanup(gw.Close)

	srv.RegisterServices(&server.Services{
		Gateway:   gw,
		Lifecycle: gateway.NewLifecycle(gw),
		Metrics: func() map[string]health.Metrics {
			return map[string]health.Metrics{"run_predict": {Preferred: true}}
		},
		Defaults: backend.Tunables{}.WithDefaults(),
	})

	return &testEnv{srv: srv, store: st, neg: neg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/create_chat", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data)
	return resp.Data
}

func envBody(args ...any) map[string]any {
	return map[string]any{"data": args}
}

func TestServer_New_EmptyListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
	assert.True(t, auraerr.HasCode(err, auraerr.CodeServerConfigInvalid))
}

func TestServer_HealthEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "hi"})

	w := env.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestServer_OpenAPISpecIncludesEnvelopeRoutes(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "hi"})

	w := env.do(t, http.MethodGet, "/openapi.json", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "/api/submit")
	assert.Contains(t, body, "/api/create_chat")
	assert.Contains(t, body, "/api/stream")
}

func TestServer_CreateChatReturnsSessionID(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "hi"})

	id := env.createSession(t)

	_, err := env.store.Get(context.Background(), id)
	assert.NoError(t, err)
}

func TestServer_SubmitReturnsReply(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "the sky is blue"})
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, "why is the sky blue?"))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Response  string `json:"response"`
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "the sky is blue", resp.Data.Response)
	assert.Equal(t, id, resp.Data.SessionID)

	turns, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, store.RoleUser, turns[0].Role)
	assert.Equal(t, store.RoleAssistant, turns[1].Role)
}

func TestServer_SubmitRecoversUnknownSession(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "hello"})

	w := env.do(t, http.MethodPost, "/api/submit", envBody("gone", "hello?"))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Response  string `json:"response"`
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello", resp.Data.Response)
	assert.NotEqual(t, "gone", resp.Data.SessionID)

	turns, err := env.store.Get(context.Background(), resp.Data.SessionID)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestServer_SubmitAppliesTunableOverrides(t *testing.T) {
	neg := &stubNegotiator{reply: "ok"}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit",
		envBody(id, "hi", 1.2, 256, 0.5, 10))

	require.Equal(t, http.StatusOK, w.Code)
	got := neg.last(t).Tunables
	assert.InDelta(t, 1.2, got.Temperature, 1e-9)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.5, got.TopP, 1e-9)
	assert.Equal(t, 10, got.TopK)
}

func TestServer_SubmitSkipsStreamFlag(t *testing.T) {
	neg := &stubNegotiator{reply: "ok"}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	// Legacy clients send the boolean stream flag ahead of the
	// tunables.
	w := env.do(t, http.MethodPost, "/api/submit",
		envBody(id, "hello", false, 0.5))

	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.5, neg.last(t).Tunables.Temperature, 1e-9)

	// An explicit null placeholder in the stream slot is skipped too.
	w = env.do(t, http.MethodPost, "/api/submit",
		envBody(id, "again", nil, 1.1))

	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 1.1, neg.last(t).Tunables.Temperature, 1e-9)
}

func TestServer_RegenerateSkipsStreamFlag(t *testing.T) {
	neg := &stubNegotiator{reply: "ok"}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, "hi"))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/regenerate", envBody(id, true, 1.5))

	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 1.5, neg.last(t).Tunables.Temperature, 1e-9)
}

func TestServer_SubmitHonorsExplicitZeroTunables(t *testing.T) {
	neg := &stubNegotiator{reply: "ok"}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit",
		envBody(id, "hi", false, 0, 256, 0.7, 0))

	require.Equal(t, http.StatusOK, w.Code)
	got := neg.last(t).Tunables
	assert.Zero(t, got.Temperature, "explicit zero temperature must not be rewritten")
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.7, got.TopP, 1e-9)
	assert.Zero(t, got.TopK, "explicit zero top_k must not be rewritten")
}

func TestServer_SubmitDefaultsTunables(t *testing.T) {
	neg := &stubNegotiator{reply: "ok"}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, "hi"))

	require.Equal(t, http.StatusOK, w.Code)
	got := neg.last(t).Tunables
	assert.InDelta(t, backend.DefaultTemperature, got.Temperature, 1e-9)
	assert.Equal(t, backend.DefaultMaxTokens, got.MaxTokens)
}

func TestServer_SubmitEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message must not be empty")
}

func TestServer_SubmitMalformedBody(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_SubmitExhaustedBackend(t *testing.T) {
	neg := &stubNegotiator{err: auraerr.New(auraerr.CodeBackendAllExhausted, "all endpoint variants failed")}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, "hi"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "all_exhausted")
}

func TestServer_SubmitUnauthorizedSuggestsKeyCheck(t *testing.T) {
	neg := &stubNegotiator{err: auraerr.New(auraerr.CodeBackendAuthUnauthorized, "backend rejected credentials")}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, "hi"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp struct {
		Error      string `json:"error"`
		Suggestion string `json:"suggestion"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Suggestion, "API key")
}

func TestServer_RegenerateReplacesReply(t *testing.T) {
	neg := &stubNegotiator{reply: "first"}
	env := newTestEnv(t, neg)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, "hi"))
	require.Equal(t, http.StatusOK, w.Code)

	neg.mu.Lock()
	neg.reply = "second"
	neg.mu.Unlock()

	w = env.do(t, http.MethodPost, "/api/regenerate", envBody(id))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "second")

	turns, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[1].Text)
}

func TestServer_RegenerateEmptySession(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/regenerate", envBody(id))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "nothing_to_regenerate")
}

func TestServer_RegenerateUnknownSession(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})

	w := env.do(t, http.MethodPost, "/api/regenerate", envBody("missing"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ClearEmptiesHistory(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/submit", envBody(id, "hi"))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/clear", envBody(id))
	require.Equal(t, http.StatusOK, w.Code)

	turns, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestServer_Greeting(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})

	w := env.do(t, http.MethodGet, "/api/greeting", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "How can I help you today?")
}

func TestServer_StatusReportsVariants(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})

	w := env.do(t, http.MethodGet, "/api/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Variants map[string]health.Metrics `json:"variants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp.Variants, "run_predict")
	assert.True(t, resp.Variants["run_predict"].Preferred)
}

func TestServer_StreamRevealsReply(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "hiya"})
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/stream", envBody(id, "hello"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	assert.Contains(t, body, "event: reveal")
	// Prefixes grow one character per frame and the final frame carries
	// the full text with done set.
	assert.Contains(t, body, `"prefix":"h"`)
	assert.Contains(t, body, `"prefix":"hiya","done":true`)
	assert.Contains(t, body, id)
}

func TestServer_StreamUnknownSessionRecovers(t *testing.T) {
	env := newTestEnv(t, &stubNegotiator{reply: "ok"})

	w := env.do(t, http.MethodPost, "/api/stream", envBody("stale", "hello"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"done":true`)
	assert.NotContains(t, w.Body.String(), `"session_id":"stale"`)
}
