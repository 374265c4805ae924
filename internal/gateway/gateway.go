// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

// Package gateway orchestrates generation requests: it snapshots
// conversation history, drives the backend negotiator, and applies the
// outcome back to the store under a per-session serialization lane.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/aura-dev/aura/internal/backend"
	"github.com/aura-dev/aura/internal/store"
	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// DefaultHistoryWindow is the number of trailing turns included in a
// generation request. The backend only ever sees recent history.
const DefaultHistoryWindow = 10

// DefaultCacheSize bounds the repeated-prompt reply cache.
const DefaultCacheSize = 100

// Negotiator is the backend contract the gateway drives.
type Negotiator interface {
	Negotiate(ctx context.Context, req backend.Request) (backend.Result, error)
}

// Config holds gateway construction options.
type Config struct {
	// HistoryWindow limits how many trailing turns are sent to the
	// backend; zero means DefaultHistoryWindow, negative means the full
	// history.
	HistoryWindow int
	// CacheSize bounds the repeated-prompt cache; zero means
	// DefaultCacheSize, negative disables it.
	CacheSize int
}

// Result is a completed generation.
type Result struct {
	Text    string
	Variant string
	Cached  bool
}

// Gateway coordinates ConversationStore and the negotiator. All
// mutations for one session run on that session's lane, one at a time.
type Gateway struct {
	store      store.ConversationStore
	negotiator Negotiator
	lanes      *laneSet
	cache      *replyCache
	window     int
	nowFunc    func() time.Time // for testing
}

// New creates a Gateway over the given store and negotiator.
func New(st store.ConversationStore, neg Negotiator, cfg Config) *Gateway {
	window := cfg.HistoryWindow
	if window == 0 {
		window = DefaultHistoryWindow
	}

	cacheSize := cfg.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}

	return &Gateway{
		store:      st,
		negotiator: neg,
		lanes:      newLaneSet(),
		cache:      newReplyCache(cacheSize),
		window:     window,
		nowFunc:    time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (g *Gateway) SetNowFunc(fn func() time.Time) {
	g.nowFunc = fn
}

// Submit appends the user turn, negotiates a generation over the
// current history, and on success appends the assistant turn. On
// failure the user turn stays in history; the caller sees a tagged
// error, never a fault.
func (g *Gateway) Submit(ctx context.Context, sessionID, text string, tun backend.Tunables) (Result, error) {
	var res Result
	err := g.lanes.get(sessionID).Submit(ctx, func(ctx context.Context) error {
		var err error
		res, err = g.submitLocked(ctx, sessionID, text, tun)
		return err
	})
	return res, err
}

func (g *Gateway) submitLocked(ctx context.Context, sessionID, text string, tun backend.Tunables) (Result, error) {
	if err := g.store.AppendUser(ctx, sessionID, text); err != nil {
		return Result{}, err
	}

	if reply, ok := commandReply(text, g.nowFunc()); ok {
		if err := g.store.AppendAssistant(ctx, sessionID, reply); err != nil {
			return Result{}, err
		}
		slog.Debug("answered command shortcut", "session_id", sessionID)
		return Result{Text: reply}, nil
	}

	if reply, ok := g.cache.get(text); ok {
		if err := g.store.AppendAssistant(ctx, sessionID, reply); err != nil {
			return Result{}, err
		}
		slog.Debug("serving cached reply", "session_id", sessionID)
		return Result{Text: reply, Cached: true}, nil
	}

	res, err := g.generate(ctx, sessionID, tun)
	if err != nil {
		return Result{}, err
	}

	g.cache.put(text, res.Text)
	return res, nil
}

// Regenerate discards the last assistant turn and produces a fresh one
// from the same user turn. The total turn count is unchanged on
// success.
func (g *Gateway) Regenerate(ctx context.Context, sessionID string, tun backend.Tunables) (Result, error) {
	var res Result
	err := g.lanes.get(sessionID).Submit(ctx, func(ctx context.Context) error {
		var err error
		res, err = g.regenerateLocked(ctx, sessionID, tun)
		return err
	})
	return res, err
}

func (g *Gateway) regenerateLocked(ctx context.Context, sessionID string, tun backend.Tunables) (Result, error) {
	if err := g.store.PopLastIfAssistant(ctx, sessionID); err != nil {
		return Result{}, err
	}

	turns, err := g.store.Get(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if n := len(turns); n == 0 || turns[n-1].Role != store.RoleUser {
		return Result{}, auraerr.New(auraerr.CodeGatewayNothingToRegenerate,
			"no user turn to regenerate from",
			auraerr.FieldSessionID(sessionID),
		)
	}

	return g.generate(ctx, sessionID, tun)
}

// generate snapshots the history, negotiates, and appends the assistant
// turn on success.
func (g *Gateway) generate(ctx context.Context, sessionID string, tun backend.Tunables) (Result, error) {
	turns, err := g.store.Get(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	if g.window > 0 && len(turns) > g.window {
		turns = turns[len(turns)-g.window:]
	}

	// Tunables pass through untouched: the configuration edge fills
	// defaults, so an explicit zero (greedy temperature, disabled top-k)
	// reaches the backend as a zero.
	res, err := g.negotiator.Negotiate(ctx, backend.Request{
		Turns:    turns,
		Tunables: tun,
	})
	if err != nil {
		return Result{}, auraerr.With(err, auraerr.FieldSessionID(sessionID))
	}

	if err := g.store.AppendAssistant(ctx, sessionID, res.Text); err != nil {
		return Result{}, err
	}

	return Result{Text: res.Text, Variant: res.Variant}, nil
}

// Clear empties the session's history; the id remains valid.
func (g *Gateway) Clear(ctx context.Context, sessionID string) error {
	return g.lanes.get(sessionID).Submit(ctx, func(ctx context.Context) error {
		return g.store.Clear(ctx, sessionID)
	})
}

// History returns an immutable snapshot of the session's turns.
func (g *Gateway) History(ctx context.Context, sessionID string) ([]store.Turn, error) {
	return g.store.Get(ctx, sessionID)
}

// Close shuts down all session lanes.
func (g *Gateway) Close() {
	g.lanes.closeAll()
}
