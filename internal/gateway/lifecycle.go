// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package gateway

import (
	"context"
	"log/slog"

	"github.com/aura-dev/aura/internal/backend"
	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// Lifecycle manages session identifiers: ensuring one exists and
// recreating one the gateway reports as gone.
type Lifecycle struct {
	gateway *Gateway
}

// NewLifecycle returns a Lifecycle over the given gateway.
func NewLifecycle(g *Gateway) *Lifecycle {
	return &Lifecycle{gateway: g}
}

// EnsureSession returns id when it names a live session, otherwise a
// freshly created one.
func (l *Lifecycle) EnsureSession(ctx context.Context, id string) (string, error) {
	if id != "" {
		if _, err := l.gateway.store.Get(ctx, id); err == nil {
			return id, nil
		} else if !auraerr.IsNotFound(err) {
			return "", err
		}
	}
	return l.gateway.store.Create(ctx)
}

// RecreateOnExpiry allocates a replacement for an expired session id.
// The caller retries its operation exactly once with the returned id.
func (l *Lifecycle) RecreateOnExpiry(ctx context.Context, expired string) (string, error) {
	id, err := l.gateway.store.Create(ctx)
	if err != nil {
		return "", err
	}
	slog.Info("recreated expired session",
		"expired_session_id", expired,
		"session_id", id,
	)
	return id, nil
}

// SubmitWithRecovery runs the recover-and-retry-once state machine:
// Attempt, on SessionNotFound recreate a session, retry once, done. Any
// second failure propagates; there is no retry loop. It returns the
// session id the result belongs to, which differs from the input only
// on the recovery path.
func (l *Lifecycle) SubmitWithRecovery(ctx context.Context, sessionID, text string, tun backend.Tunables) (Result, string, error) {
	res, err := l.gateway.Submit(ctx, sessionID, text, tun)
	if err == nil || !auraerr.IsNotFound(err) {
		return res, sessionID, err
	}

	fresh, cerr := l.RecreateOnExpiry(ctx, sessionID)
	if cerr != nil {
		return Result{}, sessionID, cerr
	}

	res, err = l.gateway.Submit(ctx, fresh, text, tun)
	return res, fresh, err
}
