// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package store

import "context"

// ConversationStore owns the mapping from session identifier to ordered
// turn history. It is the only shared mutable state in the gateway;
// implementations must be safe for concurrent use across independent
// sessions.
type ConversationStore interface {
	// Create allocates a fresh session with an empty history and returns
	// its identifier.
	Create(ctx context.Context) (string, error)

	// Get returns an immutable snapshot of the session's turns.
	Get(ctx context.Context, id string) ([]Turn, error)

	AppendUser(ctx context.Context, id, text string) error
	AppendAssistant(ctx context.Context, id, text string) error

	// PopLastIfAssistant removes the last turn when it is an assistant
	// turn. An empty history or a trailing user turn is a no-op, not an
	// error.
	PopLastIfAssistant(ctx context.Context, id string) error

	// Clear empties the session's turns; the identifier remains a valid
	// key.
	Clear(ctx context.Context, id string) error

	// Delete removes the session entirely.
	Delete(ctx context.Context, id string) error

	// Len reports the number of turns in the session.
	Len(ctx context.Context, id string) (int, error)

	Close() error
}
