// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-dev/aura/internal/backend"
	"github.com/aura-dev/aura/internal/gateway"
	"github.com/aura-dev/aura/internal/store"
)

func TestSubmitAnswersTimeCommand(t *testing.T) {
	neg := echoNegotiator()
	g, st, id := newGateway(t, neg, gateway.Config{})
	g.SetNowFunc(func() time.Time {
		return time.Date(2026, 8, 29, 15, 4, 0, 0, time.UTC)
	})

	res, err := g.Submit(context.Background(), id, "what time is it?", backend.Tunables{})

	require.NoError(t, err)
	assert.Equal(t, "Current time is 3:04 PM", res.Text)
	assert.Empty(t, neg.seen(), "shortcuts must not reach the backend")

	// The exchange is still recorded as an ordinary turn pair.
	turns, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, store.RoleAssistant, turns[1].Role)
	assert.Equal(t, res.Text, turns[1].Text)
}

func TestSubmitAnswersPlayCommand(t *testing.T) {
	neg := echoNegotiator()
	g, _, id := newGateway(t, neg, gateway.Config{})

	res, err := g.Submit(context.Background(), id, "play Bohemian Rhapsody", backend.Tunables{})

	require.NoError(t, err)
	assert.Contains(t, res.Text, `"Bohemian Rhapsody"`)
	assert.Empty(t, neg.seen())
}

func TestSubmitAnswersJokeCommand(t *testing.T) {
	neg := echoNegotiator()
	g, _, id := newGateway(t, neg, gateway.Config{})

	res, err := g.Submit(context.Background(), id, "tell me a joke!", backend.Tunables{})

	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
	assert.Empty(t, neg.seen())
}

func TestSubmitAnswersGoodbyeCommand(t *testing.T) {
	neg := echoNegotiator()
	g, _, id := newGateway(t, neg, gateway.Config{})
	ctx := context.Background()

	res, err := g.Submit(ctx, id, "goodbye", backend.Tunables{})
	require.NoError(t, err)
	assert.Equal(t, "Goodbye!", res.Text)

	res, err = g.Submit(ctx, id, "exit", backend.Tunables{})
	require.NoError(t, err)
	assert.Equal(t, "Goodbye!", res.Text)

	assert.Empty(t, neg.seen())
}

func TestCommandRepliesAreNotCached(t *testing.T) {
	neg := echoNegotiator()
	g, _, id := newGateway(t, neg, gateway.Config{CacheSize: 10})
	ctx := context.Background()

	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	g.SetNowFunc(func() time.Time { return now })

	first, err := g.Submit(ctx, id, "what time is it?", backend.Tunables{})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	second, err := g.Submit(ctx, id, "what time is it?", backend.Tunables{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Text, second.Text, "shortcut answers must be recomputed, never cached")
	assert.False(t, second.Cached)
}

func TestCommandsMatchWholeWordsOnly(t *testing.T) {
	neg := echoNegotiator()
	g, _, id := newGateway(t, neg, gateway.Config{CacheSize: -1})

	// "display" contains "play" but is not the command.
	_, err := g.Submit(context.Background(), id, "display the settings", backend.Tunables{})

	require.NoError(t, err)
	assert.Len(t, neg.seen(), 1, "non-command text must negotiate")
}

func TestUnimplementedShortcutsFallThrough(t *testing.T) {
	neg := echoNegotiator()
	g, _, id := newGateway(t, neg, gateway.Config{CacheSize: -1})

	// Lookups needing an external service go to the backend like any
	// other prompt.
	_, err := g.Submit(context.Background(), id, "what is the weather in Paris", backend.Tunables{})

	require.NoError(t, err)
	assert.Len(t, neg.seen(), 1)
}
