// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auraerr "github.com/aura-dev/aura/pkg/errors"
)

func TestLaneExecutesFIFO(t *testing.T) {
	l := NewLane("sess-1")
	defer l.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	// Hold the lane so later submissions queue behind the first.
	gate := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Submit(context.Background(), func(context.Context) error {
			<-gate
			mu.Lock()
			order = append(order, 0)
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Submit(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		time.Sleep(20 * time.Millisecond) // enqueue in a known order
	}

	close(gate)
	wg.Wait()

	require.Len(t, order, 4)
	assert.Equal(t, 0, order[0], "held item must finish first")
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, order)
}

func TestLanePropagatesWorkError(t *testing.T) {
	l := NewLane("sess-1")
	defer l.Close()

	want := auraerr.New(auraerr.CodeBackendAllExhausted, "boom")
	got := l.Submit(context.Background(), func(context.Context) error { return want })
	assert.Equal(t, want, got)
}

func TestLaneRecoverFromPanic(t *testing.T) {
	l := NewLane("sess-1")
	defer l.Close()

	err := l.Submit(context.Background(), func(context.Context) error {
		panic("worker exploded")
	})
	require.Error(t, err)
	assert.True(t, auraerr.HasCode(err, auraerr.CodeGatewayLoopFailure))

	// The lane keeps working after a panic.
	assert.NoError(t, l.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestLaneCancelledContext(t *testing.T) {
	l := NewLane("sess-1")
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := l.Submit(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestLaneSubmitAfterClose(t *testing.T) {
	l := NewLane("sess-1")
	l.Close()

	err := l.Submit(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, auraerr.HasCode(err, auraerr.CodeGatewayLaneClosed))
}

func TestLaneCloseIsIdempotent(t *testing.T) {
	l := NewLane("sess-1")
	l.Close()
	l.Close()
}

func TestLaneSetReusesLanePerSession(t *testing.T) {
	s := newLaneSet()
	defer s.closeAll()

	a := s.get("sess-a")
	assert.Same(t, a, s.get("sess-a"))
	assert.NotSame(t, a, s.get("sess-b"))
}
