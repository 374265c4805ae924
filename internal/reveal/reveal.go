// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

// Package reveal paces the display of a finalized assistant reply one
// character per tick, as a cancellable snapshot stream.
package reveal

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the pause between revealed characters.
const DefaultInterval = 15 * time.Millisecond

// Snapshot is one frame of an in-progress reveal. The terminal frame
// carries the full text and Done=true, signalling the caller to commit
// the message as a steady, non-animating turn.
type Snapshot struct {
	Prefix string
	Done   bool
}

// Scheduler reveals finalized strings incrementally. At most one reveal
// is active per Scheduler: starting a new one cancels any in-flight
// reveal and discards its partial state, so a display surface never
// animates two messages at once.
type Scheduler struct {
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScheduler returns a Scheduler ticking at the given interval;
// non-positive means DefaultInterval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval}
}

// Reveal starts revealing text and returns the snapshot stream. The
// channel is closed after the Done snapshot, or early when ctx is
// cancelled or a newer reveal starts; cancellation takes effect at the
// next tick boundary.
func (s *Scheduler) Reveal(ctx context.Context, text string) <-chan Snapshot {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan Snapshot)
	go s.run(ctx, text, out)
	return out
}

// Cancel stops any in-flight reveal.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, text string, out chan<- Snapshot) {
	defer close(out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	runes := []rune(text)
	for i := 1; i <= len(runes); i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := Snapshot{Prefix: string(runes[:i]), Done: i == len(runes)}
		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}
	}

	if len(runes) == 0 {
		select {
		case out <- Snapshot{Done: true}:
		case <-ctx.Done():
		}
	}
}
