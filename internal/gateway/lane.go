// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package gateway

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// workItem represents a unit of work submitted to a Lane.
type workItem struct {
	fn     func(context.Context) error
	ctx    context.Context
	result chan<- error
}

// Lane serialises mutations for a single session. Work submitted via
// Submit executes one at a time in FIFO order on a background
// goroutine, so submit/regenerate/clear for one session never overlap
// while distinct sessions proceed independently.
type Lane struct {
	sessionID string
	queue     chan workItem
	done      chan struct{}
	closing   chan struct{}

	once sync.Once
}

// NewLane creates a Lane for the given session and starts its
// processing goroutine. Call Close when the lane is no longer needed.
func NewLane(sessionID string) *Lane {
	l := &Lane{
		sessionID: sessionID,
		queue:     make(chan workItem, 64),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.done)
	for {
		select {
		case w := <-l.queue:
			l.executeWork(w)
		case <-l.closing:
			// Drain anything already queued before exiting.
			for {
				select {
				case w := <-l.queue:
					l.executeWork(w)
				default:
					return
				}
			}
		}
	}
}

func (l *Lane) executeWork(w workItem) {
	if err := w.ctx.Err(); err != nil {
		w.result <- err
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("lane worker panic recovered",
					"session_id", l.sessionID,
					"panic", r,
					"stack", string(debug.Stack()))
				err = auraerr.Errorf(auraerr.CodeGatewayLoopFailure,
					"worker panic: %v", r)
			}
		}()
		err = w.fn(w.ctx)
	}()

	w.result <- err
}

// Submit enqueues fn for execution on this lane and blocks until it
// completes. If ctx is cancelled before execution begins, ctx.Err() is
// returned without executing fn. Returns an error if the lane has been
// closed.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Non-blocking check first so we never send to a closed lane.
	select {
	case <-l.closing:
		return auraerr.New(auraerr.CodeGatewayLaneClosed, "lane is closed",
			auraerr.FieldSessionID(l.sessionID))
	default:
	}

	result := make(chan error, 1)
	w := workItem{fn: fn, ctx: ctx, result: result}

	select {
	case l.queue <- w:
	case <-l.closing:
		return auraerr.New(auraerr.CodeGatewayLaneClosed, "lane is closed",
			auraerr.FieldSessionID(l.sessionID))
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the lane after draining queued work and waits for the
// goroutine to exit. Safe to call more than once.
func (l *Lane) Close() {
	l.once.Do(func() { close(l.closing) })
	<-l.done
}

// laneSet lazily allocates one Lane per session id.
type laneSet struct {
	mu    sync.Mutex
	lanes map[string]*Lane
}

func newLaneSet() *laneSet {
	return &laneSet{lanes: make(map[string]*Lane)}
}

func (s *laneSet) get(sessionID string) *Lane {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lanes[sessionID]; ok {
		return l
	}
	l := NewLane(sessionID)
	s.lanes[sessionID] = l
	return l
}

func (s *laneSet) closeAll() {
	s.mu.Lock()
	lanes := make([]*Lane, 0, len(s.lanes))
	for _, l := range s.lanes {
		lanes = append(lanes, l)
	}
	s.lanes = make(map[string]*Lane)
	s.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}
