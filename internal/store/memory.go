// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// MemoryStore is the in-memory ConversationStore. Sessions live for the
// lifetime of the process; durability is explicitly out of scope.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nowFunc  func() time.Time // for testing
}

var _ ConversationStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		nowFunc:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context) (string, error) {
	id := uuid.NewString()
	now := s.nowFunc()

	s.mu.Lock()
	s.sessions[id] = &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	s.mu.Unlock()

	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}

	// Copy so no caller retains a mutable reference to the live history.
	snapshot := make([]Turn, len(sess.Turns))
	copy(snapshot, sess.Turns)
	return snapshot, nil
}

func (s *MemoryStore) AppendUser(ctx context.Context, id, text string) error {
	return s.append(ctx, id, Turn{Role: RoleUser, Text: text})
}

func (s *MemoryStore) AppendAssistant(ctx context.Context, id, text string) error {
	return s.append(ctx, id, Turn{Role: RoleAssistant, Text: text})
}

func (s *MemoryStore) append(_ context.Context, id string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return notFound(id)
	}

	sess.Turns = append(sess.Turns, turn)
	sess.UpdatedAt = s.nowFunc()
	return nil
}

func (s *MemoryStore) PopLastIfAssistant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return notFound(id)
	}

	if n := len(sess.Turns); n > 0 && sess.Turns[n-1].Role == RoleAssistant {
		sess.Turns = sess.Turns[:n-1]
		sess.UpdatedAt = s.nowFunc()
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return notFound(id)
	}

	sess.Turns = nil
	sess.UpdatedAt = s.nowFunc()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return notFound(id)
	}

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Len(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, notFound(id)
	}
	return len(sess.Turns), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	return nil
}

// SetNowFunc overrides the time source (for testing).
func (s *MemoryStore) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.nowFunc = fn
	s.mu.Unlock()
}

func notFound(id string) error {
	return auraerr.New(auraerr.CodeStoreSessionNotFound,
		"session not found",
		auraerr.FieldSessionID(id),
	)
}
