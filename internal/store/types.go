// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package store

import "time"

// Role identifies the sender of a turn in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. A Turn is immutable once
// appended; the only removal permitted is PopLastIfAssistant, used by
// regenerate.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is a single conversation's identity and its ordered Turn
// history. Callers never receive the live Turns slice; Get returns a
// copy.
type Session struct {
	ID        string
	Turns     []Turn
	CreatedAt time.Time
	UpdatedAt time.Time
}
