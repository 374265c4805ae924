// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package backend

import (
	"strings"

	"github.com/aura-dev/aura/internal/store"
	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// Tunables are the generation parameters carried by a request. Zero
// fields take the documented defaults.
type Tunables struct {
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

const (
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultTopK        = 50
	DefaultMaxTokens   = 1024
)

// WithDefaults returns a copy with zero fields replaced by the defaults.
func (t Tunables) WithDefaults() Tunables {
	if t.Temperature == 0 {
		t.Temperature = DefaultTemperature
	}
	if t.TopP == 0 {
		t.TopP = DefaultTopP
	}
	if t.TopK == 0 {
		t.TopK = DefaultTopK
	}
	if t.MaxTokens == 0 {
		t.MaxTokens = DefaultMaxTokens
	}
	return t
}

// Request is the transient value handed to the negotiator: an immutable
// history snapshot plus tunables. Turns must end with the user turn the
// backend is expected to answer.
type Request struct {
	Turns    []store.Turn
	Tunables Tunables
}

// lastUserText returns the text of the trailing user turn, or "".
func (r Request) lastUserText() string {
	if n := len(r.Turns); n > 0 && r.Turns[n-1].Role == store.RoleUser {
		return r.Turns[n-1].Text
	}
	return ""
}

// prompt flattens the history into the "role: text" transcript format
// the text-generation deployments expect, ending with an open
// "assistant:" cue.
func (r Request) prompt() string {
	var b strings.Builder
	for _, turn := range r.Turns {
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	b.WriteString("assistant:")
	return b.String()
}

// pairHistory converts completed exchanges into gradio-style
// [user, assistant] pairs, excluding the trailing unanswered user turn.
func (r Request) pairHistory() [][2]string {
	var pairs [][2]string
	for i := 0; i+1 < len(r.Turns); i++ {
		if r.Turns[i].Role == store.RoleUser && r.Turns[i+1].Role == store.RoleAssistant {
			pairs = append(pairs, [2]string{r.Turns[i].Text, r.Turns[i+1].Text})
		}
	}
	return pairs
}

// chatMessage is the chat-completion wire form of a turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r Request) chatMessages() []chatMessage {
	msgs := make([]chatMessage, 0, len(r.Turns))
	for _, turn := range r.Turns {
		msgs = append(msgs, chatMessage{Role: string(turn.Role), Content: turn.Text})
	}
	return msgs
}

// Variant is one candidate (path, payload shape, extraction rule) for
// talking to the remote backend. The variant list is static
// configuration; order is the sole precedence rule.
type Variant struct {
	Name         string
	Path         string
	BuildPayload func(Request) any
	Extract      func(raw []byte) (string, error)
}

// DefaultVariants returns the built-in probe order. The exact set a
// deployment needs is configuration; names here are the configuration
// vocabulary.
func DefaultVariants() []Variant {
	return []Variant{
		{
			Name: "run_predict",
			Path: "/run/predict",
			BuildPayload: func(r Request) any {
				return map[string]any{"data": []any{r.prompt()}}
			},
			Extract: ExtractText,
		},
		{
			Name: "run_api",
			Path: "/run/api",
			BuildPayload: func(r Request) any {
				t := r.Tunables
				return map[string]any{
					"data": []any{r.prompt(), t.Temperature, t.TopP, t.TopK, t.MaxTokens},
				}
			},
			Extract: ExtractText,
		},
		{
			Name: "run_respond_async",
			Path: "/run/respond_async",
			BuildPayload: func(r Request) any {
				return map[string]any{"data": []any{r.lastUserText(), r.pairHistory()}}
			},
			Extract: ExtractText,
		},
		{
			Name: "run_chat",
			Path: "/run/chat",
			BuildPayload: func(r Request) any {
				return map[string]any{"data": []any{r.lastUserText()}}
			},
			Extract: ExtractText,
		},
		{
			Name: "api_chat",
			Path: "/api/chat",
			BuildPayload: func(r Request) any {
				t := r.Tunables
				return map[string]any{
					"messages":    r.chatMessages(),
					"temperature": t.Temperature,
					"top_p":       t.TopP,
					"top_k":       t.TopK,
					"max_tokens":  t.MaxTokens,
					"stream":      false,
				}
			},
			Extract: ExtractText,
		},
	}
}

// VariantsByName resolves configured variant names against the built-in
// set, preserving the configured order. An empty name list means the
// full default order.
func VariantsByName(names []string) ([]Variant, error) {
	defaults := DefaultVariants()
	if len(names) == 0 {
		return defaults, nil
	}

	byName := make(map[string]Variant, len(defaults))
	for _, v := range defaults {
		byName[v.Name] = v
	}

	variants := make([]Variant, 0, len(names))
	for _, name := range names {
		v, ok := byName[name]
		if !ok {
			return nil, auraerr.Errorf(auraerr.CodeBackendConfigInvalid,
				"unknown backend variant %q", name)
		}
		variants = append(variants, v)
	}
	return variants, nil
}
