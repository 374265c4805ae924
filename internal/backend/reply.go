// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package backend

import (
	"encoding/json"

	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// replyEnvelope covers the object-shaped reply payloads seen across
// backend deployments. Fields are probed in matcher order, not by
// position here.
type replyEnvelope struct {
	Data     json.RawMessage `json:"data"`
	Response *string         `json:"response"`
	Choices  []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// matcher is one candidate interpretation of a raw reply payload. New
// reply shapes are supported by appending a matcher, not by editing
// control flow.
type matcher struct {
	name    string
	extract func(raw []byte) (string, bool)
}

// replyMatchers is the ordered shape list. First match wins.
var replyMatchers = []matcher{
	{"bare_string", extractBareString},
	{"data_pair_history", extractDataPairHistory},
	{"data_string", extractDataString},
	{"response_field", extractResponseField},
	{"chat_completion", extractChatCompletion},
}

// maxDiagnosticPayload bounds how much of an unrecognized payload is
// attached to the extraction error.
const maxDiagnosticPayload = 512

// ExtractText normalizes an arbitrary backend reply payload to its
// generated text. An unrecognized shape yields an extraction error
// carrying a truncated copy of the payload; the negotiator treats that
// as a recoverable per-variant failure.
func ExtractText(raw []byte) (string, error) {
	for _, m := range replyMatchers {
		if text, ok := m.extract(raw); ok {
			return text, nil
		}
	}

	diag := raw
	if len(diag) > maxDiagnosticPayload {
		diag = diag[:maxDiagnosticPayload]
	}
	return "", auraerr.New(auraerr.CodeBackendExtractInvalid,
		"no matcher recognized the reply payload",
		auraerr.Field("payload", string(diag)),
	)
}

func extractBareString(raw []byte) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// extractDataPairHistory handles gradio chatbot replies: the data array's
// first element is itself an array of [speaker, text] pairs, the last of
// which carries the fresh assistant text.
func extractDataPairHistory(raw []byte) (string, bool) {
	env, ok := decodeEnvelope(raw)
	if !ok || len(env.Data) == 0 {
		return "", false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(env.Data, &elems); err != nil || len(elems) == 0 {
		return "", false
	}

	var pairs [][]string
	if err := json.Unmarshal(elems[0], &pairs); err != nil || len(pairs) == 0 {
		return "", false
	}

	last := pairs[len(pairs)-1]
	if len(last) < 2 {
		return "", false
	}
	return last[1], true
}

// extractDataString handles data fields that are a bare string or an
// array whose first element is a string.
func extractDataString(raw []byte) (string, bool) {
	env, ok := decodeEnvelope(raw)
	if !ok || len(env.Data) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(env.Data, &s); err == nil {
		return s, true
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(env.Data, &elems); err != nil || len(elems) == 0 {
		return "", false
	}
	if err := json.Unmarshal(elems[0], &s); err != nil {
		return "", false
	}
	return s, true
}

func extractResponseField(raw []byte) (string, bool) {
	env, ok := decodeEnvelope(raw)
	if !ok || env.Response == nil {
		return "", false
	}
	return *env.Response, true
}

func extractChatCompletion(raw []byte) (string, bool) {
	env, ok := decodeEnvelope(raw)
	if !ok || len(env.Choices) == 0 || env.Choices[0].Message.Content == nil {
		return "", false
	}
	return *env.Choices[0].Message.Content, true
}

func decodeEnvelope(raw []byte) (replyEnvelope, bool) {
	var env replyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return replyEnvelope{}, false
	}
	return env, true
}
