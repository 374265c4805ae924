// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aura-dev/aura/internal/backend"
	"github.com/aura-dev/aura/internal/gateway"
	auraerr "github.com/aura-dev/aura/pkg/errors"
	"github.com/aura-dev/aura/pkg/health"
)

// Services bundles the gateway surface the HTTP handlers call into.
type Services struct {
	Gateway   *gateway.Gateway
	Lifecycle *gateway.Lifecycle

	// Metrics reports per-variant negotiation health for /api/status.
	Metrics func() map[string]health.Metrics

	// Defaults fills tunables the request leaves unset.
	Defaults backend.Tunables
}

// RegisterServices attaches the gateway services and mounts the chat
// API routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerChatRoutes()
	s.registerStreamRoute()
	s.registerStatusRoutes()
}

// envelope is the positional-array request body the legacy front end
// sends: {"data": [sessionID, message, ...]}.
type envelope struct {
	Data []json.RawMessage `json:"data"`
}

// dataResponse is the matching response wrapper: {"data": ...}.
type dataResponse struct {
	Data any `json:"data"`
}

// chatPayload is the submit/regenerate response body under "data".
type chatPayload struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

func (s *Server) registerChatRoutes() {
	// The positional {"data": [...]} envelope does not fit Huma's typed
	// handler signature, so these stay raw chi handlers with manual
	// OpenAPI entries, same as the streaming route.
	s.router.Post("/api/create_chat", s.handleCreateChat)
	s.router.Post("/api/submit", s.handleSubmit)
	s.router.Post("/api/regenerate", s.handleRegenerate)
	s.router.Post("/api/clear", s.handleClear)

	s.addEnvelopeOperation("create-chat", "/api/create_chat",
		"Create a conversation session", 0)
	s.addEnvelopeOperation("submit", "/api/submit",
		"Submit a message and receive the assistant reply", 2)
	s.addEnvelopeOperation("regenerate", "/api/regenerate",
		"Regenerate the last assistant reply", 1)
	s.addEnvelopeOperation("clear", "/api/clear",
		"Clear a session's history", 1)
}

// addEnvelopeOperation records an OpenAPI entry for a raw envelope
// endpoint. minItems describes the required positional arguments.
func (s *Server) addEnvelopeOperation(id, path, summary string, minItems int) {
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     summary,
		Tags:        []string{"chat"},
		RequestBody: &huma.RequestBody{
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type: "object",
						Properties: map[string]*huma.Schema{
							"data": {
								Type:        "array",
								MinItems:    &minItems,
								Description: "Positional arguments",
								Items:       &huma.Schema{},
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Result wrapped in a data envelope",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{
							Type: "object",
							Properties: map[string]*huma.Schema{
								"data": {},
							},
						},
					},
				},
			},
			"400": {Description: "Malformed request"},
			"401": {Description: "Backend rejected the configured credentials"},
			"404": {Description: "Unknown session"},
			"500": {Description: "All backend variants exhausted"},
		},
	})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	id, err := s.services.Lifecycle.EnsureSession(r.Context(), "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, id)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sessionID, text, err := env.chatArgs()
	if err != nil {
		s.writeError(w, err)
		return
	}

	tun, err := env.tunables(env.tunablesOffset(2), s.services.Defaults)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, usedID, err := s.services.Lifecycle.SubmitWithRecovery(r.Context(), sessionID, text, tun)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, chatPayload{Response: res.Text, SessionID: usedID})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sessionID, err := env.argString(0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tun, err := env.tunables(env.tunablesOffset(1), s.services.Defaults)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.services.Gateway.Regenerate(r.Context(), sessionID, tun)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, chatPayload{Response: res.Text, SessionID: sessionID})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sessionID, err := env.argString(0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.services.Gateway.Clear(r.Context(), sessionID); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, "ok")
}

func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "greeting",
		Method:      http.MethodGet,
		Path:        "/api/greeting",
		Summary:     "Time-of-day greeting",
		Tags:        []string{"chat"},
	}, func(ctx context.Context, _ *struct{}) (*GreetingResponse, error) {
		return &GreetingResponse{Body: dataResponse{Data: greetingNow(time.Now())}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Per-variant negotiation health",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*StatusResponse, error) {
		var variants map[string]health.Metrics
		if s.services != nil && s.services.Metrics != nil {
			variants = s.services.Metrics()
		}
		return &StatusResponse{Body: StatusBody{Variants: variants}}, nil
	})
}

// GreetingResponse wraps the greeting endpoint body.
type GreetingResponse struct {
	Body dataResponse
}

// StatusBody reports negotiation health per endpoint variant.
type StatusBody struct {
	Variants map[string]health.Metrics `json:"variants"`
}

// StatusResponse wraps the status endpoint body.
type StatusResponse struct {
	Body StatusBody
}

// greetingNow picks the salutation for the given local time.
func greetingNow(now time.Time) string {
	var salutation string
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		salutation = "Good morning"
	case h >= 12 && h < 17:
		salutation = "Good afternoon"
	case h >= 17 && h < 21:
		salutation = "Good evening"
	default:
		salutation = "Good night"
	}
	return salutation + "! I'm AURA, an AI assistant. How can I help you today?"
}

// errorBody is the JSON error shape the front end understands.
type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := auraerr.HTTPStatus(err)
	body := errorBody{
		Error: err.Error(),
		Code:  string(auraerr.CodeOf(err)),
	}
	if auraerr.IsUnauthorized(err) {
		body.Suggestion = "check the backend API key in your configuration"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "code", body.Code, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func decodeEnvelope(r *http.Request) (*envelope, error) {
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		return nil, auraerr.Wrap(err, auraerr.CodeServerRequestInvalid, "decoding request body")
	}
	return &env, nil
}

// chatArgs extracts the leading [sessionID, message] pair.
func (e *envelope) chatArgs() (string, string, error) {
	sessionID, err := e.argString(0)
	if err != nil {
		return "", "", err
	}
	text, err := e.argString(1)
	if err != nil {
		return "", "", err
	}
	if text == "" {
		return "", "", auraerr.New(auraerr.CodeServerRequestInvalid, "message must not be empty")
	}
	return sessionID, text, nil
}

// tunablesOffset returns where the tunables begin, given where the
// optional stream flag would sit. The flag is a boolean (or an explicit
// null placeholder); a number at that slot is already the temperature.
func (e *envelope) tunablesOffset(streamPos int) int {
	if streamPos >= len(e.Data) {
		return streamPos
	}
	raw := e.Data[streamPos]
	if len(raw) == 0 || string(raw) == "null" {
		return streamPos + 1
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return streamPos + 1
	}
	return streamPos
}

// tunables decodes optional generation overrides starting at position
// offset: [temperature, max_tokens, top_p, top_k]. Absent or null slots
// keep the configured defaults.
func (e *envelope) tunables(offset int, defaults backend.Tunables) (backend.Tunables, error) {
	tun := defaults

	if v, ok, err := e.argFloat(offset); err != nil {
		return tun, err
	} else if ok {
		tun.Temperature = v
	}
	if v, ok, err := e.argInt(offset + 1); err != nil {
		return tun, err
	} else if ok {
		tun.MaxTokens = v
	}
	if v, ok, err := e.argFloat(offset + 2); err != nil {
		return tun, err
	} else if ok {
		tun.TopP = v
	}
	if v, ok, err := e.argInt(offset + 3); err != nil {
		return tun, err
	} else if ok {
		tun.TopK = v
	}

	return tun, nil
}

func (e *envelope) argString(i int) (string, error) {
	if i >= len(e.Data) {
		return "", auraerr.Errorf(auraerr.CodeServerRequestInvalid,
			"data[%d] is required", i)
	}
	var s string
	if err := json.Unmarshal(e.Data[i], &s); err != nil {
		return "", auraerr.Errorf(auraerr.CodeServerRequestInvalid,
			"data[%d] must be a string", i)
	}
	return s, nil
}

func (e *envelope) argFloat(i int) (float64, bool, error) {
	raw, ok := e.arg(i)
	if !ok {
		return 0, false, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, auraerr.Errorf(auraerr.CodeServerRequestInvalid,
			"data[%d] must be a number", i)
	}
	return v, true, nil
}

func (e *envelope) argInt(i int) (int, bool, error) {
	raw, ok := e.arg(i)
	if !ok {
		return 0, false, nil
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, auraerr.Errorf(auraerr.CodeServerRequestInvalid,
			"data[%d] must be an integer", i)
	}
	return v, true, nil
}

// arg returns the raw slot when present and not JSON null.
func (e *envelope) arg(i int) (json.RawMessage, bool) {
	if i >= len(e.Data) || len(e.Data[i]) == 0 || string(e.Data[i]) == "null" {
		return nil, false
	}
	return e.Data[i], true
}
