// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// revealFrame is one SSE data payload: the reply prefix revealed so
// far, with done=true on the final frame.
type revealFrame struct {
	Prefix    string `json:"prefix"`
	Done      bool   `json:"done"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) registerStreamRoute() {
	s.router.Post("/api/stream", s.handleStream)

	// The reveal stream needs raw http.ResponseWriter access for SSE, so
	// it cannot use Huma's standard handler signature. The chi route
	// above handles requests; this entry documents it.
	minItems := 2
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "stream",
		Method:      http.MethodPost,
		Path:        "/api/stream",
		Summary:     "Submit a message and stream the reply reveal via SSE",
		Tags:        []string{"chat"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type: "object",
						Properties: map[string]*huma.Schema{
							"data": {
								Type:        "array",
								MinItems:    &minItems,
								Description: "Positional arguments: [session_id, message, temperature?, max_tokens?, top_p?, top_k?]",
								Items:       &huma.Schema{},
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Reveal frames as server-sent events, terminated by a done frame",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Server-sent event stream",
						},
					},
				},
			},
			"400": {Description: "Malformed request"},
			"404": {Description: "Unknown session"},
		},
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
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

	// The full reply is negotiated up front; the stream only paces its
	// display.
	res, usedID, err := s.services.Lifecycle.SubmitWithRecovery(r.Context(), sessionID, text, tun)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		// httptest.ResponseRecorder doesn't implement Flusher,
		// but we still write the events for testability.
		flusher = nil
	}

	// Client disconnect cancels the reveal through r.Context(); a newer
	// stream for the same session cancels it through the scheduler.
	snaps := s.revealerFor(usedID).Reveal(r.Context(), res.Text)
	for snap := range snaps {
		frame := revealFrame{Prefix: snap.Prefix, Done: snap.Done}
		if snap.Done {
			frame.SessionID = usedID
		}
		payload, merr := json.Marshal(frame)
		if merr != nil {
			return
		}
		if _, werr := fmt.Fprintf(w, "event: reveal\ndata: %s\n\n", payload); werr != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
