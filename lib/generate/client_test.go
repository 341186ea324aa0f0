// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mindroom-ai/mindroom/dispatch"
	"github.com/mindroom-ai/mindroom/routing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL: server.URL,
		Token:   "sesame",
		Prompts: map[string]string{"calculator": "You do arithmetic."},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestGenerate(t *testing.T) {
	var received wireRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			t.Errorf("path = %q, want /v1/generate", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sesame" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(wireResponse{Text: "forty-two"})
	})

	text, err := client.Generate(t.Context(), dispatch.Request{
		Agent:     "calculator",
		SessionID: "!room:example.com:$root",
		Prompt:    "what is 6*7?",
		History: []routing.HistoryMessage{
			{Sender: "@alice:example.com", Body: "hi", Timestamp: 100},
		},
		Partials: []dispatch.Partial{{Agent: "code", Text: "draft"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "forty-two" {
		t.Errorf("text = %q, want %q", text, "forty-two")
	}

	if received.Stream {
		t.Error("blocking request marked as streaming")
	}
	if received.Agent != "calculator" || received.SessionID != "!room:example.com:$root" {
		t.Errorf("request identity = %q/%q", received.Agent, received.SessionID)
	}
	if received.System != "You do arithmetic." {
		t.Errorf("system prompt = %q", received.System)
	}
	if len(received.History) != 1 || received.History[0].Body != "hi" {
		t.Errorf("history = %+v", received.History)
	}
	if len(received.Partials) != 1 || received.Partials[0].Agent != "code" {
		t.Errorf("partials = %+v", received.Partials)
	}
}

func TestGenerateBackendError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	})

	_, err := client.Generate(t.Context(), dispatch.Request{Agent: "calculator"})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("error = %v, want *BackendError", err)
	}
	if backendErr.StatusCode != http.StatusTooManyRequests || backendErr.Message != "slow down" {
		t.Errorf("backend error = %+v", backendErr)
	}
}

func TestStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var received wireRequest
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if !received.Stream {
			t.Error("streaming request not marked as streaming")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: {\"text\":\"The answer \"}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "event: delta\ndata: {\"text\":\"is 42.\"}\n\n")
		fmt.Fprint(w, "event: done\ndata: {}\n\n")
	})

	chunks, err := client.Stream(t.Context(), dispatch.Request{Agent: "calculator", Prompt: "answer?"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var assembled strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		assembled.WriteString(chunk.Delta)
	}
	if got := assembled.String(); got != "The answer is 42." {
		t.Errorf("assembled = %q", got)
	}
}

func TestStreamMidStreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: {\"text\":\"partial\"}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"message\":\"model overloaded\"}\n\n")
	})

	chunks, err := client.Stream(t.Context(), dispatch.Request{Agent: "calculator"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var deltas []string
	var streamErr error
	for chunk := range chunks {
		if chunk.Err != nil {
			streamErr = chunk.Err
			continue
		}
		deltas = append(deltas, chunk.Delta)
	}
	if len(deltas) != 1 || deltas[0] != "partial" {
		t.Errorf("deltas = %v", deltas)
	}
	var backendErr *BackendError
	if !errors.As(streamErr, &backendErr) {
		t.Fatalf("stream error = %v, want *BackendError", streamErr)
	}
	if backendErr.Message != "model overloaded" {
		t.Errorf("message = %q", backendErr.Message)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New with empty base URL did not fail")
	}
}
