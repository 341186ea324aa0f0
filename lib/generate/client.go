// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mindroom-ai/mindroom/dispatch"
)

// Client calls a generation backend over HTTP. It implements
// [dispatch.Generator].
type Client struct {
	baseURL    string
	token      string
	prompts    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config configures a backend client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8090".
	// Requests go to BaseURL + "/v1/generate".
	BaseURL string

	// Token, when non-empty, is sent as a bearer token.
	Token string

	// Prompts maps agent names to their system prompts. Team modes
	// generate for several agents through one client, so the prompt
	// is resolved per request from the agent name.
	Prompts map[string]string

	// HTTPClient defaults to a client with no overall timeout, since
	// streaming responses are open-ended. Cancellation comes from the
	// request context.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generate: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		prompts:    cfg.Prompts,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BackendError is a non-2xx response from the backend, or an error
// reported inside an SSE stream (in which case StatusCode is zero).
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("generate: backend error: %s", e.Message)
	}
	return fmt.Sprintf("generate: backend returned %d: %s", e.StatusCode, e.Message)
}

type wireMessage struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type wirePartial struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

type wireRequest struct {
	Agent     string        `json:"agent"`
	SessionID string        `json:"session_id"`
	System    string        `json:"system,omitempty"`
	Prompt    string        `json:"prompt"`
	History   []wireMessage `json:"history,omitempty"`
	Partials  []wirePartial `json:"partials,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
}

type wireResponse struct {
	Text string `json:"text"`
}

func (client *Client) buildWireRequest(req dispatch.Request, stream bool) wireRequest {
	wire := wireRequest{
		Agent:     req.Agent,
		SessionID: req.SessionID,
		System:    client.prompts[req.Agent],
		Prompt:    req.Prompt,
		Stream:    stream,
	}
	for _, message := range req.History {
		wire.History = append(wire.History, wireMessage{
			Sender:    message.Sender,
			Body:      message.Body,
			Timestamp: message.Timestamp,
		})
	}
	for _, partial := range req.Partials {
		wire.Partials = append(wire.Partials, wirePartial{
			Agent: partial.Agent,
			Text:  partial.Text,
		})
	}
	return wire
}

// Generate blocks until the backend returns the full response text.
func (client *Client) Generate(ctx context.Context, req dispatch.Request) (string, error) {
	httpResponse, err := client.post(ctx, client.buildWireRequest(req, false), false)
	if err != nil {
		return "", err
	}
	defer httpResponse.Body.Close()

	var wire wireResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wire); err != nil {
		return "", fmt.Errorf("generate: decoding response: %w", err)
	}
	return wire.Text, nil
}

// Stream returns incremental deltas from the backend. The channel
// closes when the backend signals completion; a final chunk with Err
// set reports mid-stream failure.
func (client *Client) Stream(ctx context.Context, req dispatch.Request) (<-chan dispatch.Chunk, error) {
	httpResponse, err := client.post(ctx, client.buildWireRequest(req, true), true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan dispatch.Chunk)
	go client.pumpStream(ctx, httpResponse.Body, chunks)
	return chunks, nil
}

// pumpStream translates SSE events into chunks until "done", EOF, or
// an error. It owns closing both the response body and the channel.
func (client *Client) pumpStream(ctx context.Context, body io.ReadCloser, chunks chan<- dispatch.Chunk) {
	defer close(chunks)
	defer body.Close()

	emit := func(chunk dispatch.Chunk) bool {
		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := newSSEScanner(body)
	for scanner.next() {
		event := scanner.event()
		switch event.kind {
		case "delta", "":
			var delta struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(event.data), &delta); err != nil {
				emit(dispatch.Chunk{Err: fmt.Errorf("generate: parsing delta: %w", err)})
				return
			}
			if delta.Text == "" {
				continue
			}
			if !emit(dispatch.Chunk{Delta: delta.Text}) {
				return
			}
		case "error":
			var failure struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal([]byte(event.data), &failure); err != nil || failure.Message == "" {
				failure.Message = event.data
			}
			emit(dispatch.Chunk{Err: &BackendError{Message: failure.Message}})
			return
		case "done":
			return
		default:
			client.logger.Debug("ignoring unknown stream event", "event", event.kind)
		}
	}
	if err := scanner.err(); err != nil {
		emit(dispatch.Chunk{Err: fmt.Errorf("generate: reading stream: %w", err)})
	}
}

func (client *Client) post(ctx context.Context, wire wireRequest, streaming bool) (*http.Response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("generate: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		client.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generate: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if streaming {
		httpRequest.Header.Set("Accept", "text/event-stream")
	}
	if client.token != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+client.token)
	}

	started := time.Now()
	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("generate: sending request: %w", err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readBackendError(httpResponse)
	}

	client.logger.Debug("generation request accepted",
		"agent", wire.Agent,
		"streaming", streaming,
		"elapsed", time.Since(started))
	return httpResponse, nil
}

// readBackendError parses {"error":{"message":"..."}} bodies, falling
// back to the raw body text.
func readBackendError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		return &BackendError{
			StatusCode: httpResponse.StatusCode,
			Message:    wire.Error.Message,
		}
	}
	return &BackendError{
		StatusCode: httpResponse.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
