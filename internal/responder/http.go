package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"messaging-service/internal/models"
)

// HTTPResponder calls an external generation backend over plain HTTP.
// The backend receives the conversation history and the latest message and
// returns the reply text.
type HTTPResponder struct {
	url    string
	client *http.Client
}

// NewHTTPResponder constructs an HTTPResponder. A nil client uses
// http.DefaultClient; the per-call deadline comes from the gateway context.
func NewHTTPResponder(url string, client *http.Client) *HTTPResponder {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResponder{url: url, client: client}
}

type generateRequest struct {
	History []historyEntry `json:"history"`
	Message string         `json:"message"`
}

type historyEntry struct {
	SenderID int    `json:"sender_id"`
	Content  string `json:"content"`
}

type generateResponse struct {
	Reply string `json:"reply"`
}

// GenerateReply posts the conversation to the backend and returns its reply.
func (r *HTTPResponder) GenerateReply(ctx context.Context, history []models.Message, latest models.Message) (string, error) {
	body := generateRequest{Message: latest.Content}
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		body.History = append(body.History, historyEntry{SenderID: msg.SenderID, Content: msg.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation backend returned %d", resp.StatusCode)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// ErrNoBackend marks a deployment without a configured generation backend;
// every synthetic reply falls back to the canned response.
var ErrNoBackend = errors.New("no generation backend configured")

// StaticResponder returns a fixed reply or error; used in tests and as the
// stand-in when no backend is configured.
type StaticResponder struct {
	Reply string
	Err   error
}

// GenerateReply returns the configured reply or error.
func (r StaticResponder) GenerateReply(ctx context.Context, history []models.Message, latest models.Message) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	return r.Reply, nil
}
