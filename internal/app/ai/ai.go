/*
Package ai provides the reply-generation collaborator consumed by the relay.

Generation runs against an Ollama server. The relay treats this package as a
fallible external dependency: any failure degrades to FallbackReply rather
than silence.
*/
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FallbackReply is sent in place of generated content when the collaborator
// fails (transport error, quota, bad status).
const FallbackReply = "Sorry, I can't answer that right now. Please try again in a moment."

// requestTimeout bounds a single generation call.
const requestTimeout = 30 * time.Second

// Responder generates a reply to a user message.
type Responder interface {
	GenerateReply(ctx context.Context, content string) (string, error)
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// OllamaResponder implements Responder against the Ollama /api/generate endpoint.
type OllamaResponder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaResponder creates a responder for the given Ollama base URL and model.
func NewOllamaResponder(baseURL, model string) *OllamaResponder {
	return &OllamaResponder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// GenerateReply asks the model for a short chat reply to the given content.
func (o *OllamaResponder) GenerateReply(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(
		"You are a helpful assistant in a group chat room. "+
			"Reply to the following message briefly and conversationally. "+
			"Only provide the reply without any explanations or additional text.\n\n\n%s",
		content)

	reqBody, _ := json.Marshal(ollamaRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	reply := strings.TrimSpace(result.Response)
	if reply == "" {
		return "", fmt.Errorf("ollama returned empty response")
	}

	return reply, nil
}
