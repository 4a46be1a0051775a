package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReplySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "what time is it")

		json.NewEncoder(w).Encode(ollamaResponse{Response: "  half past three  "})
	}))
	defer srv.Close()

	responder := NewOllamaResponder(srv.URL, "llama3.2")
	reply, err := responder.GenerateReply(context.Background(), "what time is it")
	require.NoError(t, err)
	assert.Equal(t, "half past three", reply)
}

func TestGenerateReplyBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	responder := NewOllamaResponder(srv.URL, "missing")
	_, err := responder.GenerateReply(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGenerateReplyEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{Response: "   "})
	}))
	defer srv.Close()

	responder := NewOllamaResponder(srv.URL, "llama3.2")
	_, err := responder.GenerateReply(context.Background(), "hello")
	require.Error(t, err)
}

func TestGenerateReplyRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	responder := NewOllamaResponder(srv.URL+"/", "llama3.2")
	_, err := responder.GenerateReply(ctx, "hello")
	require.Error(t, err)
}
