package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jo-hoe/sermonforge/internal/config"
	"github.com/stretchr/testify/require"
)

func TestSubmitPrompt_Success(t *testing.T) {
	var seen chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		resp := chatResponse{Model: "llama3"}
		resp.Message.Role = "assistant"
		resp.Message.Content = "a local reply"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	c := New(config.LLMEndpointConfig{BaseURL: ts.URL, Model: "llama3", NumCtx: 8192}, 2*time.Second)

	result, err := c.SubmitPrompt(context.Background(), "edit this paragraph")
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, "a local reply", result.Output)
	require.Equal(t, "llama3", seen.Model)
	require.False(t, seen.Stream)
}

func TestSubmitPrompt_EmptyReplyIsNotOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer ts.Close()

	c := New(config.LLMEndpointConfig{BaseURL: ts.URL, Model: "llama3"}, 2*time.Second)

	result, err := c.SubmitPrompt(context.Background(), "x")
	require.NoError(t, err)
	require.False(t, result.OK)
}

func TestSubmitPrompt_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(config.LLMEndpointConfig{BaseURL: ts.URL, Model: "missing"}, 2*time.Second)

	_, err := c.SubmitPrompt(context.Background(), "x")
	require.Error(t, err)
}
