// Package ollama implements the secondary llm.Client against a local
// Ollama-compatible /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/sermonforge/internal/config"
	"github.com/jo-hoe/sermonforge/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client calls a local Ollama server's /api/chat endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float32
	numCtx      int
}

// New creates an Ollama client from cfg.
func New(cfg config.LLMEndpointConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second // local models can be slow to warm up
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		numCtx:      cfg.NumCtx,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// SubmitPrompt sends prompt as a single user-role chat turn.
func (c *Client) SubmitPrompt(ctx context.Context, prompt string) (llm.Result, error) {
	options := map[string]any{}
	if c.temperature != 0 {
		options["temperature"] = c.temperature
	}
	if c.numCtx != 0 {
		options["num_ctx"] = c.numCtx
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return llm.Result{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Result{}, ctx.Err()
		}
		return llm.Result{}, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return llm.Result{}, fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return llm.Result{}, fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return llm.Result{Kind: llm.KindEmpty, Message: "empty completion"}, nil
	}
	return llm.Result{OK: true, Output: out.Message.Content}, nil
}
