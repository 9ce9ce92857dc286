// Package gemini implements the primary llm.Client against a Gemini-style
// generateContent HTTP endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/config"
	"github.com/jo-hoe/sermonforge/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const (
	headerContentType = "Content-Type"
	queryParamKey     = "key"

	finishReasonSafety     = "SAFETY"
	finishReasonRecitation = "RECITATION"

	errorSnippetLimit = 400
)

// Client calls a Gemini-compatible :generateContent endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
}

// New creates a Gemini client from cfg.
func New(cfg config.LLMEndpointConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// SubmitPrompt sends prompt as a single user turn and returns the model's
// first candidate.
func (c *Client) SubmitPrompt(ctx context.Context, prompt string) (llm.Result, error) {
	reqBody := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	if c.temperature != 0 || c.maxTokens != 0 {
		reqBody.GenerationConfig = &generationConfig{}
		if c.temperature != 0 {
			reqBody.GenerationConfig.Temperature = &c.temperature
		}
		if c.maxTokens != 0 {
			reqBody.GenerationConfig.MaxOutputTokens = &c.maxTokens
		}
	}

	endpoint := fmt.Sprintf("v1beta/models/%s:generateContent", c.model)
	u, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return llm.Result{}, fmt.Errorf("join url: %w", err)
	}
	if c.apiKey != "" {
		parsed, err := url.Parse(u)
		if err != nil {
			return llm.Result{}, fmt.Errorf("parse url: %w", err)
		}
		q := parsed.Query()
		q.Set(queryParamKey, c.apiKey)
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return llm.Result{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerContentType, common.ContentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Result{}, ctx.Err()
		}
		return llm.Result{}, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return llm.Result{Kind: llm.KindQuotaExhausted, Message: truncate(string(respBytes), errorSnippetLimit)}, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return llm.Result{}, fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}

	var gen generateContentResponse
	if err := json.Unmarshal(respBytes, &gen); err != nil {
		return llm.Result{}, fmt.Errorf("parse response: %w", err)
	}

	if isQuotaBody(gen) {
		return llm.Result{Kind: llm.KindQuotaExhausted, Message: gen.PromptFeedback.BlockReason}, nil
	}
	if len(gen.Candidates) == 0 {
		return llm.Result{Kind: llm.KindEmpty, Message: "no candidates returned"}, nil
	}
	cand := gen.Candidates[0]
	if cand.FinishReason == finishReasonSafety || cand.FinishReason == finishReasonRecitation {
		return llm.Result{Kind: llm.KindBlocked, Message: cand.FinishReason}, nil
	}
	text := concatParts(cand.Content.Parts)
	if strings.TrimSpace(text) == "" {
		return llm.Result{Kind: llm.KindEmpty, Message: "empty completion text"}, nil
	}
	return llm.Result{OK: true, Output: text}, nil
}

func isQuotaBody(resp generateContentResponse) bool {
	reason := strings.ToUpper(resp.PromptFeedback.BlockReason)
	return strings.Contains(reason, "QUOTA") || strings.Contains(reason, "RESOURCE_EXHAUSTED")
}

func concatParts(parts []part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates     []candidate    `json:"candidates"`
	PromptFeedback promptFeedback `json:"promptFeedback"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}
