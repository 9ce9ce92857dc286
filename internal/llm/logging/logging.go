// Package logging wraps an llm.Client with structured request logging, so
// every prompt submitted to a language model can be correlated with its
// response in the process logs by a per-call request ID.
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/sermonforge/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client decorates an llm.Client, logging each SubmitPrompt call under a
// fresh request ID.
type Client struct {
	inner llm.Client
	log   *slog.Logger
	label string // e.g. "primary", "secondary"
}

// Wrap returns a Client that logs around inner's calls, tagging each with
// label (the endpoint's role) for readability.
func Wrap(inner llm.Client, log *slog.Logger, label string) *Client {
	return &Client{inner: inner, log: log, label: label}
}

func (c *Client) SubmitPrompt(ctx context.Context, prompt string) (llm.Result, error) {
	reqID := uuid.NewString()
	start := time.Now()
	c.log.Debug("submitting prompt", "request_id", reqID, "endpoint", c.label, "prompt_bytes", len(prompt))

	result, err := c.inner.SubmitPrompt(ctx, prompt)

	elapsed := time.Since(start)
	if err != nil {
		c.log.Warn("prompt submission failed", "request_id", reqID, "endpoint", c.label, "elapsed", elapsed, "error", err)
		return result, err
	}
	if !result.OK {
		c.log.Warn("prompt returned no usable output", "request_id", reqID, "endpoint", c.label, "elapsed", elapsed, "kind", result.Kind, "message", result.Message)
		return result, nil
	}
	c.log.Debug("prompt succeeded", "request_id", reqID, "endpoint", c.label, "elapsed", elapsed, "output_bytes", len(result.Output))
	return result, nil
}
