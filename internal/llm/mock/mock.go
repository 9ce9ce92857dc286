// Package mock provides a deterministic llm.Client for tests and local
// development without a real model endpoint.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/jo-hoe/sermonforge/internal/config"
	"github.com/jo-hoe/sermonforge/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client echoes the prompt back prefixed with cfg.Prefix, after an optional
// configured delay, to exercise timing and context-cancellation behavior in
// tests.
type Client struct {
	delay  time.Duration
	prefix string
}

// New creates a mock client from cfg.
func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, prefix: cfg.Prefix}
}

func (c *Client) SubmitPrompt(ctx context.Context, prompt string) (llm.Result, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return llm.Result{}, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return llm.Result{}, ctx.Err()
	}
	return llm.Result{OK: true, Output: fmt.Sprintf("%s: %s", c.prefix, prompt)}, nil
}
