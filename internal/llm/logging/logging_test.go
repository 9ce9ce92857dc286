package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/jo-hoe/sermonforge/internal/llm"
)

type stubClient struct {
	result llm.Result
	err    error
}

func (s stubClient) SubmitPrompt(ctx context.Context, prompt string) (llm.Result, error) {
	return s.result, s.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSubmitPrompt_LogsRequestIDOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	c := Wrap(stubClient{result: llm.Result{OK: true, Output: "polished text"}}, newTestLogger(&buf), "primary")

	result, err := c.SubmitPrompt(context.Background(), "draft this chapter")
	if err != nil {
		t.Fatalf("SubmitPrompt error: %v", err)
	}
	if !result.OK || result.Output != "polished text" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(buf.String(), "request_id") {
		t.Fatalf("expected request_id in log output, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "primary") {
		t.Fatalf("expected endpoint label in log output, got: %s", buf.String())
	}
}

func TestSubmitPrompt_WarnsOnNotOK(t *testing.T) {
	var buf bytes.Buffer
	c := Wrap(stubClient{result: llm.Result{Kind: llm.KindQuotaExhausted, Message: "rate limited"}}, newTestLogger(&buf), "secondary")

	result, err := c.SubmitPrompt(context.Background(), "draft this chapter")
	if err != nil {
		t.Fatalf("SubmitPrompt error: %v", err)
	}
	if result.OK {
		t.Fatalf("expected non-OK result to pass through unchanged")
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected a warning for a non-OK result, got: %s", buf.String())
	}
}

func TestSubmitPrompt_PropagatesError(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("connection refused")
	c := Wrap(stubClient{err: boom}, newTestLogger(&buf), "primary")

	_, err := c.SubmitPrompt(context.Background(), "draft this chapter")
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error to propagate, got: %v", err)
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected a warning logged for the failed call, got: %s", buf.String())
	}
}
