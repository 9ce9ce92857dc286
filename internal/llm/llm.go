// Package llm defines the capability stage executors use to talk to a
// language model: submit a text prompt, get back either usable output or a
// typed reason it was withheld.
package llm

import "context"

// Kind classifies why a prompt did not yield usable output.
type Kind string

const (
	// KindNone is the zero value; only valid when OK is true.
	KindNone Kind = ""
	// KindQuotaExhausted means the provider reported a rate-limit or quota
	// error (HTTP 429, or an explicit quota message in the body).
	KindQuotaExhausted Kind = "quota_exhausted"
	// KindBlocked means the provider refused to answer for policy reasons
	// (safety filter, content blocked) rather than a transport failure.
	KindBlocked Kind = "blocked"
	// KindEmpty means the call succeeded but returned no usable text.
	KindEmpty Kind = "empty"
)

// Result is the tagged-union outcome of a prompt submission that completed
// at the transport level. A transport-level failure (timeout, connection
// refused, a non-2xx status that is not a quota signal, an unparseable
// body) is returned as an error instead.
type Result struct {
	OK      bool
	Output  string
	Kind    Kind
	Message string
}

// Client submits a single text prompt and returns the model's reply.
type Client interface {
	SubmitPrompt(ctx context.Context, prompt string) (Result, error)
}
