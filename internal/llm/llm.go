// Package llm wraps every call to the external language model with a shared
// concurrency permit pool, retry with exponential backoff and jitter on
// transient provider errors, and response-shape validation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Operation identifies why the model is being called. Every operation kind
// shares the same permit pool.
type Operation string

const (
	OpGenerateSQL    Operation = "generate_sql"
	OpGenerateAnswer Operation = "generate_answer"
	OpClassify       Operation = "classify"
	OpGeneralChat    Operation = "general_chat"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Operation   Operation
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completion is the narrow, provider-independent response shape. Adapters
// map the provider SDK's response into it so the rest of the system never
// sees provider types.
type Completion struct {
	Text         string
	FinishReason string
}

// Client is the single network boundary to the model provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

var (
	// ErrEmptyCompletion marks a well-formed provider response without
	// usable text. It indicates a malformed-but-200 response rather than
	// throttling, so it is never retried.
	ErrEmptyCompletion = errors.New("model returned an empty completion")

	// ErrResourceExhausted marks a permit acquisition that timed out.
	ErrResourceExhausted = errors.New("no model concurrency permit available")
)

// ProviderError carries the retryability decision for one failed provider
// call. Retryability is a typed field consumed by the retry loop, not an
// exception hierarchy.
type ProviderError struct {
	Operation  Operation
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model call %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model call %s failed: %v", e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is a transient provider error worth another
// attempt. It is a pure predicate over the error value.
func Retryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}
	return false
}

// StripCodeFence removes a Markdown code-fence wrapper (with an optional
// language tag) from model output. Text without a fence is returned trimmed.
func StripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		firstLine := strings.TrimSpace(trimmed[:newline])
		if !strings.ContainsAny(firstLine, " \t") {
			// bare language tag such as "sql"
			trimmed = trimmed[newline+1:]
		}
	}
	return strings.TrimSpace(trimmed)
}
