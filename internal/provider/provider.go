// Package provider abstracts the model backends behind a single blocking
// text-in/text-out interface. Whatever shape a backend's response takes
// (chat choices, generate payloads, canned text), it is resolved to plain
// text here, so downstream components never probe response objects.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Model is one invocable backend.
type Model interface {
	// Invoke sends the prompt and returns the model's raw text output.
	// It blocks until the backend answers, the transport timeout fires,
	// or ctx is done.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Known provider tags.
const (
	OpenAI = "openai"
	Ollama = "ollama"
	Stub   = "stub"
)

// Options configures one gateway instance. It is immutable once passed to
// New; credentials live only here for the lifetime of the instance.
type Options struct {
	Provider string
	Model    string
	// APIKey is required by the hosted backend and ignored by the others.
	APIKey string
	// BaseURL overrides the backend's default endpoint.
	BaseURL string
	// Timeout bounds each blocking invocation. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// DefaultTimeout bounds an invocation when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// CredentialError reports a missing required credential. It is not
// retryable: invoking again without the key cannot succeed.
type CredentialError struct {
	Provider string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("provider %s: missing API key", e.Provider)
}

// ConnectError reports that a backend could not be reached. Distinct from
// CredentialError so operators can tell "server down" from "key absent".
type ConnectError struct {
	Provider string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("provider %s: cannot reach backend: %v", e.Provider, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// InvocationError reports a failed invocation against a reachable backend.
type InvocationError struct {
	Provider string
	Status   int
	Body     string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("provider %s: invocation failed (status %d): %s", e.Provider, e.Status, e.Body)
}

// New selects and constructs a backend. An unrecognized provider tag falls
// back to the deterministic stub with a logged warning, so callers always
// get a usable Model. The only construction failure is a missing credential
// for the hosted backend.
func New(opts Options) (Model, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch opts.Provider {
	case OpenAI:
		if opts.APIKey == "" {
			return nil, &CredentialError{Provider: OpenAI}
		}
		return newOpenAI(opts), nil
	case Ollama:
		return newOllama(opts), nil
	case Stub:
		return NewStub(), nil
	default:
		opts.Logger.Warn().
			Str("provider", opts.Provider).
			Msg("provider unavailable, substituting deterministic stub")
		return NewStub(), nil
	}
}
