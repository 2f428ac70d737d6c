// Package apierr defines the error taxonomy the engine surfaces to callers.
//
// Every error the engine returns is one of a small closed set of kinds —
// ValidationError, UnknownProviderError, UnsupportedModelError,
// RateLimitedError, UpstreamError, ProtocolError, CancelledError — so a
// caller can branch on kind with errors.As instead of parsing messages.
package apierr

import "fmt"

// ValidationError reports a malformed request: bad field types, an out of
// range parameter, or an unrecognized parameter name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

// UnknownProviderError reports a registry miss: the caller asked for a
// provider id that was never registered.
type UnknownProviderError struct {
	ProviderID string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %q", e.ProviderID)
}

// UnsupportedModelError reports a catalog miss: the model isn't in the
// resolved provider's ModelConfig set.
type UnsupportedModelError struct {
	Provider string
	Model    string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("model %q is not supported by provider %q", e.Model, e.Provider)
}

// RateLimitedError reports that the upstream signalled throttling. The
// retry controller treats this as retryable up to request.Retries times.
type RateLimitedError struct {
	Provider string
	Cause    error
}

func (e *RateLimitedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rate limited by %s: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("rate limited by %s", e.Provider)
}

func (e *RateLimitedError) Unwrap() error { return e.Cause }

// UpstreamError reports any other upstream failure: auth, network, 5xx.
// Fatal to the call — never retried.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream error from %s (status %d): %s: %v", e.Provider, e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream error from %s (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// ProtocolError reports a malformed upstream chunk or an unrecognized
// finish_reason. Fatal — the wire contract the Joiner depends on was
// violated.
type ProtocolError struct {
	Provider string
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from %s: %s", e.Provider, e.Message)
}

// CancelledError reports that the caller abandoned the call (dropped the
// iterator, cancelled the context). No further output is produced and no
// partial metrics envelope is synthesized.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("call cancelled: %v", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// TooManyRequests builds the RateLimitedError the retry controller surfaces
// once every attempt has been exhausted on rate limit.
func TooManyRequests(provider string, lastCause error) *RateLimitedError {
	return &RateLimitedError{Provider: provider, Cause: fmt.Errorf("too many requests: %w", lastCause)}
}
