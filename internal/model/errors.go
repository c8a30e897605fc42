package model

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and reporting purposes.
type Kind int

const (
	// KindRejection is a policy or quality failure. Never retried.
	KindRejection Kind = iota
	// KindTransient is a network timeout, connection error or 5xx. Retried.
	KindTransient
	// KindTimeout means the request deadline elapsed.
	KindTimeout
	// KindFatal aborts the whole run.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindRejection:
		return "rejection"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error codes recorded on outcomes and PipelineErrors.
const (
	CodeMalformedURL      = "MALFORMED_URL"
	CodeUnsupportedScheme = "UNSUPPORTED_SCHEME"
	CodeBlacklisted       = "BLACKLISTED"
	CodeUnreachable       = "UNREACHABLE"
	CodeHTTPStatus        = "HTTP_STATUS"
	CodeContentType       = "CONTENT_TYPE"
	CodeTooLarge          = "TOO_LARGE"
	CodeTooManyRedirects  = "TOO_MANY_REDIRECTS"
	CodeRobotsDisallowed  = "ROBOTS_DISALLOWED"
	CodeBotChallenge      = "BOT_CHALLENGE"
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodeTooShort          = "TOO_SHORT"
	CodeBoilerplate       = "BOILERPLATE"
	CodeLanguage          = "LANGUAGE"
	CodeTimeout           = "TIMEOUT"
	CodeSearchFailed      = "SEARCH_FAILED"
	CodeAborted           = "ABORTED"
	CodeNetwork           = "NETWORK"
	CodeInternal          = "INTERNAL"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(code, reason string, err error) *Error {
	return &Error{Kind: KindTransient, Code: code, Reason: reason, Err: err}
}

// Reject builds a non-retryable validation failure.
func Reject(code, reason string) *Error {
	return &Error{Kind: KindRejection, Code: code, Reason: reason}
}

// Timeout wraps err as a deadline failure.
func Timeout(reason string, err error) *Error {
	return &Error{Kind: KindTimeout, Code: CodeTimeout, Reason: reason, Err: err}
}

// KindOf reports the Kind of err. Unclassified context deadline errors are
// timeouts; anything else unclassified is treated as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindTransient
}

// CodeOf returns the error code carried by err, or fallback.
func CodeOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return fallback
}

// ReasonOf returns the short reason carried by err, or err.Error().
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
