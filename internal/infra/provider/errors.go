package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind tells the orchestrator whether retrying the same tier can help.
type Kind int

const (
	Transient Kind = iota
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

var (
	// ErrMalformedResponse means the provider answered without the fields we need.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrCircuitOpen is returned without calling a provider that keeps failing.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrThrottled is returned while a provider's Retry-After window is active.
	ErrThrottled = errors.New("provider throttled")
)

// Error is a classified provider failure.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable failure.
func NewTransient(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: Transient, Err: err}
}

// NewPermanent wraps err as a failure that should advance to the next tier.
func NewPermanent(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: Permanent, Err: err}
}

// ClassifyStatus maps an HTTP status to a failure kind.
// 408, 425, 429 and 5xx are transient; other 4xx are permanent.
func ClassifyStatus(code int) Kind {
	switch {
	case code == 408, code == 425, code == 429:
		return Transient
	case code >= 500:
		return Transient
	case code >= 400:
		return Permanent
	}
	return Transient
}

// Classify determines the failure kind for any error returned by an adapter.
func Classify(err error) Kind {
	if err == nil {
		return Transient // Should not happen
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrThrottled):
		return Transient
	case errors.Is(err, context.Canceled):
		return Permanent
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrCircuitOpen):
		return Permanent
	}

	s := strings.ToLower(err.Error())

	// Permanent (request or credential issues)
	if strings.Contains(s, "400") || strings.Contains(s, "bad request") ||
		strings.Contains(s, "401") || strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "403") || strings.Contains(s, "forbidden") ||
		strings.Contains(s, "404") || strings.Contains(s, "not found") ||
		strings.Contains(s, "invalid api key") ||
		strings.Contains(s, "content policy") ||
		strings.Contains(s, "context length") ||
		strings.Contains(s, "quota") || strings.Contains(s, "billing") {
		return Permanent
	}

	// Default to Transient (Network, 429, 5xx, overloaded, etc)
	return Transient
}

// IsTransient reports whether retrying the same provider may succeed.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}

// NotCalled reports whether err was produced by Tracked without reaching
// the provider.
func NotCalled(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrThrottled)
}

// RetryAfter returns the Retry-After hint carried by a classified error.
func RetryAfter(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
