package errutil

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a publication failure and drives the dispatcher's
// state-machine transition for it.
type Kind string

const (
	KindTransientNetwork   Kind = "transient_network"
	KindRateLimit          Kind = "rate_limit"
	KindAuthExpired        Kind = "auth_expired"
	KindInvalidInput       Kind = "invalid_input"
	KindMediaGeneration    Kind = "media_generation"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindSessionExpired     Kind = "session_expired"
	KindInternal           Kind = "internal"
)

type BaseError struct {
	Kind       Kind          `json:"kind"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e BaseError) Unwrap() error {
	return e.Err
}

type Option func(*BaseError)

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func WithRetryAfter(d time.Duration) Option {
	return func(be *BaseError) { be.RetryAfter = d }
}

func New(kind Kind, message string, opts ...Option) error {
	be := BaseError{Kind: kind, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func TransientNetwork(msg string, opts ...Option) error {
	return New(KindTransientNetwork, msg, opts...)
}

func RateLimit(msg string, opts ...Option) error {
	return New(KindRateLimit, msg, opts...)
}

func AuthExpired(msg string, opts ...Option) error {
	return New(KindAuthExpired, msg, opts...)
}

func InvalidInput(msg string, opts ...Option) error {
	return New(KindInvalidInput, msg, opts...)
}

func MediaGeneration(msg string, opts ...Option) error {
	return New(KindMediaGeneration, msg, opts...)
}

func StorageUnavailable(msg string, opts ...Option) error {
	return New(KindStorageUnavailable, msg, opts...)
}

func SessionExpired(msg string, opts ...Option) error {
	return New(KindSessionExpired, msg, opts...)
}

func Internal(msg string, opts ...Option) error {
	return New(KindInternal, msg, opts...)
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var be BaseError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the dispatcher may attempt the operation
// again. Auth and input failures are terminal until an operator acts.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransientNetwork, KindRateLimit, KindStorageUnavailable, KindInternal:
		return true
	default:
		return false
	}
}

// RetryAfterHint returns the server-supplied delay for rate-limited
// operations, or zero when no hint was given.
func RetryAfterHint(err error) time.Duration {
	var be BaseError
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}
