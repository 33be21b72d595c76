package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrEmptyResponse = errors.New("empty response body")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrMissingTitle  = errors.New("mandatory title field is missing")
	ErrNotConfigured = errors.New("capability not configured")
	ErrInvalidDepth  = errors.New("article depth must be between 1 and 5")
	ErrNotFound      = errors.New("record not found")
	ErrUnknownKind   = errors.New("unknown content kind")
	ErrNoFullText    = errors.New("record has no full text")
	ErrDisallowed    = errors.New("disallowed by robots.txt")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// IsRetryableFetch reports whether err carries a FetchError marked retryable.
func IsRetryableFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable
}

// ExtractionError reports a field that could not be extracted from a page.
type ExtractionError struct {
	URL   string
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error for %s (field=%q): %v", e.URL, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationKind classifies a failed call to an external generator.
type GenerationKind int

const (
	GenerationOther GenerationKind = iota
	GenerationRateLimited
	GenerationContentPolicy
)

func (k GenerationKind) String() string {
	switch k {
	case GenerationRateLimited:
		return "rate_limited"
	case GenerationContentPolicy:
		return "content_policy_blocked"
	default:
		return "other"
	}
}

// GenerationError wraps a failed AI or image API call.
type GenerationError struct {
	Op         string
	Kind       GenerationKind
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation error in %s (%s, status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation error in %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a rate-limit GenerationError.
func IsRateLimited(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == GenerationRateLimited
}

// IsContentPolicy reports whether err is a content-policy rejection.
func IsContentPolicy(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == GenerationContentPolicy
}

// StorageError wraps errors that occur in a storage backend.
type StorageError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error (%s %s, key=%s): %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing setting that disables a capability.
type ConfigurationError struct {
	Setting    string
	Capability string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not set, %s disabled", e.Setting, e.Capability)
}

func (e *ConfigurationError) Unwrap() error { return ErrNotConfigured }
