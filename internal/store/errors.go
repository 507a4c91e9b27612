package store

import (
	"errors"
	"fmt"
)

// ErrorCode classifies cache failures.
type ErrorCode string

const (
	// ErrCodeUnavailable means the backing store could not be opened or reached.
	ErrCodeUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	// ErrCodeTxFailed means a single-record operation failed after the store opened.
	ErrCodeTxFailed ErrorCode = "CACHE_TX_FAILED"

	// ErrCodeInvalidRecord means a record failed validation and was not written.
	ErrCodeInvalidRecord ErrorCode = "INVALID_RECORD"

	// ErrCodeCorruptRecord means a stored payload could not be decoded.
	ErrCodeCorruptRecord ErrorCode = "CORRUPT_RECORD"

	// ErrCodeUnknownCollection means the collection name is not one of the fixed set.
	ErrCodeUnknownCollection ErrorCode = "UNKNOWN_COLLECTION"
)

// CacheError is returned by every cache operation that fails.
type CacheError struct {
	Code       ErrorCode
	Collection string
	Op         string
	Err        error
}

func (e *CacheError) Error() string {
	msg := fmt.Sprintf("cache %s %s: %s", e.Op, e.Collection, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func newCacheError(code ErrorCode, collection, op string, err error) *CacheError {
	return &CacheError{Code: code, Collection: collection, Op: op, Err: err}
}

// IsUnavailable reports whether err means the cache could not serve the call.
// Both open failures and failed transactions count; callers fall back to
// in-memory or remote data either way.
func IsUnavailable(err error) bool {
	var ce *CacheError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == ErrCodeUnavailable || ce.Code == ErrCodeTxFailed
}

// CodeOf returns the error code of a CacheError, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
