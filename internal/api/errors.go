// Package api provides the file directory REST client and its error types.
package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized indicates the server rejected the token (401 or 403).
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError is a request rejected locally, before anything is sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error // optional underlying cause
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FetchError wraps any failure to load a listing or permission set.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConflictError is a mutation the server refused because the target changed
// underneath the caller (409), vanished (404) or failed a precondition (412).
type ConflictError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// NetworkError is a transport failure: dial, DNS, TLS, timeout or reset.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s failed: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is any other non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap exposes ErrUnauthorized for 401/403 so errors.Is works on the chain.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return ErrUnauthorized
	}
	return nil
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

// IsConflictError reports whether err is or wraps a *ConflictError.
func IsConflictError(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsNetworkError reports whether err is or wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNameTakenError checks if a conflict is caused by a sibling with the same name.
//
// Servers report this as 409 with a message body; the body is matched against
// common phrasings since there is no structured code for it.
func IsNameTakenError(err error) bool {
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		return false
	}

	body := strings.ToLower(conflict.Body)
	indicators := []string{
		"already exists",
		"duplicate",
		"name already in use",
		"name taken",
	}
	for _, indicator := range indicators {
		if strings.Contains(body, indicator) {
			return true
		}
	}
	return false
}

// truncateBody keeps error messages readable when a proxy returns an HTML page.
func truncateBody(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
