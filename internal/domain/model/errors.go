package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrEmptyCredential is returned when an empty credential would be stored or used.
	ErrEmptyCredential = errors.New("credential is empty")
	// ErrNotAuthenticated is returned by operations that need a signed-in session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPermissionDenied is returned when camera access has been refused.
	ErrPermissionDenied = errors.New("camera permission denied")
)

// ValidationError carries field-keyed messages from a 422-style response.
type ValidationError struct {
	Fields map[string][]string
}

// Error formats one "field : msg1, msg2" line per field, sorted by field name.
func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, f+" : "+strings.Join(e.Fields[f], ", "))
	}
	return strings.Join(lines, "\n")
}

// AuthError is a generic authentication failure with a single user-facing message.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// NetworkError wraps a transport-level failure talking to a remote service.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StorageError wraps a durable-store failure. Op is "get", "set" or "clear".
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
