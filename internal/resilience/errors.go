package resilience

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCircuitOpen is returned by Guard when the target service's circuit is open.
var ErrCircuitOpen = errors.New("circuit open")

// StorageStatus classifies a failed storage operation
type StorageStatus string

const (
	StorageNotFound           StorageStatus = "not_found"
	StorageServiceUnavailable StorageStatus = "service_unavailable"
	StorageThrottled          StorageStatus = "throttled"
	StorageConflict           StorageStatus = "conflict"
)

// StorageError is raised by storage I/O code with a status classification and
// the resource involved, if known.
type StorageError struct {
	Status     StorageStatus
	ResourceID string
	Err        error
}

// NewStorageError creates a StorageError wrapping err
func NewStorageError(status StorageStatus, resourceID string, err error) *StorageError {
	return &StorageError{Status: status, ResourceID: resourceID, Err: err}
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("storage %s", e.Status)
	if e.ResourceID != "" {
		msg += fmt.Sprintf(" (resource %s)", e.ResourceID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StatusError is a transport-level failure carrying an HTTP status code.
type StatusError struct {
	StatusCode int
	Message    string
}

// NewStatusError creates a StatusError for the given HTTP status code
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{StatusCode: code, Message: message}
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}
