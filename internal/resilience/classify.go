package resilience

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Classification is the retry decision for a single error.
type Classification struct {
	Retryable bool
	// Status is a short hint such as "not_found" or "service_unavailable".
	Status   string
	Resource string
}

// Classify decides whether err is transient. Storage errors classified as
// not found (possible replication lag) or service unavailable are retryable,
// as are transport errors with status exactly 404 or 503. gRPC NotFound and
// Unavailable statuses are treated as their HTTP equivalents. Everything else,
// including cancellation, is not.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Classification{Status: "cancelled"}
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		c := Classification{Status: string(storageErr.Status), Resource: storageErr.ResourceID}
		switch storageErr.Status {
		case StorageNotFound, StorageServiceUnavailable:
			c.Retryable = true
		}
		return c
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyHTTPStatus(statusErr.StatusCode)
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.NotFound:
			return classifyHTTPStatus(http.StatusNotFound)
		case codes.Unavailable:
			return classifyHTTPStatus(http.StatusServiceUnavailable)
		}
		return Classification{Status: s.Code().String()}
	}

	return Classification{}
}

func classifyHTTPStatus(code int) Classification {
	switch code {
	case http.StatusNotFound:
		return Classification{Retryable: true, Status: string(StorageNotFound)}
	case http.StatusServiceUnavailable:
		return Classification{Retryable: true, Status: string(StorageServiceUnavailable)}
	}
	return Classification{Status: http.StatusText(code)}
}

// IsServiceFault reports whether err says something about the health of the
// downstream service. Client-side rejections (4xx other than 429, storage not
// found or conflict, gRPC NotFound and InvalidArgument) and cancellation do not
// count against a circuit.
func IsServiceFault(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return false
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Status == StorageServiceUnavailable || storageErr.Status == StorageThrottled
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.NotFound, codes.InvalidArgument, codes.AlreadyExists, codes.PermissionDenied,
			codes.Unauthenticated, codes.FailedPrecondition, codes.Canceled:
			return false
		}
	}

	return true
}
