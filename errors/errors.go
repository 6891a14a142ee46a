// Package errors provides unified error handling for the wirekit transports.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection following RFC 7807 and Google AIP-193.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Transport Error Constructors ---

// ConnectionClosed creates a new AppError for an operation interrupted by
// connection teardown. The operation names what was in flight (an event name,
// "emit", "request", ...).
func ConnectionClosed(operation string) *AppError {
	return &AppError{
		Code: ErrCodeConnectionClosed, Message: "The connection was closed before the operation completed.",
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// RequestTimeout creates a new AppError for a request that received no response
// within the configured timeout. The event name and the timeout value used are
// carried in the details.
func RequestTimeout(event string, timeout time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeRequestTimeout, Message: fmt.Sprintf("No response to %q within %s.", event, timeout),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"event": event, "timeout_ms": timeout.Milliseconds()},
	}
}

// WriteFailure creates a new AppError for a sink that rejected a frame.
// The connection is torn down; the frame is not retried.
func WriteFailure(clientID string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeWriteFailure, Message: "The connection sink rejected a frame.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"client_id": clientID}, Cause: cause,
	}
}

// DecodeFailure creates a new AppError for an inbound frame that could not be
// decoded.
func DecodeFailure(reason string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeDecodeFailure, Message: fmt.Sprintf("Failed to decode inbound frame: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Cause: cause,
	}
}

// SerializationFailure creates a new AppError for a payload that could not be
// encoded for the wire.
func SerializationFailure(event string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSerializationFailure, Message: fmt.Sprintf("Failed to serialize payload for event %q.", event),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"event": event}, Cause: cause,
	}
}

// SchemaViolation creates a new AppError for an event-schema contract violation.
func SchemaViolation(event, reason string) *AppError {
	return &AppError{
		Code: ErrCodeSchemaViolation, Message: fmt.Sprintf("Schema violation for event %q: %s", event, reason),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"event": event},
	}
}

// DisconnectedTarget creates a new AppError for an operation that addressed a
// connection id no longer registered. Reported, not thrown, on broadcast paths.
func DisconnectedTarget(clientID string) *AppError {
	return &AppError{
		Code: ErrCodeDisconnectedTarget, Message: fmt.Sprintf("Client %q is not connected.", clientID),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"client_id": clientID},
	}
}

// --- Generic Error Constructors ---

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
