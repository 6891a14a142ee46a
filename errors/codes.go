package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Transport errors (retryable after re-establishing the connection)
const (
	// ErrCodeConnectionClosed indicates the connection was torn down while the
	// operation was in flight.
	ErrCodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	// ErrCodeRequestTimeout indicates a request/response exchange timed out.
	ErrCodeRequestTimeout ErrorCode = "REQUEST_TIMEOUT"
)

// Wire errors
const (
	// ErrCodeWriteFailure indicates the output sink rejected a frame.
	// The connection is torn down; the frame is not retried.
	ErrCodeWriteFailure ErrorCode = "WRITE_FAILURE"
	// ErrCodeDecodeFailure indicates an inbound frame could not be decoded.
	ErrCodeDecodeFailure ErrorCode = "DECODE_FAILURE"
	// ErrCodeSerializationFailure indicates a payload could not be encoded.
	ErrCodeSerializationFailure ErrorCode = "SERIALIZATION_FAILURE"
)

// Contract errors
const (
	// ErrCodeSchemaViolation indicates an event-schema contract violation,
	// such as redefining the reserved close event or emitting an undeclared event.
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"
	// ErrCodeDisconnectedTarget indicates an operation addressed a connection id
	// that is no longer registered.
	ErrCodeDisconnectedTarget ErrorCode = "DISCONNECTED_TARGET"
)

// Generic errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeConnectionClosed:     true,
	ErrCodeRequestTimeout:       true,
	ErrCodeWriteFailure:         false,
	ErrCodeDecodeFailure:        false,
	ErrCodeSerializationFailure: false,
	ErrCodeSchemaViolation:      false,
	ErrCodeDisconnectedTarget:   false,
	ErrCodeInternal:             false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
