package models

import "fmt"

// SchemaError means the local store cannot be opened at the requested schema
// version. It is the only error the engine surfaces fatally.
type SchemaError struct {
	Have   int
	Want   int
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: have version %d, want %d: %s", e.Have, e.Want, e.Reason)
}

// NetworkError wraps a transport-level failure. Records touched by a failed
// call return to the error status and stay retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a local precondition failure. The network call is never
// attempted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ServerRejection is a business-rule failure returned by the remote. The
// message is stored verbatim on the rejected record.
type ServerRejection struct {
	StatusCode int
	Message    string
}

func (e *ServerRejection) Error() string {
	return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
}
