package remote

import (
	"errors"
	"fmt"
)

// NetworkError means the request never completed, the response could not be
// decoded, or the backend answered non-2xx without a more specific meaning.
type NetworkError struct {
	Op         string
	StatusCode int    // 0 when no response was received
	Message    string // server-supplied message, if any
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a structured rejection of submitted rules.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "rules rejected: " + e.Message }

// PreconditionError is a start/stop rejected because of the current run state,
// e.g. "Automation already running".
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return "precondition failed: " + e.Message }

// OperatorMessage returns the backend's operator-facing message carried by err,
// or "" if there is none.
func OperatorMessage(err error) string {
	var (
		ve *ValidationError
		pe *PreconditionError
		ne *NetworkError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &pe):
		return pe.Message
	case errors.As(err, &ne):
		return ne.Message
	}
	return ""
}
