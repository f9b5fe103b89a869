package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReferential        = errors.New("referential error")
	ErrSelfLoop           = errors.New("self loop")
	ErrDuplicateEdge      = errors.New("duplicate edge")
	ErrEndpointConstraint = errors.New("endpoint constraint")
	ErrInvalidParameters  = errors.New("invalid parameters")
	ErrParse              = errors.New("parse error")
	ErrSchema             = errors.New("schema error")
	ErrConnection         = errors.New("connection error")
	ErrHTTP               = errors.New("http error")

	// ErrNothingToSchedule is reported when either model is empty.
	ErrNothingToSchedule = errors.New("No jobs to schedule")
)

// SchemaError carries every violation reported for a well-formed document.
// Err, when set, is the underlying cause.
type SchemaError struct {
	Errors []string
	Err    error
}

func (e *SchemaError) Error() string {
	if len(e.Errors) == 0 {
		return "JSON data does not match schema"
	}
	return "JSON data does not match schema: " + strings.Join(e.Errors, "; ")
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSchema) match.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ConnectionError reports that the scheduler could not be reached.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "Error Connecting to Server"
	}
	return fmt.Sprintf("Error Connecting to Server: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConnection) match.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// HTTPError reports a non-2xx answer from the scheduler.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// Is lets errors.Is(err, ErrHTTP) match.
func (e *HTTPError) Is(target error) bool { return target == ErrHTTP }

// Code returns the stable wire code for err, or "internal" when err is not
// part of the model taxonomy.
func Code(err error) string {
	var schemaErr *SchemaError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &schemaErr):
		return "schema_error"
	case errors.Is(err, ErrReferential):
		return "referential_error"
	case errors.Is(err, ErrSelfLoop):
		return "self_loop"
	case errors.Is(err, ErrDuplicateEdge):
		return "duplicate_edge"
	case errors.Is(err, ErrEndpointConstraint):
		return "endpoint_constraint"
	case errors.Is(err, ErrInvalidParameters):
		return "invalid_parameters"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrSchema):
		return "schema_error"
	case errors.Is(err, ErrConnection):
		return "connection_error"
	case errors.Is(err, ErrHTTP):
		return "http_error"
	case errors.Is(err, ErrNothingToSchedule):
		return "nothing_to_schedule"
	default:
		return "internal"
	}
}

// UserMessage returns the text shown to users for err. Connection failures
// hide the transport detail.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnection):
		return "Error Connecting to Server"
	default:
		return err.Error()
	}
}
