package delta

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by authenticated endpoints when the client
// has no bearer token configured. It is detected locally, before any network
// call is made.
var ErrNotAuthenticated = errors.New("delta: no bearer token configured")

// ValidationError reports bad caller input. Requests that fail validation
// never reach the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("delta: invalid %s: %s", e.Field, e.Reason)
}

// VenueError is a non-success response from the venue, carrying the venue's
// own code and message.
type VenueError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *VenueError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("delta: venue error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("delta: venue error %s (http %d)", e.Code, e.HTTPStatus)
}

// TransportError wraps a connect or send failure on the wire.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("delta: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a payload the client could not decode.
type ProtocolError struct {
	What string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("delta: malformed %s: %v", e.What, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
