package obsws

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable       = errors.New("control server unreachable")
	ErrAuthRejected      = errors.New("authentication rejected")
	ErrProtocolViolation = errors.New("protocol violation")

	ErrDisconnected = errors.New("session disconnected")
	ErrTimeout      = errors.New("request timed out")
	ErrMalformed    = errors.New("malformed response")

	errEmptyResponseData = errors.New("response carries no data")
	errSessionClosed     = errors.New("session closed by client")
)

// ConnectErrorKind classifies a failed Connect
type ConnectErrorKind int

const (
	Unreachable ConnectErrorKind = iota
	AuthRejected
	ProtocolViolation
)

// String returns the string representation of the kind
func (k ConnectErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case AuthRejected:
		return "auth_rejected"
	case ProtocolViolation:
		return "protocol_violation"
	default:
		return "unknown"
	}
}

// ConnectError is returned by Connect.
type ConnectError struct {
	Kind ConnectErrorKind
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect %s: %s", e.Addr, e.Kind)
	}
	return fmt.Sprintf("connect %s: %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels.
func (e *ConnectError) Is(target error) bool {
	switch target {
	case ErrUnreachable:
		return e.Kind == Unreachable
	case ErrAuthRejected:
		return e.Kind == AuthRejected
	case ErrProtocolViolation:
		return e.Kind == ProtocolViolation
	}
	return false
}

// RequestErrorKind classifies a failed Request
type RequestErrorKind int

const (
	Disconnected RequestErrorKind = iota
	Timeout
	Malformed
)

// String returns the string representation of the kind
func (k RequestErrorKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Timeout:
		return "timeout"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// RequestError is returned by Request and the typed helpers.
type RequestError struct {
	Kind        RequestErrorKind
	RequestType string
	Err         error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.RequestType, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.RequestType, e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrDisconnected:
		return e.Kind == Disconnected
	case ErrTimeout:
		return e.Kind == Timeout
	case ErrMalformed:
		return e.Kind == Malformed
	}
	return false
}

// StatusError reports a request the server answered but refused.
type StatusError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *StatusError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("%s failed with status %d", e.RequestType, e.Code)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.RequestType, e.Code, e.Comment)
}

// IsTransportError reports whether err means the session itself is unusable
// and a reconnect is required.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrDisconnected)
}
