package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the category of a failed backend call.
type Kind uint8

const (
	// KindUnknown is the zero value and never produced by Classify.
	KindUnknown Kind = iota
	// KindNetwork covers transport failures: DNS, refused connections, timeouts,
	// unreadable responses.
	KindNetwork
	// KindAuthentication is a 401 from the backend.
	KindAuthentication
	// KindValidation is any other 4xx.
	KindValidation
	// KindServer is any 5xx.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

var (
	// ErrNetwork matches every *Error of KindNetwork under errors.Is.
	ErrNetwork = &Error{Kind: KindNetwork, Message: "network error"}
	// ErrAuthentication matches every *Error of KindAuthentication under errors.Is.
	ErrAuthentication = &Error{Kind: KindAuthentication, Status: http.StatusUnauthorized, Message: "authentication required"}
	// ErrValidation matches every *Error of KindValidation under errors.Is.
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	// ErrServer matches every *Error of KindServer under errors.Is.
	ErrServer = &Error{Kind: KindServer, Message: "server error"}
)

// Error is a classified backend failure.
//
// Code and Message come from the backend envelope when one was returned. Op names
// the client operation ("login", "me", ...). Err holds the transport error for
// KindNetwork.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so the package sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Network wraps a transport error.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "request failed", Err: err}
}

// FromStatus builds a classified error for a non-2xx status. Status codes below 400
// are treated as server errors because a 3xx reaching the client means the backend
// is misconfigured.
func FromStatus(op string, status int, code, message string) *Error {
	if message == "" {
		message = strings.ToLower(http.StatusText(status))
	}
	return &Error{
		Kind:    KindForStatus(status),
		Status:  status,
		Code:    code,
		Message: message,
		Op:      op,
	}
}

// KindForStatus maps an HTTP status to a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// KindOf returns the Kind of err, or KindUnknown when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAuthentication reports whether err is a 401 from the backend.
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool { return errors.Is(err, ErrNetwork) }

// IsValidation reports whether err is a non-401 4xx.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsServer reports whether err is a 5xx.
func IsServer(err error) bool { return errors.Is(err, ErrServer) }
