// Package apierr classifies failures of calls to the classroom back-end.
//
// Every error that leaves the gateway is an *Error carrying a Kind, so
// callers can branch on KindOf(err) instead of inspecting status codes.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork means no response reached the client.
	KindNetwork
	// KindAuthExpired is a 401 that may still be cured by a refresh. It does
	// not leave the gateway.
	KindAuthExpired
	// KindAuthInvalid means the credentials are dead and were cleared.
	KindAuthInvalid
	KindValidation
	KindServer
	// KindProtocol is a malformed message on the live session channel.
	KindProtocol
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindNetwork:     "network",
	KindAuthExpired: "auth_expired",
	KindAuthInvalid: "auth_invalid",
	KindValidation:  "validation",
	KindServer:      "server",
	KindProtocol:    "protocol",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Fields holds per-input messages when the
// server returned field level validation detail.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
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

func (e *Error) Unwrap() error {
	return e.Err
}

// FieldSummary joins field errors as "field: msg, msg. field: msg" with the
// fields in alphabetical order. It is empty when there are no field errors.
func (e *Error) FieldSummary() string {
	if len(e.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return strings.Join(parts, ". ")
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies any error. Context cancellation and deadlines as well as
// net.Error values count as network failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// KindForStatus maps a non-2xx HTTP status to a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == 401:
		return KindAuthExpired
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindValidation
	default:
		return KindUnknown
	}
}
