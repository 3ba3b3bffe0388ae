package gateway

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies tool call failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnknownService
	KindUnknownTool
	KindTimeout
	KindNetwork
	KindServer
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindUnknownService:
		return "UnknownService"
	case KindUnknownTool:
		return "UnknownTool"
	case KindTimeout:
		return "Timeout"
	case KindNetwork:
		return "NetworkError"
	case KindServer:
		return "ServerError"
	case KindDecode:
		return "DecodeError"
	default:
		return "Unknown"
	}
}

// Error is the failure type returned by Invoke and by the tool dispatcher.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Kind, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// KindOf returns the Kind carried by err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
