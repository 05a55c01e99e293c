package backend

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnavailable covers network failures, timeouts, and server-side
	// errors. Callers cannot tell those apart and should not try.
	ErrUnavailable = errors.New("server unavailable")

	// ErrUnauthorized means the server rejected the presented credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials means the email/password pair was rejected
	// on login.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError carries the per-field messages the server returned for
// a rejected registration. Match with errors.As.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

// Messages flattens the field errors into human-readable lines, sorted
// by field name so output is stable.
func (e *ValidationError) Messages() []string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []string
	for _, f := range fields {
		for _, msg := range e.Fields[f] {
			out = append(out, fmt.Sprintf("%s %s", f, msg))
		}
	}
	return out
}
