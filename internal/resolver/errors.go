package resolver

import (
	"fmt"

	"pyimports/internal/pypath"
)

// ErrorKind classifies a ResolutionError.
type ErrorKind uint8

const (
	// InvalidStatement marks a statement whose shape or names are not valid
	// Python import syntax.
	InvalidStatement ErrorKind = iota + 1
	// BeyondRoot marks a relative import that climbs above the root package.
	BeyondRoot
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidStatement:
		return "invalid statement"
	case BeyondRoot:
		return "relative import beyond root package"
	default:
		return "unknown"
	}
}

// ResolutionError reports one statement that could not be resolved. It never
// aborts resolution of the other statements.
type ResolutionError struct {
	Kind      ErrorKind
	Source    pypath.Path
	File      string
	Line      int
	Statement string
	Msg       string
}

func (e *ResolutionError) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return fmt.Sprintf("resolve %q in %s (line %d): %s", e.Statement, e.Source, e.Line, msg)
}
