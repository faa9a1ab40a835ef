package scanner

import "fmt"

// ParseError reports a file whose source could not be parsed. The file then
// contributes no statements; the rest of the build carries on.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("parse %s: %s", e.File, e.Msg)
}
