package types

import (
	"errors"
	"fmt"
)

var (
	ErrDecode          = errors.New("failed to decode input text")
	ErrEmptyInput      = errors.New("input contains no data rows")
	ErrMalformedRecord = errors.New("malformed record")
	ErrMissingFactor   = errors.New("a scaling factor is required for primary load")
	ErrSpanTooLarge    = errors.New("input spans too many intervals")
)

// MalformedRecordError describes a row that could not be parsed. It matches
// ErrMalformedRecord with errors.Is.
type MalformedRecordError struct {
	// Line is the 1-based line (or spreadsheet row) of the record, 0 if unknown.
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed record: %s", e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	msg += ": " + e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

// Is implements errors.Is.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}
