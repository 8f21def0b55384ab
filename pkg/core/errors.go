package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every typed error below matches exactly one of these via errors.Is.
var (
	ErrParse         = errors.New("parse error")
	ErrResolution    = errors.New("resolution error")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrMissingSource = errors.New("missing source")
	ErrSchema        = errors.New("schema error")
	ErrTaskFailure   = errors.New("task failure")
)

// ParseError reports malformed document syntax.
type ParseError struct {
	File   string
	Line   int // 0 when unknown
	Column int // 0 when unknown
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
		if e.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Column)
		}
	}
	return fmt.Sprintf("parse error: %s: %s", loc, e.Msg)
}

// Is implements errors.Is.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Unwrap returns the underlying parser error, if any.
func (e *ParseError) Unwrap() error { return e.Err }

// ResolutionError reports ambiguous or invalid table metadata.
type ResolutionError struct {
	Document string
	Table    string
	Field    string
	Msg      string
	Err      error
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString("resolution error: ")
	b.WriteString(e.Document)
	if e.Table != "" {
		b.WriteString(": table ")
		b.WriteString(e.Table)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

// Is implements errors.Is.
func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// Unwrap returns the underlying cause, if any.
func (e *ResolutionError) Unwrap() error { return e.Err }

// DuplicateKeyError reports a (WorkbookName, TableName) collision across the corpus.
type DuplicateKeyError struct {
	Key           TableKey
	FirstDocument string
	Document      string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate table %s: declared in %s and again in %s",
		e.Key, e.FirstDocument, e.Document)
}

// Is implements errors.Is.
func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }

// MissingSourceError reports a referenced file that does not exist.
type MissingSourceError struct {
	Path string
	Err  error
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("missing source: %s", e.Path)
}

// Is implements errors.Is.
func (e *MissingSourceError) Is(target error) bool { return target == ErrMissingSource }

// Unwrap returns the underlying filesystem error, if any.
func (e *MissingSourceError) Unwrap() error { return e.Err }

// SchemaError reports an unreadable or empty tabular payload.
type SchemaError struct {
	Source string
	Msg    string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s: %s", e.Source, e.Msg)
}

// Is implements errors.Is.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Unwrap returns the underlying cause, if any.
func (e *SchemaError) Unwrap() error { return e.Err }

// TaskFailure reports that a build task's action failed.
type TaskFailure struct {
	Task   string
	Err    error
	Output string // combined output captured from the action, if any
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

// Is implements errors.Is.
func (e *TaskFailure) Is(target error) bool { return target == ErrTaskFailure }

// Unwrap returns the action's error.
func (e *TaskFailure) Unwrap() error { return e.Err }

// TableError attaches a table identity to an error raised while materializing it.
type TableError struct {
	Key TableKey
	Err error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table %s: %v", e.Key, e.Err)
}

// Unwrap returns the wrapped error.
func (e *TableError) Unwrap() error { return e.Err }
