// Package etlerr defines the error kinds surfaced by the batch loader.
//
// Every kind wraps its cause so callers can use errors.Is / errors.As, and each
// kind also matches a package sentinel (ErrParse, ErrConnection, ErrWrite) so
// the CLI can classify a failure without type switches.
package etlerr

import (
	"errors"
	"fmt"
)

var (
	// ErrParse matches any *ParseError.
	ErrParse = errors.New("parse error")

	// ErrConnection matches any *ConnectionError.
	ErrConnection = errors.New("connection error")

	// ErrWrite matches any *WriteError.
	ErrWrite = errors.New("write error")
)

// ParseError reports malformed input or a missing required field.
//
// Line is 1-based; zero means the error is not tied to one line (e.g. an empty
// file or a wrong record count). Field is empty unless a specific field failed.
type ParseError struct {
	Path  string
	Line  int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Field != "" {
		return fmt.Sprintf("parse %s: field %q: %v", loc, e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", loc, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// ConnectionError reports that the repository could not be opened or reached.
type ConnectionError struct {
	Kind string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect storage.kind=%s: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// WriteError reports a failed upsert, insert, lookup, or commit.
//
// Op is one of "upsert", "insert", "lookup", "begin", "commit".
type WriteError struct {
	Table string
	Op    string
	Err   error
}

func (e *WriteError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports whether target is ErrWrite.
func (e *WriteError) Is(target error) bool {
	return target == ErrWrite
}

// Parse is shorthand for building a *ParseError.
func Parse(path string, line int, field string, err error) error {
	return &ParseError{Path: path, Line: line, Field: field, Err: err}
}

// Write is shorthand for building a *WriteError. A nil err returns nil.
func Write(table, op string, err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Table: table, Op: op, Err: err}
}
