package etlerr

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseError_MessageAndMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ParseError
		want string
	}{
		{
			name: "line_and_field",
			err:  &ParseError{Path: "a.json", Line: 3, Field: "ts", Err: errors.New("missing")},
			want: `parse a.json:3: field "ts": missing`,
		},
		{
			name: "no_line",
			err:  &ParseError{Path: "a.json", Err: io.EOF},
			want: "parse a.json: EOF",
		},
		{
			name: "no_path",
			err:  &ParseError{Line: 1, Err: io.ErrUnexpectedEOF},
			want: "parse <input>:1: unexpected EOF",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("Error()=%q, want %q", got, tc.want)
			}
			if !errors.Is(tc.err, ErrParse) {
				t.Fatalf("errors.Is(err, ErrParse)=false")
			}
			if errors.Is(tc.err, ErrWrite) {
				t.Fatalf("ParseError must not match ErrWrite")
			}
			if !errors.Is(tc.err, tc.err.Err) {
				t.Fatalf("cause not reachable through Unwrap")
			}
		})
	}
}

func TestConnectionError_WrapsCause(t *testing.T) {
	t.Parallel()

	err := error(&ConnectionError{Kind: "postgres", Err: context.DeadlineExceeded})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection match")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause match")
	}
	if !strings.Contains(err.Error(), "storage.kind=postgres") {
		t.Fatalf("message missing kind: %q", err.Error())
	}
}

func TestWrite_NilAndIdempotentWrap(t *testing.T) {
	t.Parallel()

	if Write("songs", "upsert", nil) != nil {
		t.Fatalf("Write(nil) must be nil")
	}

	base := errors.New("duplicate key")
	first := Write("songs", "upsert", base)
	second := Write("songplays", "commit", first)

	var we *WriteError
	if !errors.As(second, &we) {
		t.Fatalf("expected *WriteError, got %T", second)
	}
	if we.Table != "songs" || we.Op != "upsert" {
		t.Fatalf("outer wrap replaced inner context: %+v", we)
	}
	if !errors.Is(second, base) || !errors.Is(second, ErrWrite) {
		t.Fatalf("expected both cause and sentinel to match")
	}
	if got := (&WriteError{Op: "commit", Err: base}).Error(); got != "commit: duplicate key" {
		t.Fatalf("Error()=%q", got)
	}
}
