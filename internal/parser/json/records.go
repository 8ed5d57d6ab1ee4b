// Package json reads newline-delimited JSON log files into records.
//
// Each non-blank line holds one JSON object. Numbers are decoded with UseNumber
// and then narrowed: integral values become int64 (so epoch-millisecond
// timestamps survive intact) and everything else becomes float64.
package json

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	gojson "github.com/goccy/go-json"

	"sparkify/internal/etlerr"
	"sparkify/pkg/records"
)

var (
	// ErrEmpty is returned (wrapped in a ParseError) when a file has no records.
	ErrEmpty = errors.New("no records")

	// ErrRecordCount is returned when a song file does not hold exactly one record.
	ErrRecordCount = errors.New("unexpected record count")

	// ErrMissingField is returned when a required field is absent or null.
	ErrMissingField = errors.New("required field missing")

	// ErrNotObject is returned when a line decodes to something other than an object.
	ErrNotObject = errors.New("line is not a JSON object")
)

// Required fields per file family.
var (
	SongRequired = []string{"song_id", "title", "artist_id", "artist_name", "duration"}
	LogRequired  = []string{"page", "ts"}
)

// Options controls ReadRecords.
type Options struct {
	// Path is used only for error messages.
	Path string

	// Required lists fields that must be present and non-null in every record.
	Required []string
}

// ReadRecords decodes every non-blank line of r into a Record, in order.
//
// Errors are *etlerr.ParseError with the 1-based line number. A reader with no
// records yields ErrEmpty.
func ReadRecords(ctx context.Context, r io.Reader, opts Options) ([]records.Record, error) {
	br := bufio.NewReader(r)

	var out []records.Record
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, readErr := br.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) > 0 {
				rec, err := decodeLine(trimmed)
				if err != nil {
					return nil, etlerr.Parse(opts.Path, line, "", err)
				}
				if missing := rec.Missing(opts.Required...); len(missing) > 0 {
					return nil, etlerr.Parse(opts.Path, line, missing[0], ErrMissingField)
				}
				out = append(out, rec)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, etlerr.Parse(opts.Path, line, "", readErr)
		}
	}

	if len(out) == 0 {
		return nil, etlerr.Parse(opts.Path, 0, "", ErrEmpty)
	}
	return out, nil
}

func decodeLine(b []byte) (records.Record, error) {
	dec := gojson.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNotObject
	}

	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("trailing data after object")
	}

	for k, v := range obj {
		nv, err := narrow(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = nv
	}
	return records.Record(obj), nil
}

// narrow converts json.Number values (recursively) to int64 or float64.
func narrow(v any) (any, error) {
	switch t := v.(type) {
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return f, nil
	case []any:
		for i := range t {
			nv, err := narrow(t[i])
			if err != nil {
				return nil, err
			}
			t[i] = nv
		}
		return t, nil
	case map[string]any:
		for k := range t {
			nv, err := narrow(t[k])
			if err != nil {
				return nil, err
			}
			t[k] = nv
		}
		return t, nil
	default:
		return v, nil
	}
}

// ReadFile opens path and runs ReadRecords over it.
func ReadFile(ctx context.Context, path string, required []string) ([]records.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, etlerr.Parse(path, 0, "", err)
	}
	defer f.Close()

	return ReadRecords(ctx, f, Options{Path: path, Required: required})
}

// ParseSongFile reads a song-metadata file. The file must hold exactly one
// record carrying every field in SongRequired.
func ParseSongFile(ctx context.Context, path string) (records.Record, error) {
	recs, err := ReadFile(ctx, path, SongRequired)
	if err != nil {
		return nil, err
	}
	if len(recs) != 1 {
		return nil, etlerr.Parse(path, 0, "", fmt.Errorf("%w: got %d, want 1", ErrRecordCount, len(recs)))
	}
	return recs[0], nil
}

// ParseLogFile reads an activity file. Every record must carry page and ts.
func ParseLogFile(ctx context.Context, path string) ([]records.Record, error) {
	return ReadFile(ctx, path, LogRequired)
}
