// Package builtin contains small, reusable value helpers used by the transformer.
package builtin

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"sparkify/pkg/records"
)

// fieldSep separates field components in the canonical form (ASCII Unit Separator).
const fieldSep = '\x1f'

// Hash computes a deterministic 128-bit xxh3 digest over selected fields of a
// record.
//
// Canonicalization rules:
//   - Fields are concatenated in the given order, separated by 0x1f.
//   - Missing or nil values are encoded as a single NUL byte (0x00) so missing
//     differs from empty-string.
//   - time.Time values are encoded as RFC3339Nano in UTC.
//   - Output is a lowercase hex string (length 32).
type Hash struct {
	// Fields is the ordered list of input fields used to compute the hash.
	Fields []string

	// IncludeFieldNames includes "field=value" in the canonical form.
	IncludeFieldNames bool
}

// Sum returns the hex digest of r.
func (h Hash) Sum(r records.Record) string {
	sum := xxh3.HashString128(h.canonical(r)).Bytes()
	return hex.EncodeToString(sum[:])
}

func (h Hash) canonical(r records.Record) string {
	var b strings.Builder
	b.Grow(len(h.Fields) * 20)

	for i, f := range h.Fields {
		if i > 0 {
			b.WriteByte(fieldSep)
		}
		if h.IncludeFieldNames {
			b.WriteString(f)
			b.WriteByte('=')
		}

		v, ok := r[f]
		if !ok || v == nil {
			b.WriteByte('\x00')
			continue
		}
		appendCanonicalValue(&b, v)
	}
	return b.String()
}

func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case string:
		b.WriteString(t)
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case time.Time:
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
	default:
		b.WriteString(fmt.Sprint(t))
	}
}

var songplayHash = Hash{
	Fields:            []string{"start_time", "user_id", "session_id"},
	IncludeFieldNames: true,
}

// SongplayKey is the songplay_id for an event: a digest of the tuple
// (start_time, user_id, session_id). Re-reading the same event always yields
// the same key.
func SongplayKey(start time.Time, userID string, sessionID int64) string {
	return songplayHash.Sum(records.Record{
		"start_time": start,
		"user_id":    userID,
		"session_id": sessionID,
	})
}
