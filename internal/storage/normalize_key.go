package storage

import (
	"fmt"
	"strconv"
)

// NormalizeKey converts a scanned key value to its string form.
//
// Drivers disagree on what a text column scans to when the destination is
// `any` (MySQL yields []byte, SQLite and SQL Server yield string), so lookups
// scan into `any` and normalize here. Keys are returned verbatim, not trimmed.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(v)
	}
}
