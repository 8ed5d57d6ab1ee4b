package builtin

import "golang.org/x/text/unicode/norm"

// NFC returns s in Unicode normalization form C. ASCII input is returned as is.
func NFC(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
