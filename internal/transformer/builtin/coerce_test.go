package builtin

import "testing"

func TestToInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{int64(2008), 2008, true},
		{float64(1999), 1999, true},
		{"1987", 1987, true},
		{" 2001 ", 2001, true},
		{"2001.0", 2001, true},
		{"unknown", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}

	for _, tc := range tests {
		got, ok := ToInt(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ToInt(%#v)=(%d,%v), want (%d,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestToFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{218.93179, 218.93179, true},
		{int64(200), 200, true},
		{"35.14968", 35.14968, true},
		{"", 0, false},
		{"north", 0, false},
		{nil, 0, false},
	}

	for _, tc := range tests {
		got, ok := ToFloat(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ToFloat(%#v)=(%v,%v), want (%v,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestToString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{"39", "39", true},
		{int64(39), "39", true},
		{12.5, "12.5", true},
		{false, "false", true},
		{nil, "", false},
		{[]any{"x"}, "", false},
	}

	for _, tc := range tests {
		got, ok := ToString(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ToString(%#v)=(%q,%v), want (%q,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
