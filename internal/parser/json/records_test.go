package json

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sparkify/internal/etlerr"
)

const songLine = `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestReadRecords_TypesAndOrder(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		`{"page":"NextSong","ts":1541903636796,"length":249.3,"sessionId":583,"userId":"39"}`,
		``,
		`   `,
		`{"page":"Home","ts":1541903770796,"song":null}`,
	}, "\n")

	recs, err := ReadRecords(context.Background(), strings.NewReader(in), Options{Path: "mem"})
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len=%d, want 2", len(recs))
	}

	first := recs[0]
	if ts, ok := first["ts"].(int64); !ok || ts != 1541903636796 {
		t.Fatalf("ts=%T %v, want int64", first["ts"], first["ts"])
	}
	if l, ok := first["length"].(float64); !ok || l != 249.3 {
		t.Fatalf("length=%T %v, want float64", first["length"], first["length"])
	}
	if s, ok := first["sessionId"].(int64); !ok || s != 583 {
		t.Fatalf("sessionId=%T %v", first["sessionId"], first["sessionId"])
	}
	if u, ok := first["userId"].(string); !ok || u != "39" {
		t.Fatalf("userId=%T %v", first["userId"], first["userId"])
	}

	second := recs[1]
	if second["page"] != "Home" {
		t.Fatalf("order not preserved: %v", second["page"])
	}
	if v, ok := second["song"]; !ok || v != nil {
		t.Fatalf("null must decode to present nil, got ok=%v v=%v", ok, v)
	}
}

func TestReadRecords_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		required []string
		wantLine int
		field    string
		sentinel error
	}{
		{name: "empty", in: "", wantLine: 0, sentinel: ErrEmpty},
		{name: "blank_only", in: "\n  \n", wantLine: 0, sentinel: ErrEmpty},
		{name: "malformed_second_line", in: "{\"a\":1}\n{\"a\":", wantLine: 2},
		{name: "not_object", in: "[1,2]", wantLine: 1},
		{name: "null_line", in: "null", wantLine: 1, sentinel: ErrNotObject},
		{name: "missing_required", in: `{"page":"NextSong"}`, required: LogRequired, wantLine: 1, field: "ts", sentinel: ErrMissingField},
		{name: "null_required", in: `{"page":"NextSong","ts":null}`, required: LogRequired, wantLine: 1, field: "ts", sentinel: ErrMissingField},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadRecords(context.Background(), strings.NewReader(tc.in), Options{Path: "f.json", Required: tc.required})
			if err == nil {
				t.Fatalf("expected error")
			}
			var pe *etlerr.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *etlerr.ParseError, got %T: %v", err, err)
			}
			if pe.Line != tc.wantLine {
				t.Fatalf("line=%d, want %d (%v)", pe.Line, tc.wantLine, err)
			}
			if pe.Field != tc.field {
				t.Fatalf("field=%q, want %q", pe.Field, tc.field)
			}
			if tc.sentinel != nil && !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
		})
	}
}

func TestReadRecords_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadRecords(ctx, strings.NewReader(`{"a":1}`), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestParseSongFile(t *testing.T) {
	t.Parallel()

	t.Run("single_record", func(t *testing.T) {
		p := writeFile(t, "TRAAAAW128F429D538.json", songLine+"\n")
		rec, err := ParseSongFile(context.Background(), p)
		if err != nil {
			t.Fatalf("ParseSongFile: %v", err)
		}
		if rec["song_id"] != "SOMZWCG12A8C13C480" || rec["artist_name"] != "Casual" {
			t.Fatalf("unexpected record: %v", rec)
		}
		if rec["year"] != int64(0) {
			t.Fatalf("year=%T %v", rec["year"], rec["year"])
		}
		if rec["artist_latitude"] != nil {
			t.Fatalf("latitude should be nil")
		}
	})

	t.Run("two_records", func(t *testing.T) {
		p := writeFile(t, "two.json", songLine+"\n"+songLine+"\n")
		_, err := ParseSongFile(context.Background(), p)
		if !errors.Is(err, ErrRecordCount) || !errors.Is(err, etlerr.ErrParse) {
			t.Fatalf("err=%v, want ErrRecordCount parse error", err)
		}
	})

	t.Run("missing_duration", func(t *testing.T) {
		p := writeFile(t, "nodur.json", `{"song_id":"S","title":"T","artist_id":"A","artist_name":"N"}`)
		_, err := ParseSongFile(context.Background(), p)
		var pe *etlerr.ParseError
		if !errors.As(err, &pe) || pe.Field != "duration" {
			t.Fatalf("err=%v, want missing duration", err)
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := ParseSongFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
		if !errors.Is(err, os.ErrNotExist) || !errors.Is(err, etlerr.ErrParse) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestParseLogFile(t *testing.T) {
	t.Parallel()

	body := `{"artist":null,"auth":"Logged In","firstName":"Walter","gender":"M","itemInSession":0,"lastName":"Frye","length":null,"level":"free","location":"San Francisco-Oakland-Hayward, CA","method":"GET","page":"Home","registration":1540919166796.0,"sessionId":38,"song":null,"status":200,"ts":1541105830796,"userAgent":"Mozilla/5.0","userId":"39"}
{"artist":"Des'ree","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":1,"lastName":"Summers","length":246.30812,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"You Gotta Be","status":200,"ts":1541106106796,"userAgent":"Mozilla/5.0","userId":"8"}
`
	p := writeFile(t, "2018-11-01-events.json", body)

	recs, err := ParseLogFile(context.Background(), p)
	if err != nil {
		t.Fatalf("ParseLogFile: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len=%d", len(recs))
	}
	// A decimal point keeps the value a float even when it is integral.
	if _, ok := recs[0]["registration"].(float64); !ok {
		t.Fatalf("registration=%T", recs[0]["registration"])
	}
	if recs[1]["song"] != "You Gotta Be" {
		t.Fatalf("song=%v", recs[1]["song"])
	}
}
