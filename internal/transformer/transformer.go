// Package transformer projects parsed records into star-schema rows.
//
// Everything here is pure: no I/O, no clocks. Song records become one songs row
// and one artists row; activity records are filtered to NextSong events and
// become time, users, and songplay-event rows.
package transformer

import (
	"errors"
	"time"

	"sparkify/internal/etlerr"
	"sparkify/internal/model"
	"sparkify/internal/transformer/builtin"
	"sparkify/pkg/records"
)

// NextSongPage is the only page value that represents a song play.
const NextSongPage = "NextSong"

var (
	// ErrNotNumeric is returned when a required numeric field cannot be coerced.
	ErrNotNumeric = errors.New("value is not numeric")

	// ErrNotText is returned when a required text field is not a scalar.
	ErrNotText = errors.New("value is not text")
)

// Transformer holds the projection options.
type Transformer struct {
	// NormalizeText applies Unicode NFC to the text fields used by the
	// song lookup (song title and artist name on both sides of the join).
	// The zero value keeps text verbatim.
	NormalizeText bool
}

// New returns a Transformer with the default options.
func New() Transformer {
	return Transformer{}
}

func (t Transformer) text(s string) string {
	if t.NormalizeText {
		return builtin.NFC(s)
	}
	return s
}

// SongFile projects the single record of a song-metadata file.
//
// Null policy:
//   - year: absent, null, or unparseable becomes 0.
//   - artist_latitude / artist_longitude: absent, null, or non-numeric becomes nil.
//   - artist_location: nil only when absent or null; an empty string is kept.
func (t Transformer) SongFile(path string, rec records.Record) (model.SongFile, error) {
	songID, err := requireText(path, rec, "song_id")
	if err != nil {
		return model.SongFile{}, err
	}
	title, err := requireText(path, rec, "title")
	if err != nil {
		return model.SongFile{}, err
	}
	artistID, err := requireText(path, rec, "artist_id")
	if err != nil {
		return model.SongFile{}, err
	}
	artistName, err := requireText(path, rec, "artist_name")
	if err != nil {
		return model.SongFile{}, err
	}
	duration, ok := builtin.ToFloat(rec["duration"])
	if !ok {
		return model.SongFile{}, etlerr.Parse(path, 1, "duration", ErrNotNumeric)
	}

	year := 0
	if y, ok := builtin.ToInt(rec["year"]); ok {
		year = int(y)
	}

	return model.SongFile{
		Path: path,
		Song: model.Song{
			SongID:   songID,
			Title:    t.text(title),
			ArtistID: artistID,
			Year:     year,
			Duration: duration,
		},
		Artist: model.Artist{
			ArtistID:  artistID,
			Name:      t.text(artistName),
			Location:  optionalText(rec["artist_location"]),
			Latitude:  optionalFloat(rec["artist_latitude"]),
			Longitude: optionalFloat(rec["artist_longitude"]),
		},
	}, nil
}

// LogFile projects the records of one activity file.
//
// Only records whose page is NextSong are kept. Each kept record yields one
// users row and one songplay event; time rows are deduplicated by start_time,
// keeping first-seen order. The songplay Ordinal is the record's index in recs
// before filtering.
func (t Transformer) LogFile(path string, recs []records.Record) (model.LogFile, error) {
	out := model.LogFile{Path: path, Total: len(recs)}
	seen := make(map[int64]struct{})

	for i, rec := range recs {
		if !IsNextSong(rec) {
			continue
		}
		line := i + 1

		ms, ok := builtin.ToInt(rec["ts"])
		if !ok {
			return model.LogFile{}, etlerr.Parse(path, line, "ts", ErrNotNumeric)
		}
		tr := DeriveTime(ms)

		if _, dup := seen[ms]; !dup {
			seen[ms] = struct{}{}
			out.Times = append(out.Times, tr)
		}

		userID := textOr(rec["userId"])
		level := textOr(rec["level"])
		out.Users = append(out.Users, model.User{
			UserID:    userID,
			FirstName: textOr(rec["firstName"]),
			LastName:  textOr(rec["lastName"]),
			Gender:    textOr(rec["gender"]),
			Level:     level,
		})

		sessionID, _ := builtin.ToInt(rec["sessionId"])
		length, _ := builtin.ToFloat(rec["length"])

		out.Songplays = append(out.Songplays, model.SongplayEvent{
			Ordinal:    i,
			SongplayID: builtin.SongplayKey(tr.StartTime, userID, sessionID),
			StartTime:  tr.StartTime,
			UserID:     userID,
			Level:      level,
			SessionID:  sessionID,
			Location:   textOr(rec["location"]),
			UserAgent:  textOr(rec["userAgent"]),
			SongTitle:  t.text(textOr(rec["song"])),
			ArtistName: t.text(textOr(rec["artist"])),
			Length:     length,
		})
	}

	return out, nil
}

// IsNextSong reports whether rec is a song-play event.
func IsNextSong(rec records.Record) bool {
	page, ok := rec.String("page")
	return ok && page == NextSongPage
}

// DeriveTime expands an epoch-millisecond timestamp into a time row, in UTC.
// Week is the ISO 8601 week number.
func DeriveTime(ms int64) model.Time {
	ts := time.UnixMilli(ms).UTC()
	_, week := ts.ISOWeek()
	return model.Time{
		StartTime: ts,
		Hour:      ts.Hour(),
		Day:       ts.Day(),
		Week:      week,
		Month:     int(ts.Month()),
		Year:      ts.Year(),
		Weekday:   ts.Weekday().String(),
	}
}

func requireText(path string, rec records.Record, field string) (string, error) {
	s, ok := builtin.ToString(rec[field])
	if !ok {
		return "", etlerr.Parse(path, 1, field, ErrNotText)
	}
	return s, nil
}

func textOr(v any) string {
	s, _ := builtin.ToString(v)
	return s
}

func optionalText(v any) *string {
	s, ok := builtin.ToString(v)
	if !ok {
		return nil
	}
	return &s
}

func optionalFloat(v any) *float64 {
	f, ok := builtin.ToFloat(v)
	if !ok {
		return nil
	}
	return &f
}
