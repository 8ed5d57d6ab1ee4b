// Package model holds the row types of the song-play star schema.
//
// Nullable columns are pointers; a nil pointer is written as SQL NULL.
package model

import "time"

// Song is one row of the songs dimension.
type Song struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int // 0 when unknown
	Duration float64
}

// Artist is one row of the artists dimension.
type Artist struct {
	ArtistID  string
	Name      string
	Location  *string
	Latitude  *float64
	Longitude *float64
}

// User is one row of the users dimension.
type User struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// Time is one row of the time dimension. Every field other than StartTime is
// derived from StartTime in UTC.
type Time struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   string
}

// SongplayEvent is a retained activity event before song/artist resolution.
//
// Ordinal is the 0-based position of the record in its source file, counted
// before page filtering.
type SongplayEvent struct {
	Ordinal    int
	SongplayID string
	StartTime  time.Time
	UserID     string
	Level      string
	SessionID  int64
	Location   string
	UserAgent  string
	SongTitle  string
	ArtistName string
	Length     float64
}

// Songplay is one row of the songplays fact table.
type Songplay struct {
	SongplayID string
	StartTime  time.Time
	UserID     string
	Level      string
	SongID     *string
	ArtistID   *string
	SessionID  int64
	Location   string
	UserAgent  string
}

// Songplay builds the fact row for e with the resolved keys. Both keys are nil
// unless the lookup matched.
func (e SongplayEvent) Songplay(songID, artistID *string) Songplay {
	return Songplay{
		SongplayID: e.SongplayID,
		StartTime:  e.StartTime,
		UserID:     e.UserID,
		Level:      e.Level,
		SongID:     songID,
		ArtistID:   artistID,
		SessionID:  e.SessionID,
		Location:   e.Location,
		UserAgent:  e.UserAgent,
	}
}

// SongFile is the projection of one song-metadata file.
type SongFile struct {
	Path   string
	Song   Song
	Artist Artist
}

// LogFile is the projection of one activity file.
//
// Times holds one row per distinct start_time in first-seen order. Users holds
// one row per retained event, in file order.
type LogFile struct {
	Path      string
	Total     int // records before filtering
	Times     []Time
	Users     []User
	Songplays []SongplayEvent
}

// Skipped returns the number of records dropped by the page filter.
func (f LogFile) Skipped() int {
	return f.Total - len(f.Songplays)
}
