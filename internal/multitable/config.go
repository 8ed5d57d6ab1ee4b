package multitable

import "time"

// Dataset names, used in logs and metrics.
const (
	DatasetSongs = "song_data"
	DatasetLogs  = "log_data"
)

// Metric step names.
const (
	stepSongFile     = "song_file"
	stepLogFile      = "log_file"
	stepEnsureTables = "ensure_tables"
)

// FileStats counts the rows one file wrote. Dimension counts are upsert
// statements executed, whether or not the row already existed.
type FileStats struct {
	Songs   int
	Artists int
	Times   int
	Users   int

	// Songplays counts newly inserted facts; SongplaysExisting counts facts
	// already present from an earlier run.
	Songplays         int
	SongplaysExisting int

	// SongplaysUnmatched counts facts loaded with NULL song_id/artist_id.
	SongplaysUnmatched int

	// EventsSkipped counts activity records dropped by the page filter.
	EventsSkipped int
}

func (s *FileStats) add(o FileStats) {
	s.Songs += o.Songs
	s.Artists += o.Artists
	s.Times += o.Times
	s.Users += o.Users
	s.Songplays += o.Songplays
	s.SongplaysExisting += o.SongplaysExisting
	s.SongplaysUnmatched += o.SongplaysUnmatched
	s.EventsSkipped += o.EventsSkipped
}

// FileFailure records a file whose transaction was rolled back.
type FileFailure struct {
	Dataset string
	Path    string
	Err     error
}

// Summary describes a whole run. Row counts cover committed files only.
type Summary struct {
	FileStats

	SongFiles int
	LogFiles  int
	Failures  []FileFailure
	Duration  time.Duration
}
