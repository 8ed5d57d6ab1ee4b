// Package multitable loads projected files into the five star-schema tables.
//
// Engine writes one file's rows through a storage.Tx. Runner drives a whole
// batch: it lists both input trees, parses and projects each file, and gives
// every file its own transaction, song files first so activity lookups see
// the catalog.
package multitable

import (
	"context"

	"go.uber.org/zap"

	"sparkify/internal/model"
	"sparkify/internal/storage"
)

// Engine writes projected files. The zero value is usable; a nil Logger
// discards output.
type Engine struct {
	Logger *zap.Logger
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// LoadSongFile upserts the song and artist of one song-metadata file.
// Existing rows are left unchanged.
func (e *Engine) LoadSongFile(ctx context.Context, tx storage.Tx, f model.SongFile) (FileStats, error) {
	var st FileStats

	if err := tx.UpsertSong(ctx, f.Song); err != nil {
		return st, err
	}
	st.Songs++

	if err := tx.UpsertArtist(ctx, f.Artist); err != nil {
		return st, err
	}
	st.Artists++

	return st, nil
}

// LoadLogFile writes the time, user and songplay rows of one activity file,
// in that order.
//
// Each songplay is resolved against the catalog first: a unique match on
// title, artist name and duration yields its song_id and artist_id; no match
// or several matches leave both NULL. A songplay already present (same
// start_time, user and session) is not written again.
//
// The first failing statement aborts the file; the caller rolls back.
func (e *Engine) LoadLogFile(ctx context.Context, tx storage.Tx, f model.LogFile) (FileStats, error) {
	log := e.logger()
	st := FileStats{EventsSkipped: f.Skipped()}

	for _, t := range f.Times {
		if err := tx.UpsertTime(ctx, t); err != nil {
			return st, err
		}
		st.Times++
	}

	for _, u := range f.Users {
		if err := tx.UpsertUser(ctx, u); err != nil {
			return st, err
		}
		st.Users++
	}

	for _, ev := range f.Songplays {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		songID, artistID, found, err := tx.LookupSong(ctx, ev.SongTitle, ev.ArtistName, ev.Length)
		if err != nil {
			return st, err
		}

		var sp model.Songplay
		if found {
			sp = ev.Songplay(&songID, &artistID)
		} else {
			sp = ev.Songplay(nil, nil)
			st.SongplaysUnmatched++
		}

		inserted, err := tx.InsertSongplay(ctx, sp)
		if err != nil {
			return st, err
		}
		if inserted {
			st.Songplays++
		} else {
			st.SongplaysExisting++
		}

		if ce := log.Check(zap.DebugLevel, "songplay"); ce != nil {
			ce.Write(
				zap.String("file", f.Path),
				zap.Int("ordinal", ev.Ordinal),
				zap.String("songplay_id", sp.SongplayID),
				zap.Bool("matched", found),
				zap.Bool("inserted", inserted),
			)
		}
	}

	return st, nil
}
