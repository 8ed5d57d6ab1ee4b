package multitable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sparkify/internal/etlerr"
	"sparkify/internal/model"
	"sparkify/internal/storage"
)

type catalogKey struct {
	title  string
	artist string
	length float64
}

// fakeStore is an in-memory repository shared by every fakeTx it begins.
// Writes are staged per transaction and applied on Commit.
type fakeStore struct {
	mu sync.Mutex

	songs     map[string]model.Song
	artists   map[string]model.Artist
	times     map[int64]model.Time
	users     map[string]model.User
	songplays map[string]model.Songplay

	// calls records Tx method names in order, across transactions.
	calls []string

	failOn     string // Tx method that returns an error
	failCommit bool
	begun      int
	committed  int
	rolledBack int
	closed     int
	ensured    []storage.TableSpec
	ensureErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		songs:     map[string]model.Song{},
		artists:   map[string]model.Artist{},
		times:     map[int64]model.Time{},
		users:     map[string]model.User{},
		songplays: map[string]model.Songplay{},
	}
}

func (s *fakeStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *fakeStore) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append([]storage.TableSpec(nil), tables...)
	return s.ensureErr
}

func (s *fakeStore) Count(ctx context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch table {
	case storage.TableSongs:
		return int64(len(s.songs)), nil
	case storage.TableArtists:
		return int64(len(s.artists)), nil
	case storage.TableTime:
		return int64(len(s.times)), nil
	case storage.TableUsers:
		return int64(len(s.users)), nil
	case storage.TableSongplays:
		return int64(len(s.songplays)), nil
	}
	return 0, fmt.Errorf("unknown table %s", table)
}

func (s *fakeStore) Begin(ctx context.Context) (storage.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begun++
	return &fakeTx{s: s}, nil
}

var errInjected = errors.New("injected failure")

type fakeTx struct {
	s      *fakeStore
	staged []func()
	// pending songplay ids staged in this transaction
	pending map[string]bool
	done    bool
}

func (t *fakeTx) call(name, table string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.calls = append(t.s.calls, name)
	if t.s.failOn == name {
		return etlerr.Write(table, "upsert", errInjected)
	}
	return nil
}

func (t *fakeTx) UpsertSong(ctx context.Context, s model.Song) error {
	if err := t.call("UpsertSong", storage.TableSongs); err != nil {
		return err
	}
	t.staged = append(t.staged, func() {
		if _, ok := t.s.songs[s.SongID]; !ok {
			t.s.songs[s.SongID] = s
		}
	})
	return nil
}

func (t *fakeTx) UpsertArtist(ctx context.Context, a model.Artist) error {
	if err := t.call("UpsertArtist", storage.TableArtists); err != nil {
		return err
	}
	t.staged = append(t.staged, func() {
		if _, ok := t.s.artists[a.ArtistID]; !ok {
			t.s.artists[a.ArtistID] = a
		}
	})
	return nil
}

func (t *fakeTx) UpsertTime(ctx context.Context, tr model.Time) error {
	if err := t.call("UpsertTime", storage.TableTime); err != nil {
		return err
	}
	t.staged = append(t.staged, func() {
		ms := tr.StartTime.UnixMilli()
		if _, ok := t.s.times[ms]; !ok {
			t.s.times[ms] = tr
		}
	})
	return nil
}

func (t *fakeTx) UpsertUser(ctx context.Context, u model.User) error {
	if err := t.call("UpsertUser", storage.TableUsers); err != nil {
		return err
	}
	t.staged = append(t.staged, func() { t.s.users[u.UserID] = u })
	return nil
}

// LookupSong only sees committed rows.
func (t *fakeTx) LookupSong(ctx context.Context, title, artistName string, length float64) (string, string, bool, error) {
	if err := t.call("LookupSong", storage.TableSongs); err != nil {
		return "", "", false, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var hits []model.Song
	for _, s := range t.s.songs {
		a, ok := t.s.artists[s.ArtistID]
		if !ok {
			continue
		}
		if s.Title == title && a.Name == artistName && s.Duration == length {
			hits = append(hits, s)
		}
	}
	if len(hits) != 1 {
		return "", "", false, nil
	}
	return hits[0].SongID, hits[0].ArtistID, true, nil
}

func (t *fakeTx) InsertSongplay(ctx context.Context, p model.Songplay) (bool, error) {
	if err := t.call("InsertSongplay", storage.TableSongplays); err != nil {
		return false, err
	}
	t.s.mu.Lock()
	_, exists := t.s.songplays[p.SongplayID]
	t.s.mu.Unlock()
	if exists || t.pending[p.SongplayID] {
		return false, nil
	}
	if t.pending == nil {
		t.pending = map[string]bool{}
	}
	t.pending[p.SongplayID] = true
	t.staged = append(t.staged, func() { t.s.songplays[p.SongplayID] = p })
	return true, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.failCommit {
		return etlerr.Write("", "commit", errInjected)
	}
	for _, fn := range t.staged {
		fn()
	}
	t.s.committed++
	t.done = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return nil
	}
	t.staged = nil
	t.s.rolledBack++
	t.done = true
	return nil
}

var (
	_ storage.Repository = (*fakeStore)(nil)
	_ storage.Tx         = (*fakeTx)(nil)
)
