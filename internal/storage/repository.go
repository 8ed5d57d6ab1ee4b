package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sparkify/internal/etlerr"
	"sparkify/internal/model"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - DurationTolerance is the maximum |songs.duration - length| accepted by
//     LookupSong. Zero means exact equality.
type Config struct {
	Kind              string
	DSN               string
	DurationTolerance float64
}

// Repository is the backend-agnostic handle the batch driver writes through.
//
// Each backend implements the conflict semantics in its own dialect (Postgres
// and SQLite ON CONFLICT, SQL Server guarded INSERT/UPDATE, MySQL ON DUPLICATE KEY).
type Repository interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// EnsureTables creates tables whose AutoCreateTable is set and that do not
	// exist yet. It is idempotent.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// Begin opens the transaction that scopes one input file.
	Begin(ctx context.Context) (Tx, error)

	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)
}

// Tx is one per-file unit of work.
//
// Every method returns *etlerr.WriteError on failure. After any error the
// caller must Rollback.
type Tx interface {
	// UpsertSong inserts s; an existing song_id is left unchanged.
	UpsertSong(ctx context.Context, s model.Song) error

	// UpsertArtist inserts a; an existing artist_id is left unchanged.
	UpsertArtist(ctx context.Context, a model.Artist) error

	// UpsertTime inserts t; an existing start_time is left unchanged.
	UpsertTime(ctx context.Context, t model.Time) error

	// UpsertUser inserts u or overwrites first_name, last_name, gender, and
	// level of an existing user_id.
	UpsertUser(ctx context.Context, u model.User) error

	// LookupSong resolves (title, artist name, length) against songs joined to
	// artists. found is true only when exactly one row matches.
	LookupSong(ctx context.Context, title, artistName string, length float64) (songID, artistID string, found bool, err error)

	// InsertSongplay inserts p. inserted is false when songplay_id already exists.
	InsertSongplay(ctx context.Context, p model.Songplay) (inserted bool, err error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens a Repository for a backend.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Repository using the registered backend factory.
//
// Errors:
//   - Every failure, including an empty or unknown kind, is returned as
//     *etlerr.ConnectionError.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, &etlerr.ConnectionError{Kind: cfg.Kind, Err: fmt.Errorf("storage: missing kind")}
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, &etlerr.ConnectionError{Kind: cfg.Kind, Err: fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)}
	}

	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, &etlerr.ConnectionError{Kind: cfg.Kind, Err: err}
	}
	return repo, nil
}
