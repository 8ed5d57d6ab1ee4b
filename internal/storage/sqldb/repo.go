// Package sqldb implements storage.Repository on database/sql.
//
// The statements differ per backend (placeholders, quoting, upsert syntax), so
// each backend package supplies a Dialect and registers it with Register. The
// transaction and lookup logic is shared.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sparkify/internal/etlerr"
	"sparkify/internal/model"
	"sparkify/internal/storage"
)

// Dialect renders backend-specific SQL.
type Dialect interface {
	// Kind is the storage.kind this dialect registers under.
	Kind() string

	// DriverName is the database/sql driver name passed to sql.Open.
	DriverName() string

	// Placeholder returns the i-th (1-based) bind parameter marker.
	Placeholder(i int) string

	// Quote quotes an identifier.
	Quote(ident string) string

	// ColumnType maps a logical storage.Type* to a native type.
	ColumnType(logical string) (string, error)

	// CreateTableSQL returns idempotent DDL for t.
	CreateTableSQL(t storage.TableSpec) (string, error)

	// UpsertSQL returns a single-row insert honoring t.Conflict.
	UpsertSQL(t storage.TableSpec) (string, error)

	// LimitSQL wraps a SELECT so it returns at most n rows.
	LimitSQL(selectList, rest string, n int) string

	// BindTime converts a timestamp into the value the driver should store.
	BindTime(t time.Time) any

	// Configure tunes the pool after sql.Open.
	Configure(db *sql.DB)
}

// Register wires d into the storage factory under d.Kind().
func Register(d Dialect) {
	storage.Register(d.Kind(), func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, d, cfg)
	})
}

// Repo implements storage.Repository for a database/sql backend.
type Repo struct {
	db        *sql.DB
	d         Dialect
	tolerance float64
	stmts     statements
}

type statements struct {
	upsert map[string]string
	lookup string
}

var _ storage.Repository = (*Repo)(nil)

// Open opens and pings the database, then prepares the statement text.
func Open(ctx context.Context, d Dialect, cfg storage.Config) (*Repo, error) {
	db, err := sql.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, err
	}
	d.Configure(db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	r, err := NewWithDB(db, d, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// NewWithDB builds a Repo around an already-open handle.
func NewWithDB(db *sql.DB, d Dialect, cfg storage.Config) (*Repo, error) {
	st, err := buildStatements(d)
	if err != nil {
		return nil, err
	}
	return &Repo{db: db, d: d, tolerance: cfg.DurationTolerance, stmts: st}, nil
}

func buildStatements(d Dialect) (statements, error) {
	st := statements{upsert: make(map[string]string)}
	for _, t := range storage.StarSchema(false) {
		q, err := d.UpsertSQL(t)
		if err != nil {
			return statements{}, fmt.Errorf("%s: upsert %s: %w", d.Kind(), t.Name, err)
		}
		st.upsert[t.Name] = q
	}
	st.lookup = LookupSQL(d)
	return st, nil
}

// LookupSQL returns the songs-artists resolution query. It selects at most two
// rows so the caller can tell a unique match from an ambiguous one.
//
// Parameters: title, artist name, length, tolerance.
func LookupSQL(d Dialect) string {
	q := d.Quote
	selectList := fmt.Sprintf("s.%s, s.%s", q("song_id"), q("artist_id"))
	rest := fmt.Sprintf(
		"FROM %s s JOIN %s a ON s.%s = a.%s WHERE s.%s = %s AND a.%s = %s AND ABS(s.%s - %s) <= %s ORDER BY s.%s",
		q(storage.TableSongs), q(storage.TableArtists),
		q("artist_id"), q("artist_id"),
		q("title"), d.Placeholder(1),
		q("name"), d.Placeholder(2),
		q("duration"), d.Placeholder(3), d.Placeholder(4),
		q("song_id"),
	)
	return d.LimitSQL(selectList, rest, 2)
}

// Close closes the pool.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables runs CreateTableSQL for each table with AutoCreateTable set.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		ddl, err := r.d.CreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%s: create table %s: %w", r.d.Kind(), t.Name, err)
		}
	}
	return nil
}

// Count returns SELECT COUNT(*) for table.
func (r *Repo) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + r.d.Quote(table)
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Begin starts a transaction.
func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, etlerr.Write("", "begin", err)
	}
	return &Tx{tx: tx, r: r}, nil
}

// Tx implements storage.Tx over *sql.Tx.
type Tx struct {
	tx *sql.Tx
	r  *Repo
}

var _ storage.Tx = (*Tx)(nil)

func (t *Tx) exec(ctx context.Context, table string, args []any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, t.r.stmts.upsert[table], args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Tx) UpsertSong(ctx context.Context, s model.Song) error {
	_, err := t.exec(ctx, storage.TableSongs, storage.SongArgs(s))
	return etlerr.Write(storage.TableSongs, "upsert", err)
}

func (t *Tx) UpsertArtist(ctx context.Context, a model.Artist) error {
	_, err := t.exec(ctx, storage.TableArtists, storage.ArtistArgs(a))
	return etlerr.Write(storage.TableArtists, "upsert", err)
}

func (t *Tx) UpsertTime(ctx context.Context, tr model.Time) error {
	_, err := t.exec(ctx, storage.TableTime, storage.TimeArgs(tr, t.r.d.BindTime))
	return etlerr.Write(storage.TableTime, "upsert", err)
}

func (t *Tx) UpsertUser(ctx context.Context, u model.User) error {
	_, err := t.exec(ctx, storage.TableUsers, storage.UserArgs(u))
	return etlerr.Write(storage.TableUsers, "upsert", err)
}

func (t *Tx) InsertSongplay(ctx context.Context, p model.Songplay) (bool, error) {
	n, err := t.exec(ctx, storage.TableSongplays, storage.SongplayArgs(p, t.r.d.BindTime))
	if err != nil {
		return false, etlerr.Write(storage.TableSongplays, "insert", err)
	}
	return n > 0, nil
}

func (t *Tx) LookupSong(ctx context.Context, title, artistName string, length float64) (string, string, bool, error) {
	rows, err := t.tx.QueryContext(ctx, t.r.stmts.lookup, title, artistName, length, t.r.tolerance)
	if err != nil {
		return "", "", false, etlerr.Write(storage.TableSongs, "lookup", err)
	}
	defer rows.Close()

	var songID, artistID any
	matches := 0
	for rows.Next() {
		matches++
		if matches > 1 {
			break
		}
		if err := rows.Scan(&songID, &artistID); err != nil {
			return "", "", false, etlerr.Write(storage.TableSongs, "lookup", err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", "", false, etlerr.Write(storage.TableSongs, "lookup", err)
	}
	if matches != 1 {
		return "", "", false, nil
	}
	return storage.NormalizeKey(songID), storage.NormalizeKey(artistID), true, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return etlerr.Write("", "commit", t.tx.Commit())
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// ColumnDefs renders "<col> <type> [NOT NULL]" for every column of t followed
// by the PRIMARY KEY clause.
func ColumnDefs(d Dialect, t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, err := d.ColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := d.Quote(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+IdentList(d, t.PrimaryKey)+")")
	return strings.Join(defs, ", "), nil
}

// IdentList quotes and comma-joins names.
func IdentList(d Dialect, names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.Quote(n)
	}
	return strings.Join(out, ", ")
}

// Placeholders returns n comma-joined placeholders starting at 1.
func Placeholders(d Dialect, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(i + 1)
	}
	return strings.Join(out, ", ")
}

// ExcludedUpsertSQL renders the "INSERT ... ON CONFLICT (pk) DO NOTHING | DO
// UPDATE SET c = excluded.c" form shared by SQLite and Postgres.
func ExcludedUpsertSQL(d Dialect, t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" (")
	b.WriteString(IdentList(d, t.ColumnNames()))
	b.WriteString(") VALUES (")
	b.WriteString(Placeholders(d, len(t.Columns)))
	b.WriteString(") ON CONFLICT (")
	b.WriteString(IdentList(d, t.PrimaryKey))
	b.WriteString(")")

	switch t.Conflict.Action {
	case storage.ActionUpdate:
		b.WriteString(" DO UPDATE SET ")
		for i, c := range t.Conflict.UpdateColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Quote(c))
			b.WriteString(" = excluded.")
			b.WriteString(d.Quote(c))
		}
	default:
		b.WriteString(" DO NOTHING")
	}
	return b.String(), nil
}
