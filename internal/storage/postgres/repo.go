// Package postgres registers the "postgres" storage backend on pgx.
//
// Statements come from Dialect and are built once at open. Each log or song
// file is loaded in one pgx transaction; the lookup join runs inside that
// transaction so it sees songs and artists written earlier in the same run.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sparkify/internal/etlerr"
	"sparkify/internal/model"
	"sparkify/internal/storage"
	"sparkify/internal/storage/sqldb"
)

func init() {
	storage.Register("postgres", New)
}

// Repo implements storage.Repository for Postgres.
type Repo struct {
	pool      *pgxpool.Pool
	d         Dialect
	tolerance float64
	upsert    map[string]string
	lookup    string
}

var _ storage.Repository = (*Repo)(nil)

// New creates a pool and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	d := Dialect{}
	upsert, err := upsertStatements(d)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{
		pool:      pool,
		d:         d,
		tolerance: cfg.DurationTolerance,
		upsert:    upsert,
		lookup:    sqldb.LookupSQL(d),
	}, nil
}

func upsertStatements(d Dialect) (map[string]string, error) {
	out := make(map[string]string)
	for _, t := range storage.StarSchema(false) {
		q, err := d.UpsertSQL(t)
		if err != nil {
			return nil, fmt.Errorf("postgres: upsert %s: %w", t.Name, err)
		}
		out[t.Name] = q
	}
	return out, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// EnsureTables creates each table with AutoCreateTable set. Safe to run on
// every invocation.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		ddl, err := r.d.CreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, etlerr.Write("", "begin", err)
	}
	return &Tx{tx: tx, r: r}, nil
}

// Tx implements storage.Tx over pgx.Tx.
type Tx struct {
	tx pgx.Tx
	r  *Repo
}

func (t *Tx) exec(ctx context.Context, table string, args []any) (int64, error) {
	tag, err := t.tx.Exec(ctx, t.r.upsert[table], args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
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

// LookupSong reports a match only when exactly one song satisfies the join.
func (t *Tx) LookupSong(ctx context.Context, title, artistName string, length float64) (string, string, bool, error) {
	rows, err := t.tx.Query(ctx, t.r.lookup, title, artistName, length, t.r.tolerance)
	if err != nil {
		return "", "", false, etlerr.Write(storage.TableSongs, "lookup", err)
	}
	defer rows.Close()

	var songID, artistID string
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
	return songID, artistID, true, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return etlerr.Write("", "commit", t.tx.Commit(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
