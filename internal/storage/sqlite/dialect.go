// Package sqlite registers the "sqlite" storage backend (modernc.org/sqlite,
// pure Go, no cgo).
//
// Key design points vs Postgres:
//   - SQLite has no native timestamp type. Timestamps are stored as
//     RFC3339Nano TEXT in UTC, which sorts and compares correctly and keeps the
//     time primary key stable across runs.
//   - SQLite allows a single writer, so the pool is capped at one connection.
//     This also makes ":memory:" databases behave as one database.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sparkify/internal/storage"
	"sparkify/internal/storage/sqldb"
)

func init() {
	sqldb.Register(Dialect{})
}

// Dialect implements sqldb.Dialect for SQLite.
type Dialect struct{}

var _ sqldb.Dialect = Dialect{}

func (Dialect) Kind() string       { return "sqlite" }
func (Dialect) DriverName() string { return "sqlite" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) Quote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (Dialect) ColumnType(logical string) (string, error) {
	switch logical {
	case storage.TypeKey, storage.TypeText, storage.TypeTimestamp:
		return "TEXT", nil
	case storage.TypeInt, storage.TypeBigInt:
		return "INTEGER", nil
	case storage.TypeFloat:
		return "REAL", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported column type %q", logical)
	}
}

func (d Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	defs, err := sqldb.ColumnDefs(d, t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(t.Name), defs), nil
}

func (d Dialect) UpsertSQL(t storage.TableSpec) (string, error) {
	return sqldb.ExcludedUpsertSQL(d, t)
}

func (Dialect) LimitSQL(selectList, rest string, n int) string {
	return fmt.Sprintf("SELECT %s %s LIMIT %d", selectList, rest, n)
}

func (Dialect) BindTime(t time.Time) any { return formatSQLiteTime(t) }

func (Dialect) Configure(db *sql.DB) {
	db.SetMaxOpenConns(1)
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
