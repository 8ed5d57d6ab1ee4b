// Package mysql registers the "mysql" storage backend (MySQL 8 / MariaDB).
//
// Tables are created with a binary collation so title and artist-name
// lookups stay exact-match as on the other backends.
package mysql

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sparkify/internal/storage"
	"sparkify/internal/storage/sqldb"
)

func init() {
	sqldb.Register(Dialect{})
}

// Dialect implements sqldb.Dialect for MySQL.
type Dialect struct{}

var _ sqldb.Dialect = Dialect{}

func (Dialect) Kind() string       { return "mysql" }
func (Dialect) DriverName() string { return "mysql" }

func (Dialect) Placeholder(int) string { return "?" }

// Quote wraps an identifier in backticks.
func (Dialect) Quote(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

func (Dialect) ColumnType(logical string) (string, error) {
	switch logical {
	case storage.TypeKey:
		return "VARCHAR(255)", nil
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeInt:
		return "INT", nil
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeFloat:
		return "DOUBLE", nil
	case storage.TypeTimestamp:
		return "DATETIME(3)", nil
	default:
		return "", fmt.Errorf("mysql: unsupported column type %q", logical)
	}
}

func (d Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	defs, err := sqldb.ColumnDefs(d, t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s) DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin",
		d.Quote(t.Name), defs,
	), nil
}

// UpsertSQL uses ON DUPLICATE KEY UPDATE. A do-nothing conflict assigns the
// first key column to itself, which leaves the row untouched and reports zero
// affected rows.
func (d Dialect) UpsertSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var set []string
	if t.Conflict.Action == storage.ActionUpdate {
		set = make([]string, len(t.Conflict.UpdateColumns))
		for i, c := range t.Conflict.UpdateColumns {
			set[i] = fmt.Sprintf("%s = VALUES(%s)", d.Quote(c), d.Quote(c))
		}
	} else {
		k := d.Quote(t.PrimaryKey[0])
		set = []string{k + " = " + k}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		d.Quote(t.Name),
		sqldb.IdentList(d, t.ColumnNames()),
		sqldb.Placeholders(d, len(t.Columns)),
		strings.Join(set, ", "),
	), nil
}

func (Dialect) LimitSQL(selectList, rest string, n int) string {
	return fmt.Sprintf("SELECT %s %s LIMIT %d", selectList, rest, n)
}

func (Dialect) BindTime(t time.Time) any { return t.UTC() }

func (Dialect) Configure(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
}
