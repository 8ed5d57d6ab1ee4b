package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sparkify/internal/storage"
	"sparkify/internal/storage/sqldb"
)

// Dialect renders Postgres SQL. The repository runs it on pgx directly; the
// database/sql hooks exist so the shared sqldb builders can be reused.
type Dialect struct{}

var _ sqldb.Dialect = Dialect{}

func (Dialect) Kind() string       { return "postgres" }
func (Dialect) DriverName() string { return "pgx" }

func (Dialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (Dialect) Quote(id string) string { return pgIdent(id) }

func (Dialect) ColumnType(logical string) (string, error) {
	switch logical {
	case storage.TypeKey, storage.TypeText:
		return "TEXT", nil
	case storage.TypeInt:
		return "INTEGER", nil
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeFloat:
		return "DOUBLE PRECISION", nil
	case storage.TypeTimestamp:
		return "TIMESTAMP", nil
	default:
		return "", fmt.Errorf("postgres: unsupported column type %q", logical)
	}
}

func (d Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	defs, err := sqldb.ColumnDefs(d, t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgIdent(t.Name), defs), nil
}

func (d Dialect) UpsertSQL(t storage.TableSpec) (string, error) {
	return sqldb.ExcludedUpsertSQL(d, t)
}

func (Dialect) LimitSQL(selectList, rest string, n int) string {
	return fmt.Sprintf("SELECT %s %s LIMIT %d", selectList, rest, n)
}

// BindTime passes UTC wall-clock time into a TIMESTAMP column.
func (Dialect) BindTime(t time.Time) any { return t.UTC() }

func (Dialect) Configure(*sql.DB) {}

// pgIdent double-quotes an identifier, escaping embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
