// Package mssql registers the "mssql" storage backend for Microsoft SQL Server.
//
// Upserts avoid MERGE. Do-nothing tables use INSERT ... SELECT ... WHERE NOT
// EXISTS under UPDLOCK+HOLDLOCK so concurrent writers on the same key
// serialize; update tables run UPDATE first and INSERT when no row matched.
//
// This package does not import a driver. The application must register the
// "sqlserver" driver (internal/storage/all does).
package mssql

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

// Dialect implements sqldb.Dialect for SQL Server.
type Dialect struct{}

var _ sqldb.Dialect = Dialect{}

func (Dialect) Kind() string       { return "mssql" }
func (Dialect) DriverName() string { return "sqlserver" }

func (Dialect) Placeholder(i int) string { return fmt.Sprintf("@p%d", i) }

func (Dialect) Quote(id string) string { return mssqlIdent(id) }

// binaryCollation makes keys and lookup text compare code point by code point.
// The server default (SQL_Latin1_General_CP1_CI_AS) ignores case.
const binaryCollation = "COLLATE Latin1_General_100_BIN2"

func (Dialect) ColumnType(logical string) (string, error) {
	switch logical {
	case storage.TypeKey:
		// Primary keys cannot be NVARCHAR(MAX).
		return "NVARCHAR(128) " + binaryCollation, nil
	case storage.TypeText:
		return "NVARCHAR(MAX) " + binaryCollation, nil
	case storage.TypeInt:
		return "INT", nil
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeFloat:
		return "FLOAT", nil
	case storage.TypeTimestamp:
		return "DATETIME2(3)", nil
	default:
		return "", fmt.Errorf("mssql: unsupported column type %q", logical)
	}
}

func (d Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	defs, err := sqldb.ColumnDefs(d, t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s) END;",
		strings.ReplaceAll(t.Name, "'", "''"), mssqlIdent(t.Name), defs,
	), nil
}

func (d Dialect) UpsertSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		pos[c.Name] = i + 1
	}
	keyMatch := make([]string, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		keyMatch[i] = fmt.Sprintf("%s = %s", mssqlIdent(k), d.Placeholder(pos[k]))
	}
	where := strings.Join(keyMatch, " AND ")
	table := mssqlIdent(t.Name)
	cols := sqldb.IdentList(d, t.ColumnNames())
	vals := sqldb.Placeholders(d, len(t.Columns))

	if t.Conflict.Action == storage.ActionUpdate {
		sets := make([]string, len(t.Conflict.UpdateColumns))
		for i, c := range t.Conflict.UpdateColumns {
			sets[i] = fmt.Sprintf("%s = %s", mssqlIdent(c), d.Placeholder(pos[c]))
		}
		return fmt.Sprintf(
			"UPDATE %s WITH (UPDLOCK, HOLDLOCK) SET %s WHERE %s; IF @@ROWCOUNT = 0 INSERT INTO %s (%s) VALUES (%s);",
			table, strings.Join(sets, ", "), where, table, cols, vals,
		), nil
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WITH (UPDLOCK, HOLDLOCK) WHERE %s);",
		table, cols, vals, table, where,
	), nil
}

func (Dialect) LimitSQL(selectList, rest string, n int) string {
	return fmt.Sprintf("SELECT TOP (%d) %s %s", n, selectList, rest)
}

func (Dialect) BindTime(t time.Time) any { return t.UTC() }

// Configure sizes the pool for one open transaction at a time.
func (Dialect) Configure(db *sql.DB) {
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
