// TableSpec and friends live here so both the loader and backend packages can
// import them without circular deps.
package storage

import (
	"fmt"
	"time"

	"sparkify/internal/model"
)

// Table names of the star schema.
const (
	TableSongs     = "songs"
	TableArtists   = "artists"
	TableUsers     = "users"
	TableTime      = "time"
	TableSongplays = "songplays"
)

// Logical column types. Each backend maps them to a native type.
const (
	TypeKey       = "key"  // short text used in primary keys and joins
	TypeText      = "text" // unbounded text
	TypeInt       = "int"
	TypeBigInt    = "bigint"
	TypeFloat     = "float"
	TypeTimestamp = "timestamp"
)

// Conflict actions.
const (
	ActionDoNothing = "do_nothing"
	ActionUpdate    = "update"
)

type TableSpec struct {
	Name            string       `json:"name" yaml:"name"`
	AutoCreateTable bool         `json:"auto_create_table" yaml:"auto_create_table"`
	PrimaryKey      []string     `json:"primary_key" yaml:"primary_key"`
	Columns         []ColumnSpec `json:"columns" yaml:"columns"`
	Conflict        ConflictSpec `json:"conflict" yaml:"conflict"`
}

type ColumnSpec struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

// ConflictSpec says what an insert does when the primary key already exists.
// UpdateColumns is used only with ActionUpdate.
type ConflictSpec struct {
	Action        string   `json:"action" yaml:"action"`
	UpdateColumns []string `json:"update_columns,omitempty" yaml:"update_columns,omitempty"`
}

// ColumnNames returns the column names of t in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that t is internally consistent.
func (t TableSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	cols := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" || c.Type == "" {
			return fmt.Errorf("table %s: column name/type must be set", t.Name)
		}
		if cols[c.Name] {
			return fmt.Errorf("table %s: column %s specified more than once", t.Name, c.Name)
		}
		cols[c.Name] = true
	}
	if len(t.PrimaryKey) == 0 {
		return fmt.Errorf("table %s: primary key is required", t.Name)
	}
	for _, k := range t.PrimaryKey {
		if !cols[k] {
			return fmt.Errorf("table %s: primary key column %s not declared", t.Name, k)
		}
	}
	switch t.Conflict.Action {
	case ActionDoNothing:
	case ActionUpdate:
		if len(t.Conflict.UpdateColumns) == 0 {
			return fmt.Errorf("table %s: update action needs update_columns", t.Name)
		}
		for _, c := range t.Conflict.UpdateColumns {
			if !cols[c] {
				return fmt.Errorf("table %s: update column %s not declared", t.Name, c)
			}
		}
	default:
		return fmt.Errorf("table %s: unsupported conflict action %q", t.Name, t.Conflict.Action)
	}
	return nil
}

// StarSchema returns the five tables in creation order.
//
// Column order here is the argument order of the *Args helpers below.
func StarSchema(autoCreate bool) []TableSpec {
	return []TableSpec{
		{
			Name:            TableSongs,
			AutoCreateTable: autoCreate,
			PrimaryKey:      []string{"song_id"},
			Columns: []ColumnSpec{
				{Name: "song_id", Type: TypeKey},
				{Name: "title", Type: TypeText},
				{Name: "artist_id", Type: TypeKey},
				{Name: "year", Type: TypeInt},
				{Name: "duration", Type: TypeFloat},
			},
			Conflict: ConflictSpec{Action: ActionDoNothing},
		},
		{
			Name:            TableArtists,
			AutoCreateTable: autoCreate,
			PrimaryKey:      []string{"artist_id"},
			Columns: []ColumnSpec{
				{Name: "artist_id", Type: TypeKey},
				{Name: "name", Type: TypeText},
				{Name: "location", Type: TypeText, Nullable: true},
				{Name: "latitude", Type: TypeFloat, Nullable: true},
				{Name: "longitude", Type: TypeFloat, Nullable: true},
			},
			Conflict: ConflictSpec{Action: ActionDoNothing},
		},
		{
			Name:            TableUsers,
			AutoCreateTable: autoCreate,
			PrimaryKey:      []string{"user_id"},
			Columns: []ColumnSpec{
				{Name: "user_id", Type: TypeKey},
				{Name: "first_name", Type: TypeText},
				{Name: "last_name", Type: TypeText},
				{Name: "gender", Type: TypeText},
				{Name: "level", Type: TypeText},
			},
			Conflict: ConflictSpec{
				Action:        ActionUpdate,
				UpdateColumns: []string{"first_name", "last_name", "gender", "level"},
			},
		},
		{
			Name:            TableTime,
			AutoCreateTable: autoCreate,
			PrimaryKey:      []string{"start_time"},
			Columns: []ColumnSpec{
				{Name: "start_time", Type: TypeTimestamp},
				{Name: "hour", Type: TypeInt},
				{Name: "day", Type: TypeInt},
				{Name: "week", Type: TypeInt},
				{Name: "month", Type: TypeInt},
				{Name: "year", Type: TypeInt},
				{Name: "weekday", Type: TypeText},
			},
			Conflict: ConflictSpec{Action: ActionDoNothing},
		},
		{
			Name:            TableSongplays,
			AutoCreateTable: autoCreate,
			PrimaryKey:      []string{"songplay_id"},
			Columns: []ColumnSpec{
				{Name: "songplay_id", Type: TypeKey},
				{Name: "start_time", Type: TypeTimestamp},
				{Name: "user_id", Type: TypeKey},
				{Name: "level", Type: TypeText},
				{Name: "song_id", Type: TypeKey, Nullable: true},
				{Name: "artist_id", Type: TypeKey, Nullable: true},
				{Name: "session_id", Type: TypeBigInt},
				{Name: "location", Type: TypeText},
				{Name: "user_agent", Type: TypeText},
			},
			Conflict: ConflictSpec{Action: ActionDoNothing},
		},
	}
}

// TableByName returns the StarSchema table named name.
func TableByName(name string) (TableSpec, bool) {
	for _, t := range StarSchema(true) {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}

// TimeBinder converts a timestamp to the value a driver expects.
type TimeBinder func(time.Time) any

// UTCTime binds timestamps as UTC time.Time values.
func UTCTime(t time.Time) any { return t.UTC() }

func SongArgs(s model.Song) []any {
	return []any{s.SongID, s.Title, s.ArtistID, s.Year, s.Duration}
}

func ArtistArgs(a model.Artist) []any {
	return []any{a.ArtistID, a.Name, nullable(a.Location), nullable(a.Latitude), nullable(a.Longitude)}
}

func UserArgs(u model.User) []any {
	return []any{u.UserID, u.FirstName, u.LastName, u.Gender, u.Level}
}

func TimeArgs(t model.Time, bind TimeBinder) []any {
	return []any{bind(t.StartTime), t.Hour, t.Day, t.Week, t.Month, t.Year, t.Weekday}
}

func SongplayArgs(p model.Songplay, bind TimeBinder) []any {
	return []any{
		p.SongplayID, bind(p.StartTime), p.UserID, p.Level,
		nullable(p.SongID), nullable(p.ArtistID),
		p.SessionID, p.Location, p.UserAgent,
	}
}

// nullable turns a nil pointer into an untyped nil so every driver writes NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
