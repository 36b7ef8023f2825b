package store

import (
	"fmt"
	"strings"
)

type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeText
	TypeBoolean
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeText:
		return "TEXT"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column describes a single column, the zero value of every flag is the
// sqlite default (nullable, not unique).
type Column struct {
	Name          string
	Type          ColumnType
	NotNull       bool
	Unique        bool
	PrimaryKey    bool
	AutoIncrement bool
}

// Definition returns the column definition used in CREATE TABLE.
func (c Column) Definition() string {
	def := c.Name + " " + c.Type.String()
	if c.PrimaryKey {
		def += " PRIMARY KEY"
		if c.AutoIncrement {
			def += " AUTOINCREMENT"
		}
	}
	if c.NotNull {
		def += " NOT NULL"
	}
	if c.Unique {
		def += " UNIQUE"
	}
	return def
}

type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

func (i Index) CreateSQL(table string) string {
	unique := ""
	if i.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf(
		"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, i.Name, table, strings.Join(i.Columns, ", "),
	)
}

// MergeStrategy selects how Upsert locates the row an incoming record
// should be merged into.
type MergeStrategy int

const (
	// MergeByPrimaryKey merges into the row whose primary key equals the
	// incoming record's, records without one are always inserted.
	MergeByPrimaryKey MergeStrategy = iota
	// MergeByNaturalKey merges into the row matching every NaturalKey
	// column of the incoming record.
	MergeByNaturalKey
)

type Table struct {
	Name       string
	Columns    []Column
	Indexes    []Index
	NaturalKey []string
	Merge      MergeStrategy
}

func (t Table) CreateSQL() string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = c.Definition()
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		t.Name, strings.Join(defs, ",\n\t"),
	)
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) columnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
