package models

import (
	"fmt"
	"strings"
)

// ColumnDef defines a single column for a warehouse table.
// It is the single source of truth used by both schema bootstrap and the upsert store.
type ColumnDef struct {
	// Name is the column name.
	Name string

	// Type is the Postgres data type including nullability (e.g. "BIGINT NOT NULL").
	Type string

	// Touch marks a store-managed timestamp. Touch columns are not supplied by
	// rows; the store writes now() into them on every insert and update.
	Touch bool
}

// SQL returns the column definition for CREATE TABLE statements.
func (c ColumnDef) SQL() string {
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// Table describes a warehouse table: its columns in row order and its natural key.
type Table struct {
	Name    string
	Columns []ColumnDef
	Key     []string
}

// ValueColumns returns the names of the columns supplied by Row.Values, in order.
func (t Table) ValueColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.Touch {
			out = append(out, c.Name)
		}
	}
	return out
}

// TouchColumns returns the store-managed timestamp columns.
func (t Table) TouchColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if c.Touch {
			out = append(out, c.Name)
		}
	}
	return out
}

// KeyPositions returns the index of each key column within ValueColumns.
func (t Table) KeyPositions() ([]int, error) {
	cols := t.ValueColumns()
	out := make([]int, 0, len(t.Key))
	for _, k := range t.Key {
		pos := -1
		for i, c := range cols {
			if c == k {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("table %s: key column %q is not a value column", t.Name, k)
		}
		out = append(out, pos)
	}
	return out, nil
}

// CreateSQL returns the CREATE TABLE IF NOT EXISTS statement for t.
func (t Table) CreateSQL() string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		defs = append(defs, c.SQL())
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(t.Key, ", ")))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t"))
}

// Row is a record that can be written to a Table.
// Values must line up with Table.ValueColumns.
type Row interface {
	Values() []any
}
