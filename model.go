package main

import (
	"fmt"
	"strings"
)

// Treatment says what happens to a targeted column or table.
type Treatment string

const (
	// TreatAnonymize replaces every value with anonymize(value). NULLs and
	// non-text values pass through unchanged.
	TreatAnonymize Treatment = "anonymize"
	// TreatCoalesceAnonymize replaces every value with anonymize(coalesce(value, '')),
	// so NULL becomes the empty string.
	TreatCoalesceAnonymize Treatment = "coalesce_anonymize"
	// TreatDeleteRows drops every row of the table.
	TreatDeleteRows Treatment = "delete_rows"
	// TreatSetConstant sets the column to a fixed sentinel value.
	TreatSetConstant Treatment = "set_constant"
)

func (t Treatment) valid() bool {
	switch t {
	case TreatAnonymize, TreatCoalesceAnonymize, TreatDeleteRows, TreatSetConstant:
		return true
	}
	return false
}

// isUpdate reports whether the treatment rewrites a column in place.
func (t Treatment) isUpdate() bool {
	return t == TreatAnonymize || t == TreatCoalesceAnonymize || t == TreatSetConstant
}

// ColumnSpec names a (table, column) pair and its treatment. Column is empty
// for TreatDeleteRows.
type ColumnSpec struct {
	Table     string
	Column    string
	Treatment Treatment
	Value     any // TreatSetConstant only

	// Optional specs are dropped, not rejected, when the table or column is
	// missing from the database.
	Optional bool
}

func (s ColumnSpec) String() string {
	if s.Column == "" {
		return fmt.Sprintf("%s (%s)", s.Table, s.Treatment)
	}
	return fmt.Sprintf("%s.%s (%s)", s.Table, s.Column, s.Treatment)
}

func (s ColumnSpec) validate() error {
	if s.Table == "" {
		return fmt.Errorf("table is required")
	}
	if !s.Treatment.valid() {
		return fmt.Errorf("%s: unknown treatment %q", s.Table, s.Treatment)
	}
	if s.Treatment == TreatDeleteRows {
		if s.Column != "" {
			return fmt.Errorf("%s: delete_rows does not take a column", s.Table)
		}
		return nil
	}
	if s.Column == "" {
		return fmt.Errorf("%s: column is required for %s", s.Table, s.Treatment)
	}
	if s.Treatment == TreatSetConstant {
		switch s.Value.(type) {
		case nil:
			return fmt.Errorf("%s.%s: set_constant requires a value", s.Table, s.Column)
		case int, int64, float64, string, bool:
		default:
			return fmt.Errorf("%s.%s: set_constant value must be a string, number or boolean, got %T", s.Table, s.Column, s.Value)
		}
	}
	return nil
}

// Column is a single column as reported by PRAGMA table_xinfo.
type Column struct {
	Name       string
	DeclType   string // declared type, lowercased, e.g. "longvarchar"
	Nullable   bool
	PrimaryKey bool
	Hidden     int // 0 normal, 1 hidden (virtual table), 2 virtual generated, 3 stored generated
}

// Index is a named index on a table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Origin  string // "c" (CREATE INDEX), "u" (UNIQUE constraint), "pk"
}

// Table holds the introspected definition of one table.
type Table struct {
	Name    string
	Virtual bool
	// ExternalContent marks an fts table declared with content=: its index
	// cannot be rewritten row by row.
	ExternalContent bool
	Columns         []Column
	Indexes         []Index
}

// column looks a column up by name. SQLite identifiers are case-insensitive.
func (t *Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Schema holds the introspected tables and triggers of a database.
type Schema struct {
	Tables   []Table
	Triggers []string
}

func (s *Schema) table(name string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}
