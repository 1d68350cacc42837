package main

import (
	"fmt"
	"strings"
)

// collectSchemaWarnings reports schema features that can make a rewrite
// behave unexpectedly. specs must already be resolved against schema.
func collectSchemaWarnings(schema *Schema, specs []ColumnSpec) []string {
	if schema == nil {
		return nil
	}

	var warnings []string
	warnings = append(warnings, triggerWarnings(schema)...)
	warnings = append(warnings, collectGeneratedColumnWarnings(schema, specs)...)
	warnings = append(warnings, collectAffinityWarnings(schema, specs)...)
	warnings = append(warnings, collectUniqueIndexWarnings(schema, specs)...)
	return warnings
}

func triggerWarnings(schema *Schema) []string {
	if len(schema.Triggers) == 0 {
		return nil
	}
	return []string{fmt.Sprintf(
		"database has %d trigger(s) that fire on the rewrite statements: %s",
		len(schema.Triggers), strings.Join(schema.Triggers, ", "),
	)}
}

// collectGeneratedColumnWarnings lists generated columns of rewritten tables.
// They are never written directly.
func collectGeneratedColumnWarnings(schema *Schema, specs []ColumnSpec) []string {
	var warnings []string
	for _, t := range schema.Tables {
		if !updatesTable(specs, t.Name) {
			continue
		}
		for _, col := range t.Columns {
			if !isGeneratedColumn(col) {
				continue
			}
			kind := "virtual"
			if col.Hidden == 3 {
				kind = "stored"
			}
			warnings = append(warnings, fmt.Sprintf(
				"generated column %s.%s (%s) is skipped; its value is recomputed by SQLite",
				t.Name, col.Name, kind,
			))
		}
	}
	return warnings
}

// collectAffinityWarnings flags anonymized columns whose declared type does
// not have text affinity. Only text values are replaced.
func collectAffinityWarnings(schema *Schema, specs []ColumnSpec) []string {
	var warnings []string
	for _, s := range specs {
		if s.Treatment != TreatAnonymize && s.Treatment != TreatCoalesceAnonymize {
			continue
		}
		col, ok := specColumn(schema, s)
		if !ok {
			continue
		}
		switch aff := declaredAffinity(col.DeclType); aff {
		case "text", "blob":
			// blob affinity is also what an undeclared type gets; such
			// columns usually hold text.
		default:
			warnings = append(warnings, fmt.Sprintf(
				"%s.%s has %s affinity (%q); only text values stored in it are anonymized",
				s.Table, s.Column, aff, col.DeclType,
			))
		}
	}
	return warnings
}

// collectUniqueIndexWarnings flags unique indexes covering anonymized
// columns. A forced acceptance would violate them and roll the run back.
func collectUniqueIndexWarnings(schema *Schema, specs []ColumnSpec) []string {
	var warnings []string
	for _, t := range schema.Tables {
		for _, idx := range t.Indexes {
			if !idx.Unique {
				continue
			}
			var hit []string
			for _, c := range idx.Columns {
				if anonymizesColumn(specs, t.Name, c) {
					hit = append(hit, c)
				}
			}
			if len(hit) == 0 {
				continue
			}
			warnings = append(warnings, fmt.Sprintf(
				"unique index %s on %s covers anonymized column(s) %s; a replacement collision aborts the whole rewrite",
				idx.Name, t.Name, strings.Join(hit, ", "),
			))
		}
	}
	return warnings
}

func specColumn(schema *Schema, s ColumnSpec) (Column, bool) {
	t, ok := schema.table(s.Table)
	if !ok {
		return Column{}, false
	}
	return t.column(s.Column)
}

func updatesTable(specs []ColumnSpec, table string) bool {
	for _, s := range specs {
		if s.Treatment.isUpdate() && strings.EqualFold(s.Table, table) {
			return true
		}
	}
	return false
}

func anonymizesColumn(specs []ColumnSpec, table, column string) bool {
	for _, s := range specs {
		if (s.Treatment == TreatAnonymize || s.Treatment == TreatCoalesceAnonymize) &&
			strings.EqualFold(s.Table, table) && strings.EqualFold(s.Column, column) {
			return true
		}
	}
	return false
}
