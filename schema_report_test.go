package main

import (
	"strings"
	"testing"
)

func TestCollectSchemaWarnings(t *testing.T) {
	schema := &Schema{
		Tables: []Table{
			{
				Name: "moz_places",
				Columns: []Column{
					{Name: "url", DeclType: "longvarchar"},
					{Name: "visit_count", DeclType: "integer"},
					{Name: "url_len", DeclType: "integer", Hidden: 2},
					{Name: "blob_col"},
				},
				Indexes: []Index{
					{Name: "moz_places_url_uniqueindex", Columns: []string{"url"}, Unique: true},
					{Name: "moz_places_visitcount", Columns: []string{"visit_count"}},
				},
			},
			{
				Name:    "moz_meta",
				Columns: []Column{{Name: "key", DeclType: "text"}, {Name: "gen", Hidden: 3}},
			},
		},
		Triggers: []string{"moz_places_afterinsert_trigger"},
	}
	specs := []ColumnSpec{
		{Table: "moz_places", Column: "url", Treatment: TreatCoalesceAnonymize},
		{Table: "moz_places", Column: "visit_count", Treatment: TreatAnonymize},
		{Table: "moz_places", Column: "blob_col", Treatment: TreatAnonymize},
	}

	warnings := collectSchemaWarnings(schema, specs)
	if len(warnings) != 4 {
		t.Fatalf("warnings len = %d, want 4 (%v)", len(warnings), warnings)
	}

	wantFragments := []string{
		"1 trigger(s)",
		"generated column moz_places.url_len (virtual)",
		"moz_places.visit_count has integer affinity",
		"unique index moz_places_url_uniqueindex on moz_places covers anonymized column(s) url",
	}
	for i, frag := range wantFragments {
		if !strings.Contains(warnings[i], frag) {
			t.Errorf("warning %d = %q, want it to contain %q", i, warnings[i], frag)
		}
	}
}

func TestCollectSchemaWarnings_Clean(t *testing.T) {
	schema := &Schema{Tables: []Table{{
		Name:    "moz_bookmarks",
		Columns: []Column{{Name: "title", DeclType: "longvarchar"}},
		Indexes: []Index{{Name: "moz_bookmarks_guid_uniqueindex", Columns: []string{"guid"}, Unique: true}},
	}}}
	specs := []ColumnSpec{{Table: "moz_bookmarks", Column: "title", Treatment: TreatCoalesceAnonymize}}

	if warnings := collectSchemaWarnings(schema, specs); len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if warnings := collectSchemaWarnings(nil, specs); warnings != nil {
		t.Fatalf("nil schema: unexpected warnings: %v", warnings)
	}
}
