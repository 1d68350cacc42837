package main

// placesSpecs is the hand-maintained treatment list for Firefox's
// places.sqlite. Counts, frecency scores, timestamps, ids and guids are left
// alone. Tables and columns added in later Firefox releases are optional so
// older profiles still rewrite cleanly.
func placesSpecs() []ColumnSpec {
	return []ColumnSpec{
		// Pages
		{Table: "moz_places", Column: "url", Treatment: TreatCoalesceAnonymize},
		{Table: "moz_places", Column: "title", Treatment: TreatCoalesceAnonymize},
		{Table: "moz_places", Column: "rev_host", Treatment: TreatCoalesceAnonymize},
		{Table: "moz_places", Column: "description", Treatment: TreatCoalesceAnonymize, Optional: true},
		{Table: "moz_places", Column: "preview_image_url", Treatment: TreatCoalesceAnonymize, Optional: true},
		{Table: "moz_places", Column: "site_name", Treatment: TreatCoalesceAnonymize, Optional: true},
		// url_hash is derived from the original url; a stale hash would leak it.
		{Table: "moz_places", Column: "url_hash", Treatment: TreatSetConstant, Value: int64(0)},

		{Table: "moz_origins", Column: "host", Treatment: TreatAnonymize, Optional: true},
		{Table: "moz_bookmarks", Column: "title", Treatment: TreatCoalesceAnonymize},
		{Table: "moz_places_metadata_search_queries", Column: "terms", Treatment: TreatAnonymize, Optional: true},

		// No useful anonymized form exists for these.
		{Table: "moz_hosts", Treatment: TreatDeleteRows, Optional: true},
		{Table: "moz_annos", Treatment: TreatDeleteRows},
		{Table: "moz_items_annos", Treatment: TreatDeleteRows, Optional: true},
		{Table: "moz_anno_attributes", Treatment: TreatDeleteRows},
		{Table: "moz_inputhistory", Treatment: TreatDeleteRows},
		{Table: "moz_bookmarks_deleted", Treatment: TreatDeleteRows, Optional: true},
		{Table: "moz_keywords", Treatment: TreatDeleteRows},
		{Table: "moz_previews_tombstones", Treatment: TreatDeleteRows, Optional: true},
	}
}

// derivedHashResets are set_constant specs appended in generic mode: these
// columns hash a value that generic mode anonymizes, and integers pass
// through anonymize() unchanged.
func derivedHashResets() []ColumnSpec {
	return []ColumnSpec{
		{Table: "moz_places", Column: "url_hash", Treatment: TreatSetConstant, Value: int64(0), Optional: true},
	}
}
