package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// systemTables are SQLite bookkeeping tables that are never anonymized.
var systemTables = []string{
	"sqlite_sequence",
	"sqlite_stat1",
	"sqlite_stat2",
	"sqlite_stat3",
	"sqlite_stat4",
}

// vtabShadowSuffixes are the <vtab>_<suffix> storage tables created by the
// bundled fts3/fts4/fts5, rtree and geopoly modules.
var vtabShadowSuffixes = []string{
	"config", "content", "data", "docsize", "idx",
	"segdir", "segments", "stat",
	"node", "parent", "rowid",
}

// contentOptionRe matches the content= option of an fts virtual table, which
// makes it contentless or backed by another table.
var contentOptionRe = regexp.MustCompile(`(?i)\bcontent\s*=`)

// queryer is satisfied by both *sql.DB and *sql.Tx, so introspection can run
// inside the rewrite transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer is the write half of *sql.DB / *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- DSN handling ---

func sqliteReadOnlyURI(dsn string) (string, error) {
	return sqliteURI(dsn, "ro")
}

// sqliteReadWriteURI opens an existing database for writing. mode=rw never
// creates a missing file.
func sqliteReadWriteURI(dsn string) (string, error) {
	return sqliteURI(dsn, "rw")
}

func sqliteURI(dsn, mode string) (string, error) {
	// Every sql.Open of :memory: would get its own empty database.
	if dsn == ":memory:" || dsn == "file::memory:" ||
		strings.Contains(dsn, "mode=memory") {
		return "", fmt.Errorf("in-memory SQLite databases cannot be anonymized")
	}

	if !strings.HasPrefix(dsn, "file:") {
		// Plain path.
		return "file:" + escapeURIPath(dsn) + "?mode=" + mode, nil
	}

	// Already a URI: force the requested mode.
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse sqlite URI: %w", err)
	}
	q := u.Query()
	q.Set("mode", mode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// escapeURIPath escapes the characters SQLite's URI parser treats specially
// in the path component.
func escapeURIPath(p string) string {
	r := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")
	return r.Replace(p)
}

func openSQLite(ctx context.Context, uri string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: the rewrite runs in a single transaction anyway, and
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	return db, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// --- Schema introspection ---

func introspectSchema(ctx context.Context, q queryer) (*Schema, error) {
	tables, err := introspectTables(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	for i := range tables {
		t := &tables[i]

		cols, err := introspectColumns(ctx, q, t.Name)
		if err != nil {
			return nil, fmt.Errorf("introspect columns for %s: %w", t.Name, err)
		}
		t.Columns = cols

		if t.Virtual {
			continue
		}
		indexes, err := introspectIndexes(ctx, q, t.Name)
		if err != nil {
			return nil, fmt.Errorf("introspect indexes for %s: %w", t.Name, err)
		}
		t.Indexes = indexes
	}

	triggers, err := collectNames(ctx, q, "SELECT name FROM sqlite_master WHERE type='trigger' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("introspect triggers: %w", err)
	}

	return &Schema{Tables: tables, Triggers: triggers}, nil
}

func introspectTables(ctx context.Context, q queryer) ([]Table, error) {
	rows, err := q.QueryContext(ctx, "SELECT name, sql FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var name string
		var createSQL sql.NullString
		if err := rows.Scan(&name, &createSQL); err != nil {
			return nil, err
		}
		if lo.Contains(systemTables, strings.ToLower(name)) {
			continue
		}
		t := Table{Name: name, Virtual: isVirtualTableSQL(createSQL.String)}
		if t.Virtual {
			t.ExternalContent = contentOptionRe.MatchString(createSQL.String)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	shadow, err := shadowTables(ctx, q, tables)
	if err != nil {
		return nil, err
	}
	return lo.Filter(tables, func(t Table, _ int) bool {
		return !shadow[strings.ToLower(t.Name)]
	}), nil
}

// shadowTables returns the lowercased names of the tables holding a virtual
// table's storage. Writing to them directly corrupts the virtual table.
// PRAGMA table_list flags them when the module declares its shadow names;
// the naming check covers modules that do not.
func shadowTables(ctx context.Context, q queryer, tables []Table) (map[string]bool, error) {
	shadow := make(map[string]bool)

	rows, err := q.QueryContext(ctx, "PRAGMA table_list")
	if err != nil {
		return nil, fmt.Errorf("table_list: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var schemaName, name, typ string
		var ncol, wr, strict int
		if err := rows.Scan(&schemaName, &name, &typ, &ncol, &wr, &strict); err != nil {
			return nil, fmt.Errorf("table_list: %w", err)
		}
		if schemaName == "main" && typ == "shadow" {
			shadow[strings.ToLower(name)] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table_list: %w", err)
	}

	for _, v := range tables {
		if !v.Virtual {
			continue
		}
		prefix := strings.ToLower(v.Name) + "_"
		for _, t := range tables {
			n := strings.ToLower(t.Name)
			if !t.Virtual && strings.HasPrefix(n, prefix) && lo.Contains(vtabShadowSuffixes, n[len(prefix):]) {
				shadow[n] = true
			}
		}
	}
	return shadow, nil
}

func isVirtualTableSQL(createSQL string) bool {
	fields := strings.Fields(strings.ToUpper(createSQL))
	return len(fields) >= 3 && fields[0] == "CREATE" && fields[1] == "VIRTUAL" && fields[2] == "TABLE"
}

func introspectColumns(ctx context.Context, q queryer, tableName string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_xinfo(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid, pk, notnull, hidden int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notnull, &dflt, &pk, &hidden); err != nil {
			return nil, err
		}
		cols = append(cols, Column{
			Name:       name,
			DeclType:   strings.ToLower(strings.TrimSpace(colType)),
			Nullable:   notnull == 0,
			PrimaryKey: pk > 0,
			Hidden:     hidden,
		})
	}
	return cols, rows.Err()
}

func introspectIndexes(ctx context.Context, q queryer, tableName string) ([]Index, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, err
	}

	var indexes []Index
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		indexes = append(indexes, Index{Name: name, Unique: unique == 1, Origin: origin})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// index_info is queried after index_list is closed; the rewrite holds a
	// single connection.
	for i := range indexes {
		cols, err := indexColumns(ctx, q, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = cols
	}
	return indexes, nil
}

func indexColumns(ctx context.Context, q queryer, indexName string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent(indexName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString
		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, err
		}
		if !colName.Valid {
			// Expression key-part
			continue
		}
		cols = append(cols, colName.String)
	}
	return cols, rows.Err()
}

// collectNames is a helper to collect single-column string results.
func collectNames(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// declaredAffinity applies SQLite's column affinity rules to a declared type.
// See https://www.sqlite.org/datatype3.html#determination_of_column_affinity
func declaredAffinity(declType string) string {
	dt := strings.ToUpper(declType)
	switch {
	case strings.Contains(dt, "INT"):
		return "integer"
	case strings.Contains(dt, "CHAR"), strings.Contains(dt, "CLOB"), strings.Contains(dt, "TEXT"):
		return "text"
	case dt == "", strings.Contains(dt, "BLOB"):
		return "blob"
	case strings.Contains(dt, "REAL"), strings.Contains(dt, "FLOA"), strings.Contains(dt, "DOUB"):
		return "real"
	default:
		return "numeric"
	}
}

// loadSchema introspects the database at dsn over a read-only connection.
func loadSchema(ctx context.Context, dsn string) (*Schema, error) {
	uri, err := sqliteReadOnlyURI(dsn)
	if err != nil {
		return nil, err
	}
	db, err := openSQLite(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return introspectSchema(ctx, db)
}
