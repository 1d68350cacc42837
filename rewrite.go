package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// RewriteOptions tune a single Rewrite call. The zero value is usable.
type RewriteOptions struct {
	// Table is the substitution table for the run. A fresh one is created when nil.
	Table *SubstitutionTable

	BeforeHooks []hookScript // run inside the transaction, before the generated statements
	AfterHooks  []hookScript // run inside the transaction, after the generated statements

	SkipVacuum bool
}

// RewriteResult summarizes a committed rewrite.
type RewriteResult struct {
	Statements        int
	RowsUpdated       int64
	RowsDeleted       int64
	Substitutions     int // distinct originals replaced
	ForcedAcceptances int
	Passthroughs      int // non-text values handed back unchanged
	Duration          time.Duration
}

type statementKind int

const (
	stmtUpdate statementKind = iota
	stmtDelete
)

// statement is one generated SQL statement of a rewrite plan.
type statement struct {
	SQL   string
	Args  []any
	Kind  statementKind
	Table string
}

// Rewrite applies specs to the SQLite database at dsn. Everything between
// the first hook and the last generated statement runs in one transaction:
// either every change is committed or none is.
func Rewrite(ctx context.Context, dsn string, specs []ColumnSpec, opts RewriteOptions) (*RewriteResult, error) {
	start := time.Now()

	for _, s := range specs {
		if err := s.validate(); err != nil {
			return nil, invalidSpec(s, err)
		}
	}

	table := opts.Table
	if table == nil {
		table = NewSubstitutionTable()
	}

	// The function has to exist before the connection is opened.
	fn, release, err := registerAnonymizeFunc(table)
	if err != nil {
		return nil, storageFailure("register function", err)
	}
	defer release()

	uri, err := sqliteReadWriteURI(dsn)
	if err != nil {
		return nil, storageFailure("open", err)
	}
	log.Debugf("opening %s", uri)
	db, err := openSQLite(ctx, uri)
	if err != nil {
		return nil, storageFailure("open", err)
	}
	defer db.Close()

	res := &RewriteResult{}
	if err := applySpecs(ctx, db, fn, specs, opts, res); err != nil {
		return nil, err
	}

	if !opts.SkipVacuum {
		log.Infof("compacting database...")
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			e := storageFailure("vacuum", err)
			e.Committed = true
			return nil, e
		}
	}

	res.Substitutions = table.Len()
	res.ForcedAcceptances = table.ForcedAcceptances()
	res.Passthroughs = table.Passthroughs()
	res.Duration = time.Since(start)

	if res.ForcedAcceptances > 0 {
		log.Warnf("%d replacement(s) were accepted despite colliding with an earlier one", res.ForcedAcceptances)
	}
	return res, nil
}

// applySpecs validates specs against the live schema and executes the
// resulting plan inside one transaction.
func applySpecs(ctx context.Context, db *sql.DB, fn string, specs []ColumnSpec, opts RewriteOptions, res *RewriteResult) error {
	return inTransaction(ctx, db, func(tx *sql.Tx) error {
		schema, err := introspectSchema(ctx, tx)
		if err != nil {
			return storageFailure("introspect", err)
		}

		resolved, err := resolveSpecs(schema, specs)
		if err != nil {
			return err
		}
		for _, w := range collectSchemaWarnings(schema, resolved) {
			log.Warnf("%s", w)
		}

		stmts := buildStatements(resolved, fn)
		res.Statements = len(stmts)
		log.Infof("rewriting %d table(s) with %d statement(s)...", len(lo.Uniq(lo.Map(stmts, func(s statement, _ int) string { return s.Table }))), len(stmts))
		return execPlan(ctx, tx, stmts, opts, res)
	})
}

// inTransaction runs fn in a transaction and commits it. Any error from fn
// rolls the transaction back.
func inTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageFailure("begin", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("rollback: %v", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		var re *RewriteError
		if !errors.As(err, &re) {
			err = storageFailure("rewrite", err)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return storageFailure("commit", err)
	}
	return nil
}

// execPlan runs the hooks and generated statements in order, accumulating
// row counts into res.
func execPlan(ctx context.Context, ex execer, stmts []statement, opts RewriteOptions, res *RewriteResult) error {
	if err := execHookScripts(ctx, ex, opts.BeforeHooks, "before_rewrite"); err != nil {
		return storageFailure("before_rewrite", err)
	}

	for i, st := range stmts {
		log.Debugf("  %s", st.SQL)
		r, err := ex.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			e := storageFailure(fmt.Sprintf("statement %d", i+1), err)
			e.Table = st.Table
			return e
		}
		n, err := r.RowsAffected()
		if err != nil {
			log.Tracef("  rows affected unavailable for %s: %v", st.Table, err)
			continue
		}
		switch st.Kind {
		case stmtUpdate:
			res.RowsUpdated += n
			log.Infof("  %s: %d row(s) rewritten", st.Table, n)
		case stmtDelete:
			res.RowsDeleted += n
			log.Infof("  %s: %d row(s) deleted", st.Table, n)
		}
	}

	if err := execHookScripts(ctx, ex, opts.AfterHooks, "after_rewrite"); err != nil {
		return storageFailure("after_rewrite", err)
	}
	return nil
}

// resolveSpecs checks every spec against schema. Missing optional targets
// are dropped; missing required ones fail the run. Table and column names
// are normalized to their spelling in the schema.
func resolveSpecs(schema *Schema, specs []ColumnSpec) ([]ColumnSpec, error) {
	var out []ColumnSpec
	for _, s := range specs {
		t, ok := schema.table(s.Table)
		if !ok {
			if s.Optional {
				log.Infof("skipping %s: table not present", s)
				continue
			}
			return nil, schemaMismatch(s, fmt.Errorf("table %q does not exist", s.Table))
		}
		s.Table = t.Name

		if s.Treatment == TreatDeleteRows {
			out = append(out, s)
			continue
		}

		c, ok := t.column(s.Column)
		if !ok {
			if s.Optional {
				log.Infof("skipping %s: column not present", s)
				continue
			}
			return nil, schemaMismatch(s, fmt.Errorf("column %q does not exist in table %q", s.Column, t.Name))
		}
		if isGeneratedColumn(c) {
			if s.Optional {
				log.Infof("skipping %s: generated column", s)
				continue
			}
			return nil, schemaMismatch(s, fmt.Errorf("column %q is generated and cannot be written", c.Name))
		}
		s.Column = c.Name
		log.Tracef("resolved %s", s)
		out = append(out, s)
	}
	return out, nil
}

// buildStatements turns resolved specs into SQL: one UPDATE per table in
// order of first appearance, then one DELETE per delete_rows table. When a
// column is targeted twice the later spec wins.
func buildStatements(specs []ColumnSpec, fn string) []statement {
	type tableUpdate struct {
		name    string
		columns []ColumnSpec
	}
	var updates []*tableUpdate
	var deletes []string

	for _, s := range specs {
		if s.Treatment == TreatDeleteRows {
			if !lo.ContainsBy(deletes, func(d string) bool { return strings.EqualFold(d, s.Table) }) {
				deletes = append(deletes, s.Table)
			}
			continue
		}

		u, ok := lo.Find(updates, func(u *tableUpdate) bool { return strings.EqualFold(u.name, s.Table) })
		if !ok {
			u = &tableUpdate{name: s.Table}
			updates = append(updates, u)
		}
		_, idx, found := lo.FindIndexOf(u.columns, func(c ColumnSpec) bool { return strings.EqualFold(c.Column, s.Column) })
		if found {
			u.columns[idx] = s
		} else {
			u.columns = append(u.columns, s)
		}
	}

	stmts := make([]statement, 0, len(updates)+len(deletes))
	for _, u := range updates {
		var sets []string
		var args []any
		for _, c := range u.columns {
			col := quoteIdent(c.Column)
			switch c.Treatment {
			case TreatAnonymize:
				sets = append(sets, fmt.Sprintf("%s = %s(%s)", col, fn, col))
			case TreatCoalesceAnonymize:
				sets = append(sets, fmt.Sprintf("%s = %s(coalesce(%s, ''))", col, fn, col))
			case TreatSetConstant:
				sets = append(sets, fmt.Sprintf("%s = ?", col))
				args = append(args, c.Value)
			}
		}
		stmts = append(stmts, statement{
			SQL:   fmt.Sprintf("UPDATE %s SET %s", quoteIdent(u.name), strings.Join(sets, ", ")),
			Args:  args,
			Kind:  stmtUpdate,
			Table: u.name,
		})
	}
	for _, t := range deletes {
		stmts = append(stmts, statement{
			SQL:   fmt.Sprintf("DELETE FROM %s", quoteIdent(t)),
			Kind:  stmtDelete,
			Table: t,
		})
	}
	return stmts
}

// discoverGenericSpecs targets every writable column of every user table with
// anonymize, so NULLs stay NULL and non-text values pass through. Virtual
// tables are rewritten through the virtual table itself, which keeps their
// index in step; their shadow tables never reach the schema.
func discoverGenericSpecs(schema *Schema, exclude []string) []ColumnSpec {
	excluded := func(table string) bool {
		return lo.ContainsBy(exclude, func(e string) bool { return strings.EqualFold(strings.TrimSpace(e), table) })
	}

	var specs []ColumnSpec
	for _, t := range schema.Tables {
		if excluded(t.Name) {
			log.Infof("skipping excluded table %s", t.Name)
			continue
		}
		if t.ExternalContent {
			log.Warnf("skipping virtual table %s: it indexes an external or empty content table and still holds the original terms; "+
				"rebuild it in an after_rewrite hook (INSERT INTO %s(%s) VALUES ('rebuild')) or drop it", t.Name, quoteIdent(t.Name), quoteIdent(t.Name))
			continue
		}
		for _, c := range t.Columns {
			if c.Hidden != 0 {
				continue
			}
			specs = append(specs, ColumnSpec{Table: t.Name, Column: c.Name, Treatment: TreatAnonymize})
		}
	}

	resets := lo.Filter(derivedHashResets(), func(s ColumnSpec, _ int) bool { return !excluded(s.Table) })
	return append(specs, resets...)
}

func isGeneratedColumn(c Column) bool {
	return c.Hidden == 2 || c.Hidden == 3
}
