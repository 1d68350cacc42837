package main

import (
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"

	"modernc.org/sqlite"
)

// modernc.org/sqlite registers functions on the driver, for every connection
// opened afterwards, and never forgets them. Each run therefore gets its own
// function name bound to its own table, and releasing the binding detaches
// the table so it can be collected.

var (
	funcSeq atomic.Uint64
	funcMu  sync.Mutex // serializes registration; the driver's registry is a plain map
)

type funcBinding struct {
	name  string
	table atomic.Pointer[SubstitutionTable]
}

// registerAnonymizeFunc registers a one-argument scalar function backed by
// table and returns its SQL name. The function must be registered before the
// connection that uses it is opened. After release, calls fail.
func registerAnonymizeFunc(table *SubstitutionTable) (name string, release func(), err error) {
	b := &funcBinding{name: fmt.Sprintf("anonymize_%d", funcSeq.Add(1))}
	b.table.Store(table)

	funcMu.Lock()
	err = sqlite.RegisterDeterministicScalarFunction(b.name, 1, b.call)
	funcMu.Unlock()
	if err != nil {
		return "", nil, fmt.Errorf("register %s: %w", b.name, err)
	}
	return b.name, func() { b.table.Store(nil) }, nil
}

func (b *funcBinding) call(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	t := b.table.Load()
	if t == nil {
		return nil, fmt.Errorf("%s: substitution table released", b.name)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: expected 1 argument, got %d", b.name, len(args))
	}
	return t.anonymizeValue(args[0]), nil
}
