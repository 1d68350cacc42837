package main

import (
	"crypto/rand"
	"database/sql/driver"
	"sync"
	"unicode/utf8"
)

// maxAttempts bounds candidate generation for one original value. The last
// candidate is accepted even if it collides with an existing replacement.
const maxAttempts = 10

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SubstitutionTable maps original strings to random replacements of the same
// character length. One table lives for one rewrite run and is shared by
// every table and column it touches, so equal inputs anywhere in the
// database get equal outputs.
type SubstitutionTable struct {
	mu      sync.Mutex
	entries map[string]string
	used    map[string]struct{} // replacement values handed out so far
	gen     func(n int) string

	forced      int
	passthrough int
}

// TableOption configures a SubstitutionTable.
type TableOption func(*SubstitutionTable)

// WithGenerator replaces the candidate generator. The generator must return
// a string of exactly n characters.
func WithGenerator(gen func(n int) string) TableOption {
	return func(t *SubstitutionTable) {
		t.gen = gen
	}
}

func NewSubstitutionTable(opts ...TableOption) *SubstitutionTable {
	t := &SubstitutionTable{
		entries: make(map[string]string),
		used:    make(map[string]struct{}),
		gen:     randomAlphanumeric,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Anonymize returns the replacement for original, creating one on first use.
// The empty string maps to itself and is never stored.
func (t *SubstitutionTable) Anonymize(original string) string {
	if original == "" {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.entries[original]; ok {
		return r
	}

	n := utf8.RuneCountInString(original)
	var candidate string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidate = t.gen(n)
		if _, taken := t.used[candidate]; !taken {
			break
		}
		if attempt == maxAttempts {
			t.forced++
		}
	}

	t.entries[original] = candidate
	t.used[candidate] = struct{}{}
	return candidate
}

// anonymizeValue is the SQL-facing entry point. Text is anonymized; every
// other value (NULL, integers, reals, blobs) is returned unchanged.
func (t *SubstitutionTable) anonymizeValue(v driver.Value) driver.Value {
	s, ok := v.(string)
	if !ok {
		t.mu.Lock()
		t.passthrough++
		t.mu.Unlock()
		return v
	}
	return t.Anonymize(s)
}

// Len returns the number of distinct originals seen.
func (t *SubstitutionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ForcedAcceptances returns how many replacements were accepted after every
// attempt collided.
func (t *SubstitutionTable) ForcedAcceptances() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forced
}

// Passthroughs returns how many non-text values were handed back unchanged.
func (t *SubstitutionTable) Passthroughs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.passthrough
}

// randomAlphanumeric draws n characters uniformly from [A-Za-z0-9].
// Bytes >= 248 are rejected so every character has the same weight.
func randomAlphanumeric(n int) string {
	const limit = 256 - 256%len(alphanumeric)

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+8)
	for len(out) < n {
		// crypto/rand.Read never returns an error on supported platforms.
		rand.Read(buf)
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			out = append(out, alphanumeric[int(c)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
