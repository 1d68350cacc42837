package main

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymize_Idempotent(t *testing.T) {
	table := NewSubstitutionTable()

	first := table.Anonymize("https://example.com/")
	second := table.Anonymize("https://example.com/")

	assert.Equal(t, first, second)
	assert.NotEqual(t, "https://example.com/", first)
	assert.Equal(t, 1, table.Len())
}

func TestAnonymize_PreservesLength(t *testing.T) {
	table := NewSubstitutionTable()
	tests := []string{
		"a",
		"Example Domain",
		"https://example.com/some/long/path?q=1#frag",
		"héllo wörld",
		"日本語のタイトル",
		"🦊 Firefox",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			out := table.Anonymize(in)
			assert.Equal(t, utf8.RuneCountInString(in), utf8.RuneCountInString(out))
			assert.True(t, isAlphanumeric(out), "replacement %q is not alphanumeric", out)
		})
	}
}

func TestAnonymize_EmptyString(t *testing.T) {
	table := NewSubstitutionTable()

	assert.Equal(t, "", table.Anonymize(""))
	assert.Equal(t, 0, table.Len())
}

func TestAnonymize_NoCollisionsAcrossManyShortStrings(t *testing.T) {
	table := NewSubstitutionTable()

	seen := make(map[string]string)
	for i := 0; i < 10000; i++ {
		in := fmt.Sprintf("%04d", i)
		out := table.Anonymize(in)
		if prev, dup := seen[out]; dup {
			t.Fatalf("replacement %q for %q already used for %q", out, in, prev)
		}
		seen[out] = in
	}
	assert.Equal(t, 10000, table.Len())
	assert.Zero(t, table.ForcedAcceptances())
}

func TestAnonymize_ForcedAcceptanceOnLastAttempt(t *testing.T) {
	calls := 0
	table := NewSubstitutionTable(WithGenerator(func(n int) string {
		calls++
		return strings.Repeat("x", n)
	}))

	first := table.Anonymize("abc")
	require.Equal(t, "xxx", first)
	require.Equal(t, 1, calls)

	// Every candidate collides with "xxx"; the tenth one is taken anyway.
	second := table.Anonymize("def")
	assert.Equal(t, "xxx", second)
	assert.Equal(t, 1+maxAttempts, calls)
	assert.Equal(t, 1, table.ForcedAcceptances())

	// The forced mapping is stored like any other.
	assert.Equal(t, "xxx", table.Anonymize("def"))
	assert.Equal(t, 1+maxAttempts, calls)
}

func TestAnonymize_RetriesUntilFree(t *testing.T) {
	candidates := []string{"aaa", "aaa", "aaa", "bbb"}
	table := NewSubstitutionTable(WithGenerator(func(n int) string {
		c := candidates[0]
		candidates = candidates[1:]
		return c
	}))

	assert.Equal(t, "aaa", table.Anonymize("one"))
	assert.Equal(t, "bbb", table.Anonymize("two"))
	assert.Zero(t, table.ForcedAcceptances())
}

func TestAnonymize_ConcurrentUse(t *testing.T) {
	table := NewSubstitutionTable()
	inputs := make([]string, 200)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("https://site-%d.example/", i)
	}

	results := make([][]string, 8)
	var wg sync.WaitGroup
	for g := range results {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			out := make([]string, len(inputs))
			for i, in := range inputs {
				out[i] = table.Anonymize(in)
			}
			results[g] = out
		}(g)
	}
	wg.Wait()

	for g := 1; g < len(results); g++ {
		assert.Equal(t, results[0], results[g], "goroutine %d saw different replacements", g)
	}
	assert.Equal(t, len(inputs), table.Len())
}

func TestAnonymizeValue_PassesNonTextThrough(t *testing.T) {
	table := NewSubstitutionTable()

	assert.Nil(t, table.anonymizeValue(nil))
	assert.Equal(t, int64(42), table.anonymizeValue(int64(42)))
	assert.Equal(t, 1.5, table.anonymizeValue(1.5))
	assert.Equal(t, []byte{0x01, 0x02}, table.anonymizeValue([]byte{0x01, 0x02}))
	assert.Equal(t, 4, table.Passthroughs())

	out := table.anonymizeValue("title")
	require.IsType(t, "", out)
	assert.Len(t, out, 5)
	assert.Equal(t, 4, table.Passthroughs())
}

func TestRandomAlphanumeric(t *testing.T) {
	for _, n := range []int{0, 1, 7, 64, 1000} {
		s := randomAlphanumeric(n)
		assert.Len(t, s, n)
		assert.True(t, isAlphanumeric(s), "%q has characters outside [A-Za-z0-9]", s)
	}
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(alphanumeric, r) {
			return false
		}
	}
	return true
}
