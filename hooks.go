package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// hookScript is one SQL hook file, already split into statements.
type hookScript struct {
	File       string
	Statements []string
}

// loadHookScripts reads each SQL file of a hook phase and splits it into statements.
func loadHookScripts(cfg *Config, files []string, phase string) ([]hookScript, error) {
	var scripts []hookScript
	for _, f := range files {
		data, err := os.ReadFile(cfg.resolvePath(f))
		if err != nil {
			return nil, fmt.Errorf("hook %s: read %s: %w", phase, f, err)
		}
		scripts = append(scripts, hookScript{File: f, Statements: splitStatements(string(data))})
	}
	return scripts, nil
}

// execHookScripts runs every statement of every script, in order.
func execHookScripts(ctx context.Context, ex execer, scripts []hookScript, phase string) error {
	if len(scripts) == 0 {
		return nil
	}
	log.Infof("  running %s hooks (%d files)...", phase, len(scripts))

	for _, s := range scripts {
		log.Debugf("    %s: %d statements", s.File, len(s.Statements))
		for i, stmt := range s.Statements {
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("hook %s: %s: statement %d: %w\nSQL: %s", phase, s.File, i+1, err, stmt)
			}
		}
	}
	return nil
}

// splitStatements splits SQL text on semicolons, ignoring empty entries
// and semicolons inside quotes, comments and CREATE TRIGGER bodies.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	inLineComment := false
	inBlockComment := false

	// depth counts open BEGIN and CASE blocks, so only the END that closes
	// a trigger body ends the statement.
	depth := 0
	var word []byte
	endWord := func() {
		switch strings.ToUpper(string(word)) {
		case "BEGIN", "CASE":
			depth++
		case "END":
			depth--
		}
		word = word[:0]
	}

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" && isTriggerStart(s) && depth > 0 {
			current.WriteByte(';')
			return
		}
		if s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
		depth = 0
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		// Inside -- line comment
		if inLineComment {
			current.WriteByte(c)
			if c == '\n' {
				inLineComment = false
			}
			continue
		}

		// Inside /* ... */ block comment
		if inBlockComment {
			current.WriteByte(c)
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				current.WriteByte(sql[i+1])
				i++
				inBlockComment = false
			}
			continue
		}

		// Inside single-quoted literal
		if inSingleQuote {
			current.WriteByte(c)
			if c == '\'' {
				// Handle escaped quotes ('')
				if i+1 < len(sql) && sql[i+1] == '\'' {
					current.WriteByte(sql[i+1])
					i++
				} else {
					inSingleQuote = false
				}
			}
			continue
		}

		// Inside double-quoted identifier
		if inDoubleQuote {
			current.WriteByte(c)
			if c == '"' {
				if i+1 < len(sql) && sql[i+1] == '"' {
					current.WriteByte(sql[i+1])
					i++
				} else {
					inDoubleQuote = false
				}
			}
			continue
		}

		if isWordByte(c) {
			word = append(word, c)
			current.WriteByte(c)
			continue
		}
		endWord()

		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			current.WriteByte(c)
			current.WriteByte(sql[i+1])
			i++
			inLineComment = true
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			current.WriteByte(c)
			current.WriteByte(sql[i+1])
			i++
			inBlockComment = true
		case c == '\'':
			inSingleQuote = true
			current.WriteByte(c)
		case c == '"':
			inDoubleQuote = true
			current.WriteByte(c)
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}

	// Trailing statement without semicolon
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}

	return stmts
}

func isTriggerStart(stmt string) bool {
	f := strings.Fields(strings.ToUpper(stripLeadingComments(stmt)))
	if len(f) < 2 || f[0] != "CREATE" {
		return false
	}
	if f[1] == "TEMP" || f[1] == "TEMPORARY" {
		return len(f) >= 3 && f[2] == "TRIGGER"
	}
	return f[1] == "TRIGGER"
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func stripLeadingComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		return s
	}
}
