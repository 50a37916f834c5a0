package migration

import (
	"context"
	"strings"
)

// executeScript runs every statement of script on tx. The caller owns the
// transaction and rolls it back when an error is returned.
func executeScript(ctx context.Context, tx Querier, script Script) error {
	statements := splitStatements(script.SQL)
	if len(statements) == 0 {
		return &ScriptExecutionError{Version: script.Version, Direction: script.Direction, Cause: ErrInvalidScript}
	}

	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			return &ScriptExecutionError{Version: script.Version, Direction: script.Direction, Statement: i + 1, Cause: err}
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &ScriptExecutionError{Version: script.Version, Direction: script.Direction, Statement: i + 1, Cause: err}
		}
	}

	return nil
}

// splitStatements splits SQL content into individual statements. Semicolons
// inside string literals, quoted identifiers, comments and CREATE TRIGGER
// bodies do not terminate a statement. Comments are dropped.
func splitStatements(sql string) []string {
	var (
		statements []string
		current    strings.Builder
		word       strings.Builder
		words      int  // words seen in the current statement
		create     bool // current statement starts with CREATE
		trigger    bool // current statement is CREATE [TEMP] TRIGGER
		depth      int  // open BEGIN/CASE blocks inside a trigger
	)

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToUpper(word.String())
		word.Reset()
		words++

		switch {
		case words == 1:
			create = w == "CREATE"
		case create && words <= 4 && w == "TRIGGER":
			trigger = true
		case trigger && (w == "BEGIN" || w == "CASE"):
			depth++
		case trigger && w == "END" && depth > 0:
			depth--
		}
	}

	endStatement := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
		words, create, trigger, depth = 0, false, false, 0
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if end := skipComment(sql, i); end >= 0 {
			flushWord()
			if c == '-' {
				current.WriteByte('\n')
			} else {
				current.WriteByte(' ')
			}
			i = end
			continue
		}

		switch {
		case isQuoteByte(c):
			flushWord()
			end, _ := skipQuoted(sql, i)
			current.WriteString(sql[i : end+1])
			i = end
			continue

		case c == ';':
			flushWord()
			if trigger && depth > 0 {
				current.WriteByte(c)
				continue
			}
			endStatement()
			continue

		case isWordByte(c):
			word.WriteByte(c)
			current.WriteByte(c)
			continue
		}

		flushWord()
		current.WriteByte(c)
	}

	flushWord()
	endStatement()
	return statements
}

// skipComment returns the index of the last byte of the comment starting at
// sql[i], or -1 when no comment starts there. A line comment ends at its
// newline; an unterminated block comment runs to the end of input, as in SQLite.
func skipComment(sql string, i int) int {
	if i+1 >= len(sql) {
		return -1
	}
	switch {
	case sql[i] == '-' && sql[i+1] == '-':
		if end := strings.IndexByte(sql[i:], '\n'); end >= 0 {
			return i + end
		}
		return len(sql) - 1
	case sql[i] == '/' && sql[i+1] == '*':
		if end := strings.Index(sql[i+2:], "*/"); end >= 0 {
			return i + 2 + end + 1
		}
		return len(sql) - 1
	}
	return -1
}

// skipQuoted returns the index of the byte closing the string literal or
// quoted identifier opened at sql[i]. A doubled quote is an escaped quote.
// ok is false when the input ends first.
func skipQuoted(sql string, i int) (end int, ok bool) {
	closing := sql[i]
	if closing == '[' {
		closing = ']'
	}
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != closing {
			continue
		}
		if closing != ']' && j+1 < len(sql) && sql[j+1] == closing {
			j++
			continue
		}
		return j, true
	}
	return len(sql) - 1, false
}

func isQuoteByte(c byte) bool {
	return c == '\'' || c == '"' || c == '`' || c == '['
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
