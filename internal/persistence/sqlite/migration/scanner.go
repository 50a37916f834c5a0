package migration

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// scriptFilePattern matches {version}_{description}.sql and
// {version}_{description}.down.sql. Version must be numeric (001, 002, etc.).
var scriptFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+?)(\.down)?\.sql$`)

// ParseScriptName extracts version, description and direction from a script file name.
func ParseScriptName(filename string) (int64, string, Direction, error) {
	matches := scriptFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", Forward, fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}[.down].sql'",
			ErrInvalidScript, filename)
	}

	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil || version <= 0 {
		return 0, "", Forward, fmt.Errorf("%w: version '%s' in filename '%s' is not a positive number",
			ErrInvalidScript, matches[1], filename)
	}

	direction := Forward
	if matches[3] != "" {
		direction = Backward
	}
	return version, matches[2], direction, nil
}

// ParseScript builds a Script from a file name and its contents. A
// "-- Description:" header comment takes precedence over the file name.
func ParseScript(filename, content string) (Script, error) {
	version, description, direction, err := ParseScriptName(filename)
	if err != nil {
		return Script{}, err
	}

	if header := extractDescriptionFromContent(content); header != "" {
		description = header
	}

	if err := validateSQLSyntax(content); err != nil {
		return Script{}, fmt.Errorf("%s: %w", filename, err)
	}

	return Script{
		Version:     version,
		Description: description,
		SQL:         content,
		Direction:   direction,
		Checksum:    calculateChecksum(content),
	}, nil
}

// CatalogFromFS parses every *.sql file directly under dir in fsys, usually an
// embed.FS compiled into the binary, and builds a catalog from them.
func CatalogFromFS(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations in %s: %w", dir, err)
	}

	var scripts []Script
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		script, err := ParseScript(entry.Name(), string(raw))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}

	return NewCatalog(scripts...)
}

// validateSQLSyntax performs basic SQL syntax validation. Comments, string
// literals and quoted identifiers are skipped with the same rules the
// statement splitter uses, so only structural parentheses are counted.
func validateSQLSyntax(sql string) error {
	if len(splitStatements(sql)) == 0 {
		return fmt.Errorf("%w: no SQL statements found after removing comments", ErrInvalidScript)
	}

	depth := 0
	for i := 0; i < len(sql); i++ {
		if end := skipComment(sql, i); end >= 0 {
			i = end
			continue
		}

		switch c := sql[i]; {
		case isQuoteByte(c):
			end, ok := skipQuoted(sql, i)
			if !ok {
				if c == '\'' {
					return fmt.Errorf("%w: unterminated string literal", ErrInvalidScript)
				}
				return fmt.Errorf("%w: unterminated quoted identifier", ErrInvalidScript)
			}
			i = end
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidScript)
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidScript)
	}
	return nil
}

// extractDescriptionFromContent extracts description from the leading comment block
func extractDescriptionFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}

// calculateChecksum returns the BLAKE2b-256 digest of the script body
func calculateChecksum(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
