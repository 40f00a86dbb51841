package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scanner reads migration files from a directory of an fs.FS.
type Scanner struct {
	files fs.FS
	dir   string
}

// NewScanner returns a scanner over dir inside files.
func NewScanner(files fs.FS, dir string) *Scanner {
	if dir == "" {
		dir = "."
	}
	return &Scanner{files: files, dir: dir}
}

// Scan returns every migration in ascending version order. Files without the
// .sql suffix are ignored; a .sql file with a malformed name is an error.
func (s *Scanner) Scan() ([]Migration, error) {
	entries, err := fs.ReadDir(s.files, s.dir)
	if err != nil {
		return nil, NewMigrationError("", s.dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m, err := s.parse(entry.Name())
		if err != nil {
			return nil, err
		}
		n, _ := strconv.Atoi(m.Version)
		if existing, ok := seen[n]; ok {
			return nil, NewMigrationError(m.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: version %s found in both %s and %s", ErrDuplicateVersion, m.Version, existing, entry.Name()))
		}
		seen[n] = entry.Name()
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return versionNumber(migrations[i].Version) < versionNumber(migrations[j].Version)
	})
	return migrations, nil
}

// ValidateFileName checks the {version}_{description}.sql convention.
func ValidateFileName(name string) error {
	if !fileNamePattern.MatchString(name) {
		return fmt.Errorf("%w: filename %q does not match pattern '{version}_{description}.sql'", ErrInvalidMigrationFile, name)
	}
	return nil
}

func (s *Scanner) parse(name string) (Migration, error) {
	filePath := path.Join(s.dir, name)
	if err := ValidateFileName(name); err != nil {
		return Migration{}, NewMigrationError("", filePath, "validate filename", err)
	}
	matches := fileNamePattern.FindStringSubmatch(name)
	version, nameDescription := matches[1], matches[2]

	raw, err := fs.ReadFile(s.files, filePath)
	if err != nil {
		return Migration{}, NewMigrationError(version, filePath, "read file", err)
	}
	content := string(raw)
	if err := validateSQL(content); err != nil {
		return Migration{}, NewMigrationError(version, filePath, "validate SQL", err)
	}

	description := descriptionFromComments(content)
	if description == "" {
		description = strings.ReplaceAll(nameDescription, "_", " ")
	}

	sum := sha256.Sum256(raw)
	return Migration{
		Version:     version,
		Description: description,
		SQL:         content,
		FilePath:    filePath,
		Checksum:    fmt.Sprintf("%x", sum),
	}, nil
}

// validateSQL rejects files without statements and catches unbalanced
// parentheses or quotes before anything reaches the database.
func validateSQL(content string) error {
	clean := stripComments(content)
	if strings.TrimSpace(clean) == "" {
		return fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile)
	}

	depth := 0
	var quote rune
	for _, r := range clean {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
			}
		}
	}
	if quote != 0 {
		return fmt.Errorf("%w: unterminated string literal", ErrInvalidMigrationFile)
	}
	if depth != 0 {
		return fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	return nil
}

func stripComments(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// descriptionFromComments returns the "-- Description:" line of the leading
// comment block.
func descriptionFromComments(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return ""
		}
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// splitStatements splits a file on semicolons after dropping comment lines.
func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(stripComments(content), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func versionNumber(version string) int {
	n, err := strconv.Atoi(version)
	if err != nil {
		return -1
	}
	return n
}
