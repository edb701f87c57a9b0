package storage

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

const migrationTable = "schema_migrations"

const (
	markUp   = "-- +migrate Up"
	markDown = "-- +migrate Down"
)

type migration struct {
	name string
	up   string
}

// ExtractUpMigration returns the SQL in the "-- +migrate Up" section.
// Files without markers are returned unchanged.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, markUp)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, markDown)
	if downIdx == -1 || downIdx < upIdx {
		return content[upIdx+len(markUp):]
	}
	return content[upIdx+len(markUp) : downIdx]
}

// loadMigrations reads every *.sql file under root in lexical order.
// Files whose up section is blank are skipped.
func loadMigrations(fsys fs.FS, root string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		raw, err := fs.ReadFile(fsys, root+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		up := ExtractUpMigration(string(raw))
		if strings.TrimSpace(up) == "" {
			continue
		}
		out = append(out, migration{name: name, up: up})
	}
	return out, nil
}

// isAlreadyExistsError reports whether err indicates idempotent DDL success.
func isAlreadyExistsError(err error) bool {
	v := strings.ToLower(err.Error())
	return strings.Contains(v, "already exists") || strings.Contains(v, "duplicate column name")
}
