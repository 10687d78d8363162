package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

var (
	migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	createTableRe   = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS\s+([a-z0-9_]+)`)
)

// ValidateDir checks the migrations on disk under dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS checks filenames, unique versions, goose section markers, and
// that every table created on the way up is dropped on the way down.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		raw, err := fs.ReadFile(fsys, joinFS(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateSections(name, string(raw)); err != nil {
			return err
		}
	}
	return nil
}

func validateSections(name, txt string) error {
	upAt := strings.Index(txt, "-- +goose Up")
	downAt := strings.Index(txt, "-- +goose Down")
	switch {
	case upAt < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case downAt < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case downAt < upAt:
		return fmt.Errorf("migration %q has Down before Up", name)
	}

	up, down := txt[upAt:downAt], txt[downAt:]
	for _, m := range createTableRe.FindAllStringSubmatch(up, -1) {
		if !strings.Contains(down, "DROP TABLE IF EXISTS "+m[1]) {
			return fmt.Errorf("migration %q creates %s without dropping it", name, m[1])
		}
	}
	return nil
}

func joinFS(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}
