package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	fileRe   = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	createRe = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS ([a-z_]+)`)
	unsafeRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// StorefrontTables are the tables the services read and write. A migration
// set that loses one of them is rejected before it reaches a database.
var StorefrontTables = []string{
	"products",
	"inventory_records",
	"inventory_movements",
	"promotions",
	"product_promotions",
	"price_history",
	"orders",
	"order_lines",
	"payments",
	"returns",
	"outbox_events",
	"outbox_dlq",
}

// Validate checks file names, goose annotations and that the storefront tables
// are created somewhere in the set.
func Validate(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	seen := map[int64]string{}
	created := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := fileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name)
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		text := string(body)
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(text, marker) {
				return fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
		for _, match := range createRe.FindAllStringSubmatch(text, -1) {
			created[strings.ToLower(match[1])] = true
		}
	}

	if len(seen) == 0 {
		return fmt.Errorf("no migrations found")
	}
	var missing []string
	for _, table := range StorefrontTables {
		if !created[table] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("migrations never create %s", strings.Join(missing, ", "))
	}
	return nil
}

// Create writes an empty goose migration to dir named after the UTC time.
func Create(dir, name string, now time.Time) (string, error) {
	slug := strings.Trim(unsafeRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, now.UTC().Format("20060102150405")+"_"+slug+".sql")
	body := "-- +goose Up\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n\n" +
		"-- +goose Down\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n"
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, nil
}
