// Package pgmigrations embeds the Postgres schema for the recovery tables.
package pgmigrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.up.sql
var FS embed.FS

// Files returns the embedded up migrations in apply order.
func Files() ([]string, error) {
	files, err := fs.Glob(FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no postgres migrations found")
	}
	sort.Strings(files)
	return files, nil
}

// Apply runs every embedded migration against db. Migrations are written to
// be re-runnable.
func Apply(ctx context.Context, db *sql.DB) error {
	// gen_random_uuid on Postgres < 13.
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		return fmt.Errorf("enable pgcrypto: %w", err)
	}
	files, err := Files()
	if err != nil {
		return err
	}
	for _, name := range files {
		sqlBytes, err := FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(sqlBytes)) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
