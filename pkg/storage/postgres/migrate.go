/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/netmonitor/pkg/logger"
)

const migrationsTable = "netmonitor_schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every embedded .up.sql file that is not yet recorded in the
// tracking table. Each file runs in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version     TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, migrationsTable)); err != nil {
		return fmt.Errorf("migrations: create tracking table: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	filenames, err := pendingFiles(applied)
	if err != nil {
		return err
	}

	for _, name := range filenames {
		if err := applyFile(ctx, pool, name); err != nil {
			return err
		}

		log.Info().Str("migration", name).Msg("Applied schema migration")
	}

	return nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]struct{}, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT version FROM %s`, migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("migrations: list applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("migrations: scan applied version: %w", err)
		}

		applied[version] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrations: iterate applied versions: %w", err)
	}

	return applied, nil
}

func pendingFiles(applied map[string]struct{}) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: read embedded files: %w", err)
	}

	var filenames []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		if _, ok := applied[migrationVersion(entry.Name())]; ok {
			continue
		}

		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)

	return filenames, nil
}

func applyFile(ctx context.Context, pool *pgxpool.Pool, name string) error {
	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("migrations: read %s: %w", name, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrations: begin %s: %w", name, err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	for idx, stmt := range splitStatements(string(content)) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrations: statement %d in %s failed: %w", idx+1, name, err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (version) VALUES ($1)`, migrationsTable),
		migrationVersion(name)); err != nil {
		return fmt.Errorf("migrations: record %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrations: commit %s: %w", name, err)
	}

	return nil
}

// migrationVersion returns the numeric prefix of "00001_initial.up.sql".
func migrationVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")

	return version
}

// splitStatements splits on semicolons outside quotes and comments.
func splitStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
		inQuote    bool
		inComment  bool
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}

		current.Reset()
	}

	for i := 0; i < len(content); i++ {
		ch := content[i]

		switch {
		case inComment:
			if ch == '\n' {
				inComment = false
				current.WriteByte(ch)
			}
		case inQuote:
			current.WriteByte(ch)

			if ch == '\'' {
				inQuote = false
			}
		case ch == '-' && i+1 < len(content) && content[i+1] == '-':
			inComment = true
			i++
		case ch == '\'':
			inQuote = true
			current.WriteByte(ch)
		case ch == ';':
			flush()
		default:
			current.WriteByte(ch)
		}
	}

	flush()

	return statements
}
