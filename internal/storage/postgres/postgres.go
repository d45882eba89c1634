/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package postgres stores designs in a hosted PostgreSQL database through pgx's
// database/sql driver. Schema changes ship as embedded, numbered SQL migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "caseforge/internal/log"
	"caseforge/internal/storage"
	"caseforge/internal/vector"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a storage.Store backed by PostgreSQL.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects to dsn, pings it and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	l := applog.WithComponent("storage").With(slog.String("backend", "postgres"))
	if err := applyMigrations(pctx, db, l); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: l}, nil
}

func applyMigrations(ctx context.Context, db *sql.DB, l *slog.Logger) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", fname, err)
		}
		if strings.TrimSpace(string(b)) != "" {
			if _, err := tx.ExecContext(ctx, string(b)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply %s: %w", fname, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// language=PostgreSQL
const upsertDesign = `INSERT INTO designs (id, model, material, color, document, design_png, stage_png, created_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	model = EXCLUDED.model, material = EXCLUDED.material, color = EXCLUDED.color,
	document = EXCLUDED.document, design_png = EXCLUDED.design_png, stage_png = EXCLUDED.stage_png`

// language=PostgreSQL
const selectDesign = `SELECT id, model, material, color, document::text, design_png, stage_png, created_at
FROM designs WHERE id = $1`

func (s *Store) Save(ctx context.Context, d storage.Design) (string, error) {
	d, err := storage.Prepare(d, time.Now())
	if err != nil {
		return "", err
	}
	l := applog.WithDesign(applog.WithOperation(s.log, "save"), d.ID)
	var color sql.NullString
	if d.Case.Color != "" {
		color = sql.NullString{String: d.Case.Color, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, upsertDesign,
		d.ID, d.Case.Model, string(d.Case.Material), color,
		string(d.Document), d.DesignPNG, d.StagePNG, d.CreatedAt); err != nil {
		l.Error("save failed", slog.Any("err", err))
		return "", fmt.Errorf("save design: %w", err)
	}
	l.Info("design saved")
	return d.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (storage.Design, error) {
	var (
		d        storage.Design
		material string
		color    sql.NullString
		doc      string
	)
	err := s.db.QueryRowContext(ctx, selectDesign, id).Scan(
		&d.ID, &d.Case.Model, &material, &color, &doc, &d.DesignPNG, &d.StagePNG, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Design{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return storage.Design{}, fmt.Errorf("get design: %w", err)
	}
	d.Case.Material = vector.Material(material)
	d.Case.Color = color.String
	d.Document = []byte(doc)
	return d, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
