/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gofountain/internal/fountain"
	applog "gofountain/internal/log"
	"gofountain/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGStore stores published scripts in Postgres through pgx's database/sql driver.
type PGStore struct {
	db *sql.DB
}

// OpenPGStore connects to dsn, pings it and applies the embedded migrations.
func OpenPGStore(ctx context.Context, dsn string) (*PGStore, error) {
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
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PGStore{db: db}, nil
}

func (s *PGStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PGStore) Close() error                   { return s.db.Close() }

func (s *PGStore) Publish(ctx context.Context, owner, id, source string) (ScriptSummary, error) {
	p, err := prepare(owner, id, source)
	if err != nil {
		return ScriptSummary{}, err
	}
	meta, err := json.Marshal(p.doc.Metadata())
	if err != nil {
		return ScriptSummary{}, err
	}
	chars, err := json.Marshal(p.summary.Characters)
	if err != nil {
		return ScriptSummary{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ScriptSummary{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var curOwner string
	var curVersion int64
	// dialect=PostgreSQL
	err = tx.QueryRowContext(ctx, `SELECT owner, version FROM scripts WHERE id = $1 FOR UPDATE`, p.summary.ID).Scan(&curOwner, &curVersion)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.summary.Version = 1
		if _, err := tx.ExecContext(ctx, `INSERT INTO scripts(id, owner, title, metadata, characters, scenes, source, document, version, updated_at)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			p.summary.ID, owner, p.summary.Title, string(meta), string(chars), p.summary.Scenes, source, string(p.docJSON), p.summary.Version, p.summary.UpdatedAt); err != nil {
			return ScriptSummary{}, fmt.Errorf("insert script: %w", err)
		}
	case err != nil:
		return ScriptSummary{}, fmt.Errorf("select script: %w", err)
	default:
		if curOwner != owner {
			return ScriptSummary{}, ErrForbidden
		}
		p.summary.Version = curVersion + 1
		if _, err := tx.ExecContext(ctx, `UPDATE scripts SET title=$2, metadata=$3, characters=$4, scenes=$5, source=$6, document=$7, version=$8, updated_at=$9 WHERE id=$1`,
			p.summary.ID, p.summary.Title, string(meta), string(chars), p.summary.Scenes, source, string(p.docJSON), p.summary.Version, p.summary.UpdatedAt); err != nil {
			return ScriptSummary{}, fmt.Errorf("update script: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE script_id = $1`, p.summary.ID); err != nil {
			return ScriptSummary{}, fmt.Errorf("clear elements: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO elements(script_id, seq, type, line_number, character, scene, text) VALUES($1,$2,$3,$4,$5,$6,$7)`)
	if err != nil {
		return ScriptSummary{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for i, r := range elementRows(p.doc) {
		if _, err := stmt.ExecContext(ctx, p.summary.ID, i, r.Type, r.LineNumber, nullable(r.Character), nullable(r.Scene), r.Text); err != nil {
			return ScriptSummary{}, fmt.Errorf("insert element: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ScriptSummary{}, fmt.Errorf("commit: %w", err)
	}
	return p.summary, nil
}

func nullable(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

func (s *PGStore) List(ctx context.Context) ([]ScriptSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, owner, version, scenes, characters, updated_at FROM scripts ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ScriptSummary
	for rows.Next() {
		var sum ScriptSummary
		var chars []byte
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Owner, &sum.Version, &sum.Scenes, &chars, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		if err := json.Unmarshal(chars, &sum.Characters); err != nil {
			return nil, fmt.Errorf("decode characters: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (Script, error) {
	var sc Script
	var meta, chars, doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT id, title, owner, version, scenes, characters, updated_at, metadata, source, document FROM scripts WHERE id::text = $1`, id).
		Scan(&sc.ID, &sc.Title, &sc.Owner, &sc.Version, &sc.Scenes, &chars, &sc.UpdatedAt, &meta, &sc.Source, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Script{}, ErrNotFound
	}
	if err != nil {
		return Script{}, fmt.Errorf("get script: %w", err)
	}
	if err := json.Unmarshal(chars, &sc.Characters); err != nil {
		return Script{}, fmt.Errorf("decode characters: %w", err)
	}
	if err := json.Unmarshal(meta, &sc.Metadata); err != nil {
		return Script{}, fmt.Errorf("decode metadata: %w", err)
	}
	sc.Document = json.RawMessage(doc)
	return sc, nil
}

// Search runs a tsvector search over published elements with the same filters as the local index.
func (s *PGStore) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	b.WriteString("SELECT e.id, e.script_id::text, s.title, e.seq, e.type, e.line_number, COALESCE(e.character,''), COALESCE(e.scene,''), ")
	if strings.TrimSpace(q.Text) != "" {
		tq := place(q.Text)
		b.WriteString("ts_headline('simple', e.text, plainto_tsquery('simple', " + tq + "), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12') ")
		b.WriteString("FROM elements e JOIN scripts s ON s.id = e.script_id WHERE e.search_vector @@ plainto_tsquery('simple', " + tq + ") ")
	} else {
		b.WriteString("e.text FROM elements e JOIN scripts s ON s.id = e.script_id WHERE TRUE ")
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = strings.ToLower(strings.TrimSpace(t))
		}
		b.WriteString(" AND e.type = ANY (" + place(types) + ") ")
	}
	if c := strings.TrimSpace(q.Character); c != "" {
		b.WriteString(" AND e.character = " + place(fountain.CueName(c)) + " ")
	}
	if sc := strings.TrimSpace(q.Scene); sc != "" {
		b.WriteString(" AND lower(COALESCE(e.scene,'')) LIKE " + place("%"+strings.ToLower(sc)+"%") + " ")
	}
	if id := strings.TrimSpace(q.ScriptID); id != "" {
		b.WriteString(" AND e.script_id::text = " + place(id) + " ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY e.script_id, e.seq ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.ElemID, &r.ScriptID, &r.Path, &r.Seq, &r.Type, &r.LineNumber, &r.Character, &r.Scene, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// applyMigrations applies embedded SQL migrations in filename order and records each one.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
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
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

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
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
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
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
