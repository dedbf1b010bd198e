/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "gofountain/internal/log"
	"gofountain/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName stores the manifest, backups and the index under the library root.
	IndexDirName  = ".gft"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// IndexPath returns the full path to the library's embedded index database file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the SQLite index exists at .gft/index.sqlite,
// opens the database, enables WAL mode, and ensures schema and migrations are applied.
// Callers close the returned *sql.DB.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("library root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create .gft dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create .gft dir: %w", err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema for runMigrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// never downgrade
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// v2 stores a content hash per script and indexes speakers.
			has, err := hasColumn(ctx, db, "scripts", "hash")
			if err != nil {
				return fmt.Errorf("migration %d: %w", next, err)
			}
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			var stmts []string
			if !has {
				stmts = append(stmts, `ALTER TABLE scripts ADD COLUMN hash TEXT NOT NULL DEFAULT '';`)
			}
			stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_elements_character ON elements(character);`)
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// best-effort, outside the tx
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_elements(fts_elements) VALUES('optimize')`)
		default:
		}
		cur = next
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// ensureIndexSchema creates core index tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per indexed script file; path is relative to the library root.
		`CREATE TABLE IF NOT EXISTS scripts (
			id            TEXT    PRIMARY KEY,
			path          TEXT    NOT NULL UNIQUE,
			title         TEXT    NOT NULL DEFAULT '',
			metadata      TEXT    NOT NULL DEFAULT '{}',
			hash          TEXT    NOT NULL DEFAULT '',
			element_count INTEGER NOT NULL DEFAULT 0,
			scene_count   INTEGER NOT NULL DEFAULT 0,
			characters    TEXT    NOT NULL DEFAULT '[]',
			indexed_at    TEXT    NOT NULL
		);`,
		// Parsed elements in document order.
		`CREATE TABLE IF NOT EXISTS elements (
			elem_id     INTEGER PRIMARY KEY,
			script_id   TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			type        TEXT    NOT NULL,
			line_number INTEGER NOT NULL,
			character   TEXT,
			scene       TEXT,
			text        TEXT    NOT NULL,
			FOREIGN KEY(script_id) REFERENCES scripts(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_elements_script ON elements(script_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_elements_type ON elements(type);`,
		`CREATE INDEX IF NOT EXISTS idx_elements_character ON elements(character);`,

		// External-content FTS5 index over elements.text, kept in sync by triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_elements USING fts5(
			text,
			content='elements',
			content_rowid='elem_id',
			tokenize = 'unicode61'
		);`,

		// Full-text history of script files.
		`CREATE TABLE IF NOT EXISTS script_snapshots (
			id        INTEGER PRIMARY KEY,
			script_id TEXT    NOT NULL,
			ts        TEXT    NOT NULL,
			text      TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_script_snapshots_ts ON script_snapshots(script_id, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS elements_ai AFTER INSERT ON elements BEGIN
			INSERT INTO fts_elements(rowid, text) VALUES (new.elem_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS elements_ad AFTER DELETE ON elements BEGIN
			INSERT INTO fts_elements(fts_elements, rowid, text) VALUES ('delete', old.elem_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS elements_au AFTER UPDATE OF text ON elements BEGIN
			INSERT INTO fts_elements(fts_elements, rowid, text) VALUES ('delete', old.elem_id, old.text);
			INSERT INTO fts_elements(rowid, text) VALUES (new.elem_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds the index if needed.
// It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, lib *Library) (bool, error) {
	if lib == nil {
		return false, errors.New("nil Library")
	}
	path := IndexPath(lib.Root)
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if rbErr := RebuildIndex(ctx, lib); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM elements LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if err := RebuildIndex(ctx, lib); err != nil {
		return false, err
	}
	return true, nil
}

// RebuildIndex drops the derived tables and re-indexes every script in the manifest.
// Meta, version and snapshot history are preserved.
func RebuildIndex(ctx context.Context, lib *Library) error {
	if lib == nil {
		return errors.New("nil Library")
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "index_rebuild").With(
		slog.String("root", lib.Root),
	)
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TRIGGER IF EXISTS elements_ai;",
		"DROP TRIGGER IF EXISTS elements_ad;",
		"DROP TRIGGER IF EXISTS elements_au;",
		"DROP TABLE IF EXISTS fts_elements;",
		"DROP TABLE IF EXISTS elements;",
		"DROP TABLE IF EXISTS scripts;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			_ = db.Close()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		_ = db.Close()
		return fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	_ = db.Close()

	paths := make([]string, 0, len(lib.Manifest.Scripts))
	for _, rel := range lib.Manifest.Scripts {
		paths = append(paths, lib.AbsPath(rel))
	}
	n, err := IndexScripts(ctx, lib, paths)
	l.Info("index rebuilt", slog.Int("scripts", n), slog.Any("err", err))
	return err
}

// backupIndexFile copies the current index file into a timestamped backup in .gft/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// removeIndexFiles deletes the database together with its WAL side files.
func removeIndexFiles(indexPath string) {
	for _, p := range []string{indexPath, indexPath + "-wal", indexPath + "-shm"} {
		_ = os.Remove(p)
	}
}
