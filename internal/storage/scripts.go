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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"gofountain/internal/fountain"
	applog "gofountain/internal/log"
)

// ErrScriptNotFound is returned when a script id or path is not in the index.
var ErrScriptNotFound = errors.New("script not found")

// scriptNamespace derives stable script ids from library-relative paths, so
// snapshot history survives a rebuild.
var scriptNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gofountain:script"))

// ScriptInfo is the index summary of one script file.
type ScriptInfo struct {
	ID           string
	Path         string // relative to the library root
	Title        string
	Metadata     map[string]string
	Hash         string
	ElementCount int
	SceneCount   int
	Characters   []string
	IndexedAt    time.Time
}

// ScriptID returns the id a script at rel (library-relative, slash separated) is stored under.
func ScriptID(rel string) string {
	return uuid.NewSHA1(scriptNamespace, []byte(rel)).String()
}

// IndexScript parses the file at path and replaces its rows in the index.
// The file is added to the manifest when missing. Unchanged files (same
// content hash) are skipped; changed reports whether rows were rewritten.
func IndexScript(ctx context.Context, lib *Library, path string) (info ScriptInfo, changed bool, err error) {
	if lib == nil {
		return ScriptInfo{}, false, errors.New("nil Library")
	}
	rel, err := lib.RelPath(path)
	if err != nil {
		return ScriptInfo{}, false, err
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "index_script")
	ctx = applog.WithScript(ctx, rel)

	raw, err := os.ReadFile(lib.AbsPath(rel))
	if err != nil {
		return ScriptInfo{}, false, fmt.Errorf("read %s: %w", rel, err)
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return ScriptInfo{}, false, err
	}
	defer db.Close()

	id := ScriptID(rel)
	if cur, gerr := getScript(ctx, db, id); gerr == nil && cur.Hash == hash {
		if lib.addScript(rel) {
			if err := Save(lib); err != nil {
				return cur, false, err
			}
		}
		l.DebugContext(ctx, "unchanged, skipped")
		return cur, false, nil
	}

	doc, err := fountain.ParseBytes(raw)
	if err != nil {
		return ScriptInfo{}, false, fmt.Errorf("parse %s: %w", rel, err)
	}
	info = ScriptInfo{
		ID:           id,
		Path:         rel,
		Title:        doc.Title(),
		Metadata:     doc.Metadata(),
		Hash:         hash,
		ElementCount: doc.Len(),
		SceneCount:   len(doc.Scenes()),
		Characters:   doc.Characters(),
		IndexedAt:    time.Now().UTC(),
	}
	if err := writeScriptRows(ctx, db, info, doc); err != nil {
		return ScriptInfo{}, false, err
	}
	if lib.addScript(rel) {
		if err := Save(lib); err != nil {
			return info, true, err
		}
	}
	l.InfoContext(ctx, "script indexed", slog.Int("elements", info.ElementCount), slog.Int("scenes", info.SceneCount))
	return info, true, nil
}

// IndexScripts indexes every path and keeps going on failures; the errors are combined.
// It returns the number of scripts whose rows were rewritten.
func IndexScripts(ctx context.Context, lib *Library, paths []string) (int, error) {
	var errs error
	n := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return n, multierr.Append(errs, err)
		}
		_, changed, err := IndexScript(ctx, lib, p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			n++
		}
	}
	return n, errs
}

func writeScriptRows(ctx context.Context, db *sql.DB, info ScriptInfo, doc *fountain.Document) error {
	meta, err := json.Marshal(info.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	chars, err := json.Marshal(info.Characters)
	if err != nil {
		return fmt.Errorf("marshal characters: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE script_id=?`, info.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear elements: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO scripts(id, path, title, metadata, hash, element_count, scene_count, characters, indexed_at)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET path=excluded.path, title=excluded.title, metadata=excluded.metadata,
			hash=excluded.hash, element_count=excluded.element_count, scene_count=excluded.scene_count,
			characters=excluded.characters, indexed_at=excluded.indexed_at`,
		info.ID, info.Path, info.Title, string(meta), info.Hash, info.ElementCount, info.SceneCount, string(chars),
		info.IndexedAt.Format(time.RFC3339Nano)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert script: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, `INSERT INTO elements(script_id, seq, type, line_number, character, scene, text) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for i, e := range doc.Elements() {
		var speaker sql.NullString
		switch e.Type {
		case fountain.Character:
			speaker = nullString(fountain.CueName(e.Text))
		case fountain.Dialogue, fountain.Parenthetical:
			speaker = nullString(fountain.CueName(doc.SpeakerAt(i)))
		}
		if _, err := ins.ExecContext(ctx, info.ID, i, e.Type.String(), e.LineNumber, speaker, nullString(doc.SceneAt(i)), e.Text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert element: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ListScripts returns every indexed script ordered by path.
func ListScripts(ctx context.Context, lib *Library) ([]ScriptInfo, error) {
	if lib == nil {
		return nil, errors.New("nil Library")
	}
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, selectScriptSQL+` ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()
	var out []ScriptInfo
	for rows.Next() {
		si, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

// GetScript looks a script up by id or by library-relative path.
func GetScript(ctx context.Context, lib *Library, idOrPath string) (ScriptInfo, error) {
	if lib == nil {
		return ScriptInfo{}, errors.New("nil Library")
	}
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return ScriptInfo{}, err
	}
	defer db.Close()
	si, err := getScript(ctx, db, idOrPath)
	if errors.Is(err, ErrScriptNotFound) {
		return getScript(ctx, db, ScriptID(idOrPath))
	}
	return si, err
}

// RemoveScript deletes a script's rows and manifest entry. The file itself is left alone.
func RemoveScript(ctx context.Context, lib *Library, path string) error {
	if lib == nil {
		return errors.New("nil Library")
	}
	rel, err := lib.RelPath(path)
	if err != nil {
		return err
	}
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return err
	}
	defer db.Close()
	id := ScriptID(rel)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE script_id=?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete elements: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scripts WHERE id=?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete script: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if lib.removeScript(rel) {
		return Save(lib)
	}
	return nil
}

// language=SQL
// dialect=SQLite
const selectScriptSQL = `SELECT id, path, title, metadata, hash, element_count, scene_count, characters, indexed_at FROM scripts`

func getScript(ctx context.Context, db *sql.DB, id string) (ScriptInfo, error) {
	row := db.QueryRowContext(ctx, selectScriptSQL+` WHERE id=?`, id)
	si, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScriptInfo{}, fmt.Errorf("%w: %s", ErrScriptNotFound, id)
	}
	return si, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScript(s scanner) (ScriptInfo, error) {
	var si ScriptInfo
	var meta, chars, ts string
	if err := s.Scan(&si.ID, &si.Path, &si.Title, &meta, &si.Hash, &si.ElementCount, &si.SceneCount, &chars, &ts); err != nil {
		return ScriptInfo{}, err
	}
	if err := json.Unmarshal([]byte(meta), &si.Metadata); err != nil {
		return ScriptInfo{}, fmt.Errorf("decode metadata of %s: %w", si.Path, err)
	}
	if err := json.Unmarshal([]byte(chars), &si.Characters); err != nil {
		return ScriptInfo{}, fmt.Errorf("decode characters of %s: %w", si.Path, err)
	}
	si.IndexedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return si, nil
}
