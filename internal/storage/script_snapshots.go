/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSnapshot is returned when a script has no snapshot to restore.
var ErrNoSnapshot = errors.New("no snapshot")

// ScriptSnapshot is one saved revision of a script's full text.
type ScriptSnapshot struct {
	ID   int64
	TS   time.Time
	Text string
}

// language=SQL
// dialect=SQLite
const insertScriptSnapshotSQL = `INSERT INTO script_snapshots(script_id, ts, text) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestScriptSnapshotSQL = `SELECT id, ts, text FROM script_snapshots WHERE script_id=? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listScriptSnapshotsSQL = `SELECT id, ts, text FROM script_snapshots WHERE script_id=? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldScriptSnapshotsSQL = `DELETE FROM script_snapshots WHERE script_id=? AND id NOT IN (
	SELECT id FROM script_snapshots WHERE script_id=? ORDER BY ts DESC, id DESC LIMIT ?
)`

// SaveScriptSnapshot stores the current text of the script at path with timestamp ts.
// Snapshots live in the index database, outside the script files.
func SaveScriptSnapshot(ctx context.Context, lib *Library, path string, ts time.Time) error {
	if lib == nil {
		return errors.New("nil Library")
	}
	rel, err := lib.RelPath(path)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(lib.AbsPath(rel))
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, insertScriptSnapshotSQL, ScriptID(rel), ts.UTC().Format(time.RFC3339Nano), string(b))
	return err
}

// GetLatestScriptSnapshot returns the most recent snapshot of the script at path.
// ok is false when none exists.
func GetLatestScriptSnapshot(ctx context.Context, lib *Library, path string) (snap ScriptSnapshot, ok bool, err error) {
	if lib == nil {
		return ScriptSnapshot{}, false, errors.New("nil Library")
	}
	rel, err := lib.RelPath(path)
	if err != nil {
		return ScriptSnapshot{}, false, err
	}
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return ScriptSnapshot{}, false, err
	}
	defer func() { _ = db.Close() }()
	var tsStr string
	err = db.QueryRowContext(ctx, selectLatestScriptSnapshotSQL, ScriptID(rel)).Scan(&snap.ID, &tsStr, &snap.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return ScriptSnapshot{}, false, nil
	}
	if err != nil {
		return ScriptSnapshot{}, false, err
	}
	snap.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	return snap, true, nil
}

// ListScriptSnapshots returns up to limit most recent snapshots, newest first.
func ListScriptSnapshots(ctx context.Context, lib *Library, path string, limit int) ([]ScriptSnapshot, error) {
	if lib == nil {
		return nil, errors.New("nil Library")
	}
	rel, err := lib.RelPath(path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listScriptSnapshotsSQL, ScriptID(rel), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []ScriptSnapshot
	for rows.Next() {
		var s ScriptSnapshot
		var tsStr string
		if err := rows.Scan(&s.ID, &tsStr, &s.Text); err != nil {
			return nil, err
		}
		s.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneOldScriptSnapshots keeps at most keepLast snapshots of the script and deletes older ones.
func PruneOldScriptSnapshots(ctx context.Context, lib *Library, path string, keepLast int) (int64, error) {
	if lib == nil {
		return 0, errors.New("nil Library")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	rel, err := lib.RelPath(path)
	if err != nil {
		return 0, err
	}
	db, err := InitOrOpenIndex(lib.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	id := ScriptID(rel)
	res, err := db.ExecContext(ctx, pruneOldScriptSnapshotsSQL, id, id, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RestoreLatestScriptSnapshot writes the latest snapshot back over the script file
// and re-indexes it. The current file is first copied to .gft/backups.
func RestoreLatestScriptSnapshot(ctx context.Context, lib *Library, path string) (ScriptSnapshot, error) {
	snap, ok, err := GetLatestScriptSnapshot(ctx, lib, path)
	if err != nil {
		return ScriptSnapshot{}, err
	}
	if !ok {
		return ScriptSnapshot{}, fmt.Errorf("%w for %s", ErrNoSnapshot, path)
	}
	rel, err := lib.RelPath(path)
	if err != nil {
		return ScriptSnapshot{}, err
	}
	abs := lib.AbsPath(rel)
	if _, statErr := os.Stat(abs); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bpath := filepath.Join(lib.Root, IndexDirName, BackupsDirName, fmt.Sprintf("%s.%s.bak", filepath.Base(abs), stamp))
		if cerr := copyFile(abs, bpath); cerr != nil {
			return ScriptSnapshot{}, fmt.Errorf("backup current script: %w", cerr)
		}
	}
	if err := replaceFile(abs, []byte(snap.Text)); err != nil {
		return ScriptSnapshot{}, fmt.Errorf("restore %s: %w", rel, err)
	}
	if _, _, err := IndexScript(ctx, lib, abs); err != nil {
		return snap, err
	}
	return snap, nil
}
