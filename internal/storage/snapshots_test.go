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
	"errors"
	"os"
	"testing"
	"time"
)

func TestScriptSnapshotsCRUD(t *testing.T) {
	lib := newTestLibrary(t)
	p := writeScript(t, lib, "one.fountain", "v1\n")
	other := writeScript(t, lib, "two.fountain", "other\n")
	ctx := context.Background()

	if _, ok, err := GetLatestScriptSnapshot(ctx, lib, p); err != nil || ok {
		t.Fatalf("expected no snapshot yet: ok=%v err=%v", ok, err)
	}
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, text := range []string{"v1\n", "v2\n", "v3\n"} {
		writeScript(t, lib, "one.fountain", text)
		if err := SaveScriptSnapshot(ctx, lib, p, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("SaveScriptSnapshot: %v", err)
		}
	}
	if err := SaveScriptSnapshot(ctx, lib, other, base); err != nil {
		t.Fatalf("SaveScriptSnapshot other: %v", err)
	}

	latest, ok, err := GetLatestScriptSnapshot(ctx, lib, p)
	if err != nil || !ok {
		t.Fatalf("GetLatestScriptSnapshot: ok=%v err=%v", ok, err)
	}
	if latest.Text != "v3\n" || !latest.TS.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("latest = %+v", latest)
	}
	list, err := ListScriptSnapshots(ctx, lib, p, 10)
	if err != nil {
		t.Fatalf("ListScriptSnapshots: %v", err)
	}
	if len(list) != 3 || list[2].Text != "v1\n" {
		t.Fatalf("list = %+v", list)
	}

	n, err := PruneOldScriptSnapshots(ctx, lib, p, 1)
	if err != nil {
		t.Fatalf("PruneOldScriptSnapshots: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
	// Other scripts keep their history.
	if _, ok, _ := GetLatestScriptSnapshot(ctx, lib, other); !ok {
		t.Fatalf("prune touched another script")
	}
}

func TestRestoreLatestScriptSnapshot(t *testing.T) {
	lib := newTestLibrary(t)
	p := writeScript(t, lib, "one.fountain", sampleScript)
	ctx := context.Background()
	if _, err := RestoreLatestScriptSnapshot(ctx, lib, p); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if err := SaveScriptSnapshot(ctx, lib, p, time.Now()); err != nil {
		t.Fatalf("SaveScriptSnapshot: %v", err)
	}
	writeScript(t, lib, "one.fountain", "INT. ELSEWHERE - DAY\n")
	if _, err := RestoreLatestScriptSnapshot(ctx, lib, p); err != nil {
		t.Fatalf("RestoreLatestScriptSnapshot: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != sampleScript {
		t.Fatalf("file not restored: %q", b)
	}
	info, err := GetScript(ctx, lib, "one.fountain")
	if err != nil || info.Title != "Brick & Steel" {
		t.Fatalf("restored file not re-indexed: %+v %v", info, err)
	}
}
