/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gofountain/internal/storage"
)

// TestRecover_Panicking ensures Recover handles a panic, writes a report,
// snapshots library scripts, and does not terminate the test process due to injected exitFn.
func TestRecover_Panicking(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	called := 0
	oldExit := exitFn
	exitFn = func(code int) { called = code }
	defer func() { exitFn = oldExit }()

	lib, err := storage.InitLibrary(t.TempDir(), "crash")
	if err != nil {
		t.Fatalf("InitLibrary: %v", err)
	}
	script := filepath.Join(lib.Root, "one.fountain")
	if err := os.WriteFile(script, []byte("INT. LAB - NIGHT\n\nSparks.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := storage.IndexScript(context.Background(), lib, script); err != nil {
		t.Fatalf("IndexScript: %v", err)
	}

	func() {
		defer Recover(lib)
		panic("boom")
	}()

	var found string
	bdir := filepath.Join(lib.Root, storage.IndexDirName, storage.BackupsDirName)
	files, _ := os.ReadDir(bdir)
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log") {
			found = filepath.Join(bdir, f.Name())
			break
		}
	}
	if found == "" {
		t.Fatalf("expected crash report file under backups dir")
	}
	b, err := os.ReadFile(found)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Contains(b, []byte("Panic: boom")) {
		t.Fatalf("report does not contain panic: %s", string(b))
	}
	if _, ok, err := storage.GetLatestScriptSnapshot(context.Background(), lib, script); err != nil || !ok {
		t.Fatalf("expected crash snapshot: ok=%v err=%v", ok, err)
	}
	if called != 2 {
		t.Fatalf("expected exit code 2, got %d", called)
	}
}

func TestRecover_NoPanicIsNoop(t *testing.T) {
	called := -1
	oldExit := exitFn
	exitFn = func(code int) { called = code }
	defer func() { exitFn = oldExit }()
	func() {
		defer Recover(nil)
	}()
	if called != -1 {
		t.Fatalf("exit must not be called without a panic")
	}
}
