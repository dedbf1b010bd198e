/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns panics in the CLI into a report file and a clean exit.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "gofountain/internal/log"
	"gofountain/internal/storage"
	"gofountain/internal/telemetry"
	"gofountain/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Recover captures a panic, logs an error with stacktrace,
// writes an error report file, and snapshots every script of the library
// (if one is given) so the current text can be restored later.
//
// Usage: defer crash.Recover(lib)
func Recover(lib *storage.Library) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, _ := writeReport(lib, r, stack)
		if lib != nil {
			n := snapshotLibrary(lib)
			l.Info("crash snapshots written", slog.Int("scripts", n))
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

// snapshotLibrary saves a snapshot of each manifest script and returns how many succeeded.
func snapshotLibrary(lib *storage.Library) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l := applog.WithComponent("crash")
	now := time.Now()
	n := 0
	for _, rel := range lib.Manifest.Scripts {
		if err := storage.SaveScriptSnapshot(ctx, lib, lib.AbsPath(rel), now); err != nil {
			l.Error("crash snapshot failed", slog.String("script", rel), slog.Any("err", err))
			continue
		}
		n++
	}
	return n
}

func writeReport(lib *storage.Library, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if lib != nil && lib.Root != "" {
		dir = filepath.Join(lib.Root, storage.IndexDirName, storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "gofountain crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if lib != nil {
		_, _ = fmt.Fprintf(&buf, "Library: %s\n", lib.Root)
		_, _ = fmt.Fprintf(&buf, "Scripts: %d\n", len(lib.Manifest.Scripts))
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// opt-in upload, see telemetry.FromEnv
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
