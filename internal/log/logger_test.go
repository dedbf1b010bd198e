/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("GFT_LOG_LEVEL", "warn")
	t.Setenv("GFT_LOG_FORMAT", "json")
	t.Setenv("GFT_LOG_SOURCE", "TRUE")
	t.Setenv("GFT_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv = %+v", opts)
	}
	if v := getenv("GFT_LOG_NOT_SET_ANYWHERE", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback = %q", v)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		" Warning": slog.LevelWarn,
		"ERROR":    slog.LevelError,
		"":         slog.LevelInfo,
		"verbose":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func newLineHandler(buf *bytes.Buffer, lvl slog.Level) *lineHandler {
	return consoleHandler(buf, "console", lvl, false).(*lineHandler)
}

func TestLineHandler(t *testing.T) {
	var buf bytes.Buffer
	h := newLineHandler(&buf, slog.LevelWarn)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error disabled at warn level")
	}

	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "storage")}).WithGroup("scene"))
	l.Error("heading rejected", slog.Int("line", 42), slog.Float64("ratio", 0.5), slog.Bool("forced", true),
		slog.String("text", "INT. HOUSE - DAY"))

	out := buf.String()
	for _, want := range []string{
		"ERR heading rejected", "component=storage", "scene.line=42", "scene.ratio=0.5",
		"scene.forced=true", `scene.text="INT. HOUSE - DAY"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q lacks %q", out, want)
		}
	}
	if !strings.HasSuffix(out, "\n") || strings.Count(out, "\n") != 1 {
		t.Fatalf("expected one line, got %q", out)
	}
}

func TestLineHandlerSource(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(consoleHandler(&buf, "", slog.LevelDebug, true))
	l.Debug("parsed")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("source location missing: %q", buf.String())
	}
}

func TestScriptContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(withScriptContext(newLineHandler(&buf, slog.LevelDebug)))
	ctx := WithOwner(WithScript(context.Background(), "acts/one.fountain"), "writer@example.com")
	l.InfoContext(ctx, "indexed")
	l.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "script=acts/one.fountain") || !strings.Contains(lines[0], "owner=writer@example.com") {
		t.Fatalf("context attrs missing: %q", lines[0])
	}
	if strings.Contains(lines[1], "script=") || strings.Contains(lines[1], "owner=") {
		t.Fatalf("context attrs leaked into plain record: %q", lines[1])
	}
}

func TestFanoutRespectsLevels(t *testing.T) {
	var quiet, loud bytes.Buffer
	l := slog.New(fanout([]slog.Handler{
		newLineHandler(&quiet, slog.LevelError),
		newLineHandler(&loud, slog.LevelDebug),
	}))
	l.Info("scene indexed")
	if quiet.Len() != 0 {
		t.Fatalf("error-level handler got %q", quiet.String())
	}
	if !strings.Contains(loud.String(), "scene indexed") {
		t.Fatalf("debug-level handler missed record: %q", loud.String())
	}
}

func TestInitWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gofountain.log")
	Init(Options{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	t.Cleanup(func() { Init(Options{Level: "error"}) })

	l := WithOperation(WithComponent("storage"), "index_script")
	l.InfoContext(WithScript(context.Background(), "pilot.fountain"), "indexed", slog.Int("elements", 12))

	time.Sleep(20 * time.Millisecond)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(last), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", last, err)
	}
	want := map[string]any{
		"app": "gofountain", "component": "storage", "op": "index_script",
		"script": "pilot.fountain", "msg": "indexed", "elements": float64(12),
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
	if _, ok := rec["ver"].(string); !ok {
		t.Errorf("ver missing from %v", rec)
	}
}
