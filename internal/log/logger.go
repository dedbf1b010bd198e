/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log sets up the slog logger shared by the gofountain CLI, the script
// library and the publishing server.
//
// Console output is one line per record; a JSON copy can go to a rotated file.
// Records logged with a context pick up the script and owner stored in it, so
// a library rebuild or a publish request can be followed line by line.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"gofountain/internal/version"
)

// Options configures Init. FromEnv fills it from GFT_LOG_LEVEL, GFT_LOG_FORMAT,
// GFT_LOG_FILE and GFT_LOG_SOURCE; the config file's [logging] block does the
// same from the CLI.
type Options struct {
	Level     string // debug, info, warn or error; anything else means info
	Format    string // "console" or "json"
	AddSource bool
	File      string // JSON log file, rotated; empty disables it

	// Rotation of File. Zero values use 10 MB, 3 backups and 28 days.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu      sync.RWMutex
	current *slog.Logger
)

// L returns the process logger. Until Init runs it is built from the environment.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init installs the process logger and makes it slog's default.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	handlers := []slog.Handler{withScriptContext(consoleHandler(os.Stderr, opts.Format, lvl, opts.AddSource))}
	if path := strings.TrimSpace(opts.File); path != "" {
		handlers = append(handlers, withScriptContext(fileHandler(path, opts, lvl)))
	}
	h := handlers[0]
	if len(handlers) > 1 {
		h = fanout(handlers)
	}
	logger := slog.New(h).With(
		slog.String("app", "gofountain"),
		slog.String("ver", version.String()),
	)

	mu.Lock()
	current = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

func consoleHandler(w io.Writer, format string, lvl slog.Level, src bool) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: src})
	}
	return &lineHandler{level: lvl, source: src, w: w, wmu: &sync.Mutex{}}
}

func fileHandler(path string, opts Options, lvl slog.Level) slog.Handler {
	w := &lj.Logger{
		Filename:   path,
		MaxSize:    orDefault(opts.MaxSizeMB, 10),
		MaxBackups: orDefault(opts.MaxBackups, 3),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
		Compress:   true,
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// FromEnv reads Options from the GFT_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("GFT_LOG_LEVEL", "info"),
		Format:    getenv("GFT_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("GFT_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("GFT_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent tags records with the subsystem emitting them: cli, storage,
// backend, crash, telemetry.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation narrows a component logger to one operation, e.g. "index_script".
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

type ctxKey int

const (
	scriptKey ctxKey = iota
	ownerKey
)

// WithScript returns a context whose records carry the script being worked on:
// a library-relative path or a published script id.
// Only the *Context logging methods see it.
func WithScript(ctx context.Context, script string) context.Context {
	return context.WithValue(ctx, scriptKey, script)
}

// WithOwner returns a context whose records carry the authenticated subject of
// a server request.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// scriptContext copies the script and owner from the record's context.
type scriptContext struct{ next slog.Handler }

func withScriptContext(h slog.Handler) slog.Handler { return &scriptContext{next: h} }

func (s *scriptContext) Enabled(ctx context.Context, level slog.Level) bool {
	return s.next.Enabled(ctx, level)
}

func (s *scriptContext) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if v, ok := ctx.Value(scriptKey).(string); ok && v != "" {
			r.AddAttrs(slog.String("script", v))
		}
		if v, ok := ctx.Value(ownerKey).(string); ok && v != "" {
			r.AddAttrs(slog.String("owner", v))
		}
	}
	return s.next.Handle(ctx, r)
}

func (s *scriptContext) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &scriptContext{next: s.next.WithAttrs(attrs)}
}

func (s *scriptContext) WithGroup(name string) slog.Handler {
	return &scriptContext{next: s.next.WithGroup(name)}
}

// fanoutHandler sends each record to every handler and reports the first error.
type fanoutHandler []slog.Handler

func fanout(hs []slog.Handler) slog.Handler { return fanoutHandler(hs) }

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// lineHandler writes "time LVL message key=value ..." lines for terminals.
type lineHandler struct {
	level  slog.Level
	source bool
	w      io.Writer
	wmu    *sync.Mutex
	prefix string // joined group names plus "."
	attrs  []slog.Attr
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.Grow(160)
	b.WriteString(r.Time.Format("2006-01-02T15:04:05Z07:00"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	if h.source && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			b.WriteString(" src=")
			b.WriteString(f.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
		}
	}
	b.WriteByte('\n')
	if h.wmu != nil {
		h.wmu.Lock()
		defer h.wmu.Unlock()
	}
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(valueText(a.Value.Resolve()))
}

func levelTag(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	}
	return l.String()
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindString:
		if strings.ContainsAny(v.String(), " \t\n\"=") {
			return strconv.Quote(v.String())
		}
		return v.String()
	}
	return v.String()
}
