/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in usage counts and crash reports.
//
// Nothing leaves the machine unless the user opted in and an endpoint is set.
// Payloads carry element counts and command names only; script text, titles,
// character names and paths are never sent.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "gofountain/internal/log"
	"gofountain/internal/version"
)

// Config selects what may be sent and where.
//
// FromEnv reads GFT_TELEMETRY_OPT_IN, GFT_TELEMETRY_URL, GFT_CRASH_UPLOAD_URL,
// GFT_TELEMETRY_TIMEOUT_MS and GFT_TELEMETRY_DEBUG. The CLI additionally ORs
// OptIn with general.telemetry_opt_in from the config file.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration // per request; FromEnv defaults to 1.5s
	DebugLogging bool          // log each send attempt at debug level
}

// FromEnv builds a Config from the environment.
func FromEnv() Config {
	cfg := Config{
		OptIn:        truthy(os.Getenv("GFT_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("GFT_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("GFT_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("GFT_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("GFT_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if d, err := time.ParseDuration(ms + "ms"); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Names of the events gofountain sends.
const (
	EventScriptParsed = "script_parsed"
	EventExport       = "export"
	EventServe        = "serve"
)

// Client queues events and posts them from one background goroutine.
// A full queue drops the event; callers never block on the network.
type Client struct {
	cfg     Config
	log     *slog.Logger
	http    *http.Client
	queue   chan map[string]any
	pending atomic.Int64 // queued or in flight
	stop    chan struct{}
	once    sync.Once
}

// New starts a client. Close stops its sender.
func New(cfg Config) *Client {
	c := &Client{
		cfg:   cfg,
		log:   applog.WithComponent("telemetry"),
		http:  &http.Client{Timeout: cfg.Timeout},
		queue: make(chan map[string]any, 64),
		stop:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Enabled reports whether events would be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues name with props. props must not hold script content.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := envelope(name)
	for k, v := range props {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}
	c.pending.Add(1)
	select {
	case c.queue <- payload:
	default:
		c.pending.Add(-1)
	}
}

func envelope(name string) map[string]any {
	return map[string]any{
		"app":     "gofountain",
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
}

// ScriptParsed reports the element counts of a parsed script (the map from
// Document.Statistics) and which surface parsed it: "cli", "server", "library".
func (c *Client) ScriptParsed(counts map[string]int, source string) {
	props := make(map[string]any, len(counts)+1)
	for k, n := range counts {
		props[k] = n
	}
	props["source"] = source
	c.Event(EventScriptParsed, props)
}

// Flush waits until queued events are sent, ctx ends, or half a second passes.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.NewTimer(500 * time.Millisecond)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for c.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// Close stops the sender. Queued events that were not sent are dropped.
func (c *Client) Close() { c.once.Do(func() { close(c.stop) }) }

func (c *Client) run() {
	for {
		select {
		case <-c.stop:
			return
		case p := <-c.queue:
			c.post(c.cfg.EventsURL, "application/json", encode(p), "event")
			c.pending.Add(-1)
		}
	}
}

func encode(p map[string]any) []byte {
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return b
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	if body == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout+time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug(what+" not sent", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug(what+" sent", slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a crash report in the background when crash upload is
// enabled. The report is copied; the caller may reuse it.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", append([]byte(nil), report...), "crash report")
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// NewDefault replaces the package client used by the functions below.
func NewDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Default returns the package client, creating it from FromEnv on first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// Enabled reports whether the package client sends events.
func Enabled() bool { return Default().Enabled() }

// Event queues an event on the package client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// ScriptParsed reports script counts on the package client.
func ScriptParsed(counts map[string]int, source string) { Default().ScriptParsed(counts, source) }

// UploadCrash uploads a crash report through the package client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }

// Flush drains the package client if it was ever created.
func Flush(ctx context.Context) {
	defaultMu.Lock()
	c := defaultClient
	defaultMu.Unlock()
	c.Flush(ctx)
}
