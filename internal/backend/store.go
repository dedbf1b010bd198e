/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend implements the thin HTTP service that parses, renders and
// publishes Fountain scripts, together with its Go client.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gofountain/internal/fountain"
	"gofountain/internal/storage"
)

var (
	ErrNotFound  = errors.New("script not found")
	ErrForbidden = errors.New("script belongs to another owner")
	ErrInvalidID = errors.New("invalid script id")
)

// ScriptSummary is the listing projection of a published script.
type ScriptSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Owner      string    `json:"owner"`
	Version    int64     `json:"version"`
	Scenes     int       `json:"scenes"`
	Characters []string  `json:"characters"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Script is a published script with its source text and parsed document.
type Script struct {
	ScriptSummary
	Metadata map[string]string `json:"metadata"`
	Source   string            `json:"source"`
	Document json.RawMessage   `json:"document"`
}

// Store persists published scripts. Publish creates a script when id is empty
// or unknown and otherwise replaces it, bumping Version.
// Search results use storage.SearchResult with Path holding the script title.
type Store interface {
	Publish(ctx context.Context, owner, id, source string) (ScriptSummary, error)
	List(ctx context.Context) ([]ScriptSummary, error)
	Get(ctx context.Context, id string) (Script, error)
	Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// prepared is the parsed form of a script about to be stored.
type prepared struct {
	doc     *fountain.Document
	docJSON []byte
	summary ScriptSummary
}

func prepare(owner, id, source string) (prepared, error) {
	doc, err := fountain.ParseBytes([]byte(source))
	if err != nil {
		return prepared{}, err
	}
	b, err := fountain.ToJSON(doc)
	if err != nil {
		return prepared{}, fmt.Errorf("encode document: %w", err)
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return prepared{}, fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	return prepared{
		doc:     doc,
		docJSON: b,
		summary: ScriptSummary{
			ID:         id,
			Title:      doc.Title(),
			Owner:      owner,
			Scenes:     len(doc.Scenes()),
			Characters: doc.Characters(),
			UpdatedAt:  time.Now().UTC(),
		},
	}, nil
}

// MemStore keeps published scripts in memory. It backs "serve" when no
// database is configured and the handler tests.
type MemStore struct {
	mu      sync.RWMutex
	scripts map[string]memScript
}

type memScript struct {
	script Script
	doc    *fountain.Document
}

func NewMemStore() *MemStore { return &MemStore{scripts: map[string]memScript{}} }

func (m *MemStore) Publish(_ context.Context, owner, id, source string) (ScriptSummary, error) {
	p, err := prepare(owner, id, source)
	if err != nil {
		return ScriptSummary{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.scripts[p.summary.ID]; ok {
		if cur.script.Owner != owner {
			return ScriptSummary{}, ErrForbidden
		}
		p.summary.Version = cur.script.Version + 1
	} else {
		p.summary.Version = 1
	}
	m.scripts[p.summary.ID] = memScript{
		script: Script{ScriptSummary: p.summary, Metadata: p.doc.Metadata(), Source: source, Document: p.docJSON},
		doc:    p.doc,
	}
	return p.summary, nil
}

func (m *MemStore) List(_ context.Context) ([]ScriptSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ScriptSummary, 0, len(m.scripts))
	for _, s := range m.scripts {
		out = append(out, s.script.ScriptSummary)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) Get(_ context.Context, id string) (Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[id]
	if !ok {
		return Script{}, ErrNotFound
	}
	return s.script, nil
}

// Search matches elements containing every whitespace-separated term of q.Text, case-insensitively.
func (m *MemStore) Search(_ context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	types := map[string]bool{}
	for _, t := range q.Types {
		types[strings.ToLower(strings.TrimSpace(t))] = true
	}
	char := fountain.CueName(q.Character)
	scene := strings.ToLower(strings.TrimSpace(q.Scene))

	m.mu.RLock()
	ids := make([]string, 0, len(m.scripts))
	for id := range m.scripts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []storage.SearchResult
	for _, id := range ids {
		if q.ScriptID != "" && q.ScriptID != id {
			continue
		}
		s := m.scripts[id]
		for i, r := range elementRows(s.doc) {
			if len(types) > 0 && !types[r.Type] {
				continue
			}
			if char != "" && r.Character != char {
				continue
			}
			if scene != "" && !strings.Contains(strings.ToLower(r.Scene), scene) {
				continue
			}
			lower := strings.ToLower(r.Text)
			match := true
			for _, t := range terms {
				if !strings.Contains(lower, t) {
					match = false
					break
				}
			}
			if !match {
				continue
			}
			out = append(out, storage.SearchResult{
				ElemID:     int64(i),
				ScriptID:   id,
				Path:       s.script.Title,
				Seq:        i,
				Type:       r.Type,
				LineNumber: r.LineNumber,
				Character:  r.Character,
				Scene:      r.Scene,
				Snippet:    highlight(r.Text, terms),
			})
		}
	}
	m.mu.RUnlock()
	return paginate(out, q.Limit, q.Offset), nil
}

func (m *MemStore) Ping(context.Context) error { return nil }
func (m *MemStore) Close() error               { return nil }

// elementRow is the searchable projection of one element.
type elementRow struct {
	Type       string
	LineNumber int
	Character  string
	Scene      string
	Text       string
}

func elementRows(doc *fountain.Document) []elementRow {
	els := doc.Elements()
	rows := make([]elementRow, len(els))
	for i, e := range els {
		r := elementRow{Type: e.Type.String(), LineNumber: e.LineNumber, Scene: doc.SceneAt(i), Text: e.Text}
		switch e.Type {
		case fountain.Character:
			r.Character = fountain.CueName(e.Text)
		case fountain.Dialogue, fountain.Parenthetical:
			r.Character = fountain.CueName(doc.SpeakerAt(i))
		}
		rows[i] = r
	}
	return rows
}

// highlight wraps the first occurrence of the first term in [ ].
func highlight(text string, terms []string) string {
	if len(terms) == 0 {
		return text
	}
	i := strings.Index(strings.ToLower(text), terms[0])
	if i < 0 || len(strings.ToLower(text)) != len(text) {
		return text
	}
	j := i + len(terms[0])
	return text[:i] + "[" + text[i:j] + "]" + text[j:]
}

func paginate(in []storage.SearchResult, limit, offset int) []storage.SearchResult {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}
