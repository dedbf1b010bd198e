/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"sort"
	"strings"
)

// Document is a parsed screenplay: body elements in source order plus the
// title-page metadata. A Document is not modified after construction.
type Document struct {
	elements []Element
	metadata map[string]string
}

// NewDocument builds a Document from already classified elements.
// Metadata keys are folded to lower case; later duplicates win.
func NewDocument(elements []Element, metadata map[string]string) *Document {
	d := &Document{
		elements: make([]Element, 0, len(elements)),
		metadata: make(map[string]string, len(metadata)),
	}
	for _, e := range elements {
		d.elements = append(d.elements, e.clone())
	}
	for k, v := range metadata {
		d.metadata[normalizeKey(k)] = v
	}
	return d
}

// Len returns the number of body elements.
func (d *Document) Len() int { return len(d.elements) }

// At returns a copy of the i-th element.
func (d *Document) At(i int) Element { return d.elements[i].clone() }

// Elements returns a copy of the element sequence.
func (d *Document) Elements() []Element {
	out := make([]Element, len(d.elements))
	for i, e := range d.elements {
		out[i] = e.clone()
	}
	return out
}

// Metadata returns a copy of the title-page metadata.
func (d *Document) Metadata() map[string]string {
	out := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		out[k] = v
	}
	return out
}

// Meta looks up one title-page value; the key is case-insensitive.
func (d *Document) Meta(key string) (string, bool) {
	v, ok := d.metadata[normalizeKey(key)]
	return v, ok
}

// Title returns the "title" title-page value, if any.
func (d *Document) Title() string {
	v, _ := d.Meta("title")
	return v
}

// Characters returns the sorted, de-duplicated speaker names.
func (d *Document) Characters() []string {
	seen := map[string]struct{}{}
	for _, e := range d.elements {
		if e.Type != Character {
			continue
		}
		if name := CueName(e.Text); name != "" {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CueName normalizes a character cue: the dual-dialogue caret is dropped and the name upper-cased.
func CueName(cue string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(cue), "^")))
}

// Scenes returns the scene heading texts in order.
func (d *Document) Scenes() []string {
	var out []string
	for _, e := range d.elements {
		if e.Type == SceneHeading {
			out = append(out, strings.TrimSpace(e.Text))
		}
	}
	return out
}

// Statistics counts elements. Keys: total_elements, characters, scenes and
// <type>_count for every element type.
func (d *Document) Statistics() map[string]int {
	stats := map[string]int{
		"total_elements": len(d.elements),
		"characters":     len(d.Characters()),
		"scenes":         len(d.Scenes()),
	}
	for _, t := range ElementTypes {
		stats[t.String()+"_count"] = 0
	}
	for _, e := range d.elements {
		stats[e.Type.String()+"_count"]++
	}
	return stats
}

// SceneAt returns the text of the scene heading that encloses element i, or ""
// before the first scene. A scene heading encloses itself.
func (d *Document) SceneAt(i int) string {
	if i >= len(d.elements) {
		i = len(d.elements) - 1
	}
	for j := i; j >= 0; j-- {
		if d.elements[j].Type == SceneHeading {
			return strings.TrimSpace(d.elements[j].Text)
		}
	}
	return ""
}

// SpeakerAt returns the character cue that owns the dialogue or parenthetical at
// index i, or "" when the element is not part of a dialogue block.
func (d *Document) SpeakerAt(i int) string {
	if i < 0 || i >= len(d.elements) {
		return ""
	}
	switch d.elements[i].Type {
	case Dialogue, Parenthetical:
	default:
		return ""
	}
	for j := i - 1; j >= 0; j-- {
		switch d.elements[j].Type {
		case Character:
			return d.elements[j].Text
		case Dialogue, Parenthetical, Note, Boneyard:
			continue
		default:
			return ""
		}
	}
	return ""
}
