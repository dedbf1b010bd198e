/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package fountain parses Fountain screenplay markup into a typed document model.
// Parsing is a pure function of the input text: no globals are written and two
// concurrent parses never share state.
package fountain

import (
	"fmt"
	"strconv"
	"strings"
)

// ElementType tags a classified screenplay element.
// The zero value means "no element" and is never stored in a Document.
type ElementType int

const (
	TitlePage ElementType = iota + 1
	SceneHeading
	Action
	Character
	Dialogue
	Parenthetical
	Transition
	Note
	Boneyard
	Section
	Synopsis
)

// ElementTypes lists every element type in declaration order.
var ElementTypes = []ElementType{
	TitlePage, SceneHeading, Action, Character, Dialogue, Parenthetical,
	Transition, Note, Boneyard, Section, Synopsis,
}

var elementTypeNames = map[ElementType]string{
	TitlePage:     "title_page",
	SceneHeading:  "scene_heading",
	Action:        "action",
	Character:     "character",
	Dialogue:      "dialogue",
	Parenthetical: "parenthetical",
	Transition:    "transition",
	Note:          "note",
	Boneyard:      "boneyard",
	Section:       "section",
	Synopsis:      "synopsis",
}

func (t ElementType) String() string {
	if s, ok := elementTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether t is one of the declared element types.
func (t ElementType) Valid() bool {
	_, ok := elementTypeNames[t]
	return ok
}

// ParseElementType resolves a snake_case type name (case-insensitive).
func ParseElementType(s string) (ElementType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range elementTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

func (t ElementType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid element type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ElementType) UnmarshalText(b []byte) error {
	v, err := ParseElementType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// FormatKind is the kind of an inline emphasis span.
type FormatKind int

const (
	Bold FormatKind = iota + 1
	Italic
	Underline
)

func (k FormatKind) String() string {
	switch k {
	case Bold:
		return "bold"
	case Italic:
		return "italic"
	case Underline:
		return "underline"
	default:
		return "unknown"
	}
}

// ParseFormatKind resolves "bold", "italic" or "underline".
func ParseFormatKind(s string) (FormatKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bold":
		return Bold, nil
	case "italic":
		return Italic, nil
	case "underline":
		return Underline, nil
	}
	return 0, fmt.Errorf("unknown format kind %q", s)
}

func (k FormatKind) MarshalText() ([]byte, error) {
	if k < Bold || k > Underline {
		return nil, fmt.Errorf("invalid format kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *FormatKind) UnmarshalText(b []byte) error {
	v, err := ParseFormatKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// FormatSpan marks [Start, End) of an element's plain text as emphasized.
// Offsets are byte offsets into Element.Text.
type FormatSpan struct {
	Kind  FormatKind `json:"kind"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

// Meta carries the auxiliary data recognized per element type:
//   - Section: Depth
//   - SceneHeading: SceneNumber
//   - Character: Extension, Dual
//   - Transition: Centered
//
// Fields that do not apply to an element's type stay at their zero value.
type Meta struct {
	Depth       int
	SceneNumber string
	Extension   string
	Dual        bool
	Centered    bool
}

// Metadata keys used in the serialized form of Meta.
const (
	MetaDepth       = "depth"
	MetaSceneNumber = "scene_number"
	MetaExtension   = "extension"
	MetaDual        = "dual"
	MetaCentered    = "centered"
)

// IsZero reports whether no metadata is set.
func (m Meta) IsZero() bool { return m == Meta{} }

// Map returns the string form of the metadata. Unset fields are omitted.
func (m Meta) Map() map[string]string {
	out := map[string]string{}
	if m.Depth > 0 {
		out[MetaDepth] = strconv.Itoa(m.Depth)
	}
	if m.SceneNumber != "" {
		out[MetaSceneNumber] = m.SceneNumber
	}
	if m.Extension != "" {
		out[MetaExtension] = m.Extension
	}
	if m.Dual {
		out[MetaDual] = "true"
	}
	if m.Centered {
		out[MetaCentered] = "true"
	}
	return out
}

// metaFromMap is the inverse of Meta.Map. Unknown keys are rejected.
func metaFromMap(m map[string]string) (Meta, error) {
	var out Meta
	for k, v := range m {
		switch k {
		case MetaDepth:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return Meta{}, fmt.Errorf("invalid %s %q", MetaDepth, v)
			}
			out.Depth = n
		case MetaSceneNumber:
			out.SceneNumber = v
		case MetaExtension:
			out.Extension = v
		case MetaDual:
			out.Dual = v == "true"
		case MetaCentered:
			out.Centered = v == "true"
		default:
			return Meta{}, fmt.Errorf("unknown metadata key %q", k)
		}
	}
	return out, nil
}

// Element is one classified unit of a screenplay. Elements are produced once by
// the assembler; Document accessors hand out copies.
type Element struct {
	Type       ElementType
	Text       string
	Formatting []FormatSpan
	LineNumber int // 1-based source line of the first contributing line
	Meta       Meta
}

func (e Element) clone() Element {
	if e.Formatting != nil {
		e.Formatting = append([]FormatSpan(nil), e.Formatting...)
	}
	return e
}
