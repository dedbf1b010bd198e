/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"strings"
)

// Parse parses Fountain text into a Document. It never fails: Fountain has no
// strict grammar, so malformed input degrades to ACTION elements or literal text.
//
// Supported syntax:
//   - Title page: leading "Key: Value" lines, indented continuation lines.
//   - Boneyard /* ... */ and notes [[ ... ]], possibly spanning lines.
//   - Scene headings (INT./EXT./EST./INT/EXT./I/E. or forced with "."), optional #n# scene number.
//   - Transitions ("... TO:", FADE IN:, FADE OUT., or forced with ">"), ">text<" centered.
//   - Sections "#", synopses "=", page breaks "===".
//   - Character cues, parentheticals and dialogue blocks.
//   - Everything else is action; consecutive action lines merge.
func Parse(text string) *Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	meta, consumed := ExtractTitlePage(lines)
	a := &assembler{lines: lines, first: true}
	a.run(consumed)
	return &Document{elements: a.elements, metadata: meta}
}

// pending is an element still collecting lines.
type pending struct {
	typ   ElementType
	lines []string
	line  int
	meta  Meta
}

// assembler holds the state of one parse. It is created per call and never shared.
type assembler struct {
	lines    []string
	elements []Element
	pending  *pending
	open     *pending // unterminated boneyard or note
	prev     ElementType
	blank    bool
	first    bool
}

func (a *assembler) run(start int) {
	for i := start; i < len(a.lines); i++ {
		raw := a.lines[i]
		lineNo := i + 1
		if a.open != nil {
			a.continueOpen(raw, lineNo)
			continue
		}
		if strings.TrimSpace(raw) == "" {
			a.flush()
			a.blank = true
			a.prev = 0
			continue
		}
		ctx := Context{
			Prev:        a.prev,
			BlankBefore: a.blank,
			First:       a.first,
			NextBlank:   i+1 >= len(a.lines) || strings.TrimSpace(a.lines[i+1]) == "",
		}
		a.consume(raw, lineNo, ctx)
		a.blank = false
		a.first = false
	}
	// End of input closes whatever is still open.
	if a.open != nil {
		a.closeOpen()
	}
	a.flush()
}

func (a *assembler) consume(line string, lineNo int, ctx Context) {
	c := Classify(line, ctx)
	switch {
	case c.PageBreak:
		a.flush()
		a.prev = 0
		return
	case c.Open:
		a.flush()
		a.open = &pending{typ: c.Type, lines: []string{c.Content}, line: lineNo}
		return
	case c.Type == Boneyard || c.Type == Note:
		a.flush()
		a.emit(c.Type, c.Content, lineNo, c.Meta)
		if c.Rest != "" {
			a.consume(c.Rest, lineNo, Context{Prev: a.prev, NextBlank: ctx.NextBlank})
		}
		return
	case c.Type == Action || c.Type == Dialogue:
		if a.pending != nil && a.pending.typ == c.Type {
			a.pending.lines = append(a.pending.lines, c.Content)
		} else {
			a.flush()
			a.pending = &pending{typ: c.Type, lines: []string{c.Content}, line: lineNo}
		}
	default:
		a.flush()
		a.emit(c.Type, c.Content, lineNo, c.Meta)
	}

	switch c.Type {
	case Character, Parenthetical, Dialogue:
		a.prev = c.Type
	default:
		a.prev = 0
	}
}

func (a *assembler) continueOpen(raw string, lineNo int) {
	closer := "*/"
	if a.open.typ == Note {
		closer = "]]"
	}
	idx := strings.Index(raw, closer)
	if idx < 0 {
		a.open.lines = append(a.open.lines, raw)
		return
	}
	a.open.lines = append(a.open.lines, raw[:idx])
	a.closeOpen()
	if rest := strings.TrimSpace(raw[idx+len(closer):]); rest != "" {
		a.consume(rest, lineNo, Context{Prev: a.prev})
	}
	a.blank = false
	a.first = false
}

func (a *assembler) closeOpen() {
	p := a.open
	a.open = nil
	a.emit(p.typ, strings.TrimSpace(strings.Join(p.lines, "\n")), p.line, p.meta)
}

func (a *assembler) flush() {
	if a.pending == nil {
		return
	}
	p := a.pending
	a.pending = nil
	a.emit(p.typ, strings.Join(p.lines, "\n"), p.line, p.meta)
}

func (a *assembler) emit(t ElementType, text string, lineNo int, meta Meta) {
	e := Element{Type: t, LineNumber: lineNo, Meta: meta}
	switch t {
	case Boneyard, Note:
		e.Text = text
	default:
		e.Text, e.Formatting = FormatInline(text)
	}
	a.elements = append(a.elements, e)
}
