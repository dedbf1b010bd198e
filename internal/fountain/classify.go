/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"regexp"
	"strings"
	"unicode"
)

// Context is the little a classifier needs to know about a line's neighbours.
type Context struct {
	// Prev is the type of the last content element started in the current
	// dialogue block, or zero when not inside a block.
	Prev ElementType
	// BlankBefore is set when the line follows a blank line.
	BlankBefore bool
	// First is set for the first body line.
	First bool
	// NextBlank is set when the following line is blank or missing.
	NextBlank bool
}

// Classification is the result of classifying one line.
type Classification struct {
	Type    ElementType
	Content string
	Meta    Meta
	// Open is set for a boneyard or note whose closing delimiter is not on this line.
	Open bool
	// Rest holds text found after a closing boneyard delimiter on the same line.
	Rest string
	// PageBreak marks a "===" line: it closes the pending element and emits nothing.
	PageBreak bool
}

// rule is one entry of the ordered classification table. match must be pure.
type rule struct {
	name  string
	match func(line string, ctx Context) (Classification, bool)
}

var (
	reSceneNumber   = regexp.MustCompile(`\s*#([\w.\-]+)#\s*$`)
	reCueExtension  = regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)\s*$`)
	sceneHeadPrefix = []string{"INT./EXT.", "INT/EXT.", "I/E.", "INT.", "EXT.", "EST."}
	fixedTransition = map[string]bool{"FADE IN:": true, "FADE OUT.": true, "FADE TO BLACK.": true}
)

// rules are evaluated top to bottom; the first match wins. Blank lines never
// reach the table.
var rules = []rule{
	{"boneyard", matchBoneyard},
	{"note", matchNote},
	{"forced_scene_heading", matchForcedSceneHeading},
	{"scene_heading", matchSceneHeading},
	{"forced_transition", matchForcedTransition},
	{"transition", matchTransition},
	{"section", matchSection},
	{"page_break", matchPageBreak},
	{"synopsis", matchSynopsis},
	{"character", matchCharacter},
	{"parenthetical", matchParenthetical},
	{"dialogue", matchDialogue},
	{"action", matchAction},
}

// Classify maps a single non-blank line to its element type and content.
// Blank lines yield a zero Classification.
func Classify(line string, ctx Context) Classification {
	line = strings.TrimSpace(line)
	if line == "" {
		return Classification{}
	}
	for _, r := range rules {
		if c, ok := r.match(line, ctx); ok {
			return c
		}
	}
	return Classification{Type: Action, Content: line}
}

func matchBoneyard(line string, _ Context) (Classification, bool) {
	if !strings.HasPrefix(line, "/*") {
		return Classification{}, false
	}
	body := line[2:]
	if end := strings.Index(body, "*/"); end >= 0 {
		return Classification{
			Type:    Boneyard,
			Content: strings.TrimSpace(body[:end]),
			Rest:    strings.TrimSpace(body[end+2:]),
		}, true
	}
	return Classification{Type: Boneyard, Content: body, Open: true}, true
}

func matchNote(line string, _ Context) (Classification, bool) {
	if !strings.HasPrefix(line, "[[") {
		return Classification{}, false
	}
	body := line[2:]
	if strings.HasSuffix(body, "]]") {
		return Classification{Type: Note, Content: strings.TrimSpace(strings.TrimSuffix(body, "]]"))}, true
	}
	if strings.Contains(body, "]]") {
		// "[[a]] trailing text" is an action line with an inline note.
		return Classification{}, false
	}
	return Classification{Type: Note, Content: body, Open: true}, true
}

func matchForcedSceneHeading(line string, _ Context) (Classification, bool) {
	if !strings.HasPrefix(line, ".") || strings.HasPrefix(line, "..") {
		return Classification{}, false
	}
	text, num := splitSceneNumber(strings.TrimSpace(line[1:]))
	if text == "" {
		return Classification{}, false
	}
	return Classification{Type: SceneHeading, Content: text, Meta: Meta{SceneNumber: num}}, true
}

func matchSceneHeading(line string, _ Context) (Classification, bool) {
	upper := strings.ToUpper(line)
	for _, p := range sceneHeadPrefix {
		if strings.HasPrefix(upper, p) {
			text, num := splitSceneNumber(line)
			return Classification{Type: SceneHeading, Content: text, Meta: Meta{SceneNumber: num}}, true
		}
	}
	return Classification{}, false
}

func splitSceneNumber(s string) (string, string) {
	if m := reSceneNumber.FindStringSubmatchIndex(s); m != nil {
		return strings.TrimSpace(s[:m[0]]), s[m[2]:m[3]]
	}
	return s, ""
}

func matchForcedTransition(line string, _ Context) (Classification, bool) {
	if !strings.HasPrefix(line, ">") {
		return Classification{}, false
	}
	body := strings.TrimSpace(line[1:])
	centered := false
	if strings.HasSuffix(body, "<") {
		body = strings.TrimSpace(strings.TrimSuffix(body, "<"))
		centered = true
	}
	return Classification{Type: Transition, Content: body, Meta: Meta{Centered: centered}}, true
}

func matchTransition(line string, _ Context) (Classification, bool) {
	if !isUpper(line) {
		return Classification{}, false
	}
	if strings.HasSuffix(line, "TO:") || fixedTransition[line] {
		return Classification{Type: Transition, Content: line}, true
	}
	return Classification{}, false
}

func matchSection(line string, _ Context) (Classification, bool) {
	if !strings.HasPrefix(line, "#") {
		return Classification{}, false
	}
	depth := len(line) - len(strings.TrimLeft(line, "#"))
	return Classification{Type: Section, Content: strings.TrimSpace(line[depth:]), Meta: Meta{Depth: depth}}, true
}

func matchPageBreak(line string, _ Context) (Classification, bool) {
	if len(line) >= 3 && strings.Trim(line, "=") == "" {
		return Classification{PageBreak: true}, true
	}
	return Classification{}, false
}

func matchSynopsis(line string, _ Context) (Classification, bool) {
	if !strings.HasPrefix(line, "=") || strings.HasPrefix(line, "==") {
		return Classification{}, false
	}
	return Classification{Type: Synopsis, Content: strings.TrimSpace(line[1:])}, true
}

func matchCharacter(line string, ctx Context) (Classification, bool) {
	if !(ctx.BlankBefore || ctx.First) || ctx.NextBlank {
		return Classification{}, false
	}
	name := line
	var meta Meta
	if strings.HasSuffix(name, "^") {
		name = strings.TrimSpace(strings.TrimSuffix(name, "^"))
		meta.Dual = true
	}
	if m := reCueExtension.FindStringSubmatch(name); m != nil {
		name = m[1]
		meta.Extension = strings.TrimSpace(m[2])
	}
	if name == "" || !isUpper(name) {
		return Classification{}, false
	}
	return Classification{Type: Character, Content: name, Meta: meta}, true
}

func matchParenthetical(line string, ctx Context) (Classification, bool) {
	if ctx.Prev != Character && ctx.Prev != Dialogue {
		return Classification{}, false
	}
	if strings.HasPrefix(line, "(") && strings.HasSuffix(line, ")") {
		return Classification{Type: Parenthetical, Content: line}, true
	}
	return Classification{}, false
}

func matchDialogue(line string, ctx Context) (Classification, bool) {
	switch ctx.Prev {
	case Character, Parenthetical, Dialogue:
		return Classification{Type: Dialogue, Content: line}, true
	}
	return Classification{}, false
}

func matchAction(line string, _ Context) (Classification, bool) {
	return Classification{Type: Action, Content: line}, true
}

// isUpper reports whether s has at least one letter and no lower-case letters.
func isUpper(s string) bool {
	letter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letter = true
		}
	}
	return letter
}
