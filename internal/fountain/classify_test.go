/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import "testing"

func TestClassify(t *testing.T) {
	afterBlank := Context{BlankBefore: true}
	inDialogue := Context{Prev: Character}
	cases := []struct {
		name    string
		line    string
		ctx     Context
		typ     ElementType
		content string
		meta    Meta
	}{
		{"scene heading", "INT. HOUSE - DAY", Context{}, SceneHeading, "INT. HOUSE - DAY", Meta{}},
		{"lower scene heading", "ext. park - night", Context{}, SceneHeading, "ext. park - night", Meta{}},
		{"int/ext", "INT./EXT. CAR - MOVING", Context{}, SceneHeading, "INT./EXT. CAR - MOVING", Meta{}},
		{"scene number", "INT. HOUSE #12A#", Context{}, SceneHeading, "INT. HOUSE", Meta{SceneNumber: "12A"}},
		{"forced scene", ".FLASHBACK", Context{}, SceneHeading, "FLASHBACK", Meta{}},
		{"ellipsis is action", "...and then", Context{}, Action, "...and then", Meta{}},
		{"scene beats transition", "INT. LAB - CUT TO:", Context{}, SceneHeading, "INT. LAB - CUT TO:", Meta{}},
		{"forced transition", "> BURN TO WHITE.", Context{}, Transition, "BURN TO WHITE.", Meta{}},
		{"centered", ">THE END<", Context{}, Transition, "THE END", Meta{Centered: true}},
		{"transition", "CUT TO:", Context{}, Transition, "CUT TO:", Meta{}},
		{"fade in", "FADE IN:", Context{}, Transition, "FADE IN:", Meta{}},
		{"lower transition", "Cut to:", Context{}, Action, "Cut to:", Meta{}},
		{"section", "## Sub", Context{}, Section, "Sub", Meta{Depth: 2}},
		{"synopsis", "= what happens", Context{}, Synopsis, "what happens", Meta{}},
		{"character", "JOHN", afterBlank, Character, "JOHN", Meta{}},
		{"first line character", "JOHN", Context{First: true}, Character, "JOHN", Meta{}},
		{"character extension dual", "MARY (O.S.) ^", afterBlank, Character, "MARY", Meta{Extension: "O.S.", Dual: true}},
		{"character alone", "JOHN", Context{BlankBefore: true, NextBlank: true}, Action, "JOHN", Meta{}},
		{"character mid block", "JOHN", Context{}, Action, "JOHN", Meta{}},
		{"parenthetical", "(beat)", inDialogue, Parenthetical, "(beat)", Meta{}},
		{"parenthetical after dialogue", "(beat)", Context{Prev: Dialogue}, Parenthetical, "(beat)", Meta{}},
		{"stray parenthetical", "(beat)", Context{}, Action, "(beat)", Meta{}},
		{"dialogue", "Hello there.", inDialogue, Dialogue, "Hello there.", Meta{}},
		{"dialogue after paren", "Hello.", Context{Prev: Parenthetical}, Dialogue, "Hello.", Meta{}},
		{"boneyard", "/* x */", Context{}, Boneyard, "x", Meta{}},
		{"note", "[[note]]", Context{}, Note, "note", Meta{}},
		{"inline note", "[[a]] trailing", Context{}, Action, "[[a]] trailing", Meta{}},
		{"action", "He walks in.", Context{}, Action, "He walks in.", Meta{}},
		{"trimmed", "   He walks in.  ", Context{}, Action, "He walks in.", Meta{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Classify(tc.line, tc.ctx)
			if c.Type != tc.typ || c.Content != tc.content || c.Meta != tc.meta {
				t.Fatalf("Classify(%q) = %v %q %+v, want %v %q %+v", tc.line, c.Type, c.Content, c.Meta, tc.typ, tc.content, tc.meta)
			}
			if c.Open || c.PageBreak {
				t.Fatalf("unexpected flags: %+v", c)
			}
		})
	}
}

func TestClassifyBlankAndSpecialLines(t *testing.T) {
	if c := Classify("   ", Context{}); c != (Classification{}) {
		t.Fatalf("blank line classified as %+v", c)
	}
	if c := Classify("===", Context{}); !c.PageBreak {
		t.Fatalf("=== should be a page break: %+v", c)
	}
	if c := Classify("/* open", Context{}); c.Type != Boneyard || !c.Open {
		t.Fatalf("unterminated boneyard: %+v", c)
	}
	if c := Classify("[[ open", Context{}); c.Type != Note || !c.Open {
		t.Fatalf("unterminated note: %+v", c)
	}
	c := Classify("/* gone */ kept", Context{})
	if c.Type != Boneyard || c.Content != "gone" || c.Rest != "kept" {
		t.Fatalf("boneyard with rest: %+v", c)
	}
}

func TestClassifyIsPure(t *testing.T) {
	ctx := Context{BlankBefore: true}
	a := Classify("MARY (V.O.)", ctx)
	b := Classify("MARY (V.O.)", ctx)
	if a != b {
		t.Fatalf("classification differs between calls: %+v vs %+v", a, b)
	}
}
