/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"reflect"
	"testing"
)

func TestExtractTitlePage(t *testing.T) {
	cases := []struct {
		name     string
		lines    []string
		meta     map[string]string
		consumed int
	}{
		{"none", []string{"INT. HOUSE - DAY"}, map[string]string{}, 0},
		{"empty", []string{""}, map[string]string{}, 0},
		{"simple", []string{"Title: A", "Author: B", "", "x"}, map[string]string{"title": "A", "author": "B"}, 2},
		{
			"continuation",
			[]string{"Title:", "   Line one", "\tLine two", "Author: Z"},
			map[string]string{"title": "Line one\nLine two", "author": "Z"},
			4,
		},
		{"transition is not a key", []string{"CUT TO:", "", "INT. HOUSE"}, map[string]string{}, 0},
		{"duplicate keeps last", []string{"Title: A", "title: B"}, map[string]string{"title": "B"}, 2},
		{"mixed case key", []string{"Draft  Date: 1/1/2025"}, map[string]string{"draft date": "1/1/2025"}, 1},
		{"stops at body line", []string{"Title: A", "Some action."}, map[string]string{"title": "A"}, 1},
		{"indent without key", []string{"  indented", "Title: A"}, map[string]string{}, 0},
		{
			"blank line between keys",
			[]string{"Title: X", "", "Author: Y", "", "INT. HOUSE - DAY"},
			map[string]string{"title": "X", "author": "Y"},
			3,
		},
		{
			"blank run then continuation key",
			[]string{"Title: X", "", "", "Credit:", "  written by", "", "FADE IN:"},
			map[string]string{"title": "X", "credit": "written by"},
			5,
		},
		{"blank then transition", []string{"Title: X", "", "CUT TO:"}, map[string]string{"title": "X"}, 1},
		{"trailing blanks", []string{"Title: X", "", ""}, map[string]string{"title": "X"}, 1},
		{"blank then indented", []string{"Title: X", "", "  stray"}, map[string]string{"title": "X"}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, consumed := ExtractTitlePage(tc.lines)
			if consumed != tc.consumed {
				t.Fatalf("consumed = %d, want %d", consumed, tc.consumed)
			}
			if !reflect.DeepEqual(meta, tc.meta) {
				t.Fatalf("meta = %#v, want %#v", meta, tc.meta)
			}
		})
	}
}

func TestParseTitlePageThenBody(t *testing.T) {
	doc := Parse("Title: A\nSome action.")
	if doc.Title() != "A" {
		t.Fatalf("title = %q", doc.Title())
	}
	if doc.Len() != 1 || doc.At(0).Type != Action || doc.At(0).LineNumber != 2 {
		t.Fatalf("unexpected elements: %+v", doc.Elements())
	}
}

func TestParseTitlePageAcrossBlankLines(t *testing.T) {
	doc := Parse("Title: X\n\nAuthor: Y\n\nINT. HOUSE - DAY\n")
	if doc.Title() != "X" || doc.Metadata()["author"] != "Y" {
		t.Fatalf("metadata = %#v", doc.Metadata())
	}
	if doc.Len() != 1 || doc.At(0).Type != SceneHeading || doc.At(0).LineNumber != 5 {
		t.Fatalf("unexpected elements: %+v", doc.Elements())
	}
}
