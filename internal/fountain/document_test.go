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

func TestDocumentQueries(t *testing.T) {
	doc := Parse(sampleScript)
	if got, want := doc.Characters(), []string{"BRICK", "STEEL"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Characters = %v, want %v", got, want)
	}
	if got, want := doc.Scenes(), []string{"EXT. BRICK'S PATIO - DAY"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Scenes = %v, want %v", got, want)
	}
	stats := doc.Statistics()
	if stats["total_elements"] != doc.Len() || stats["characters"] != 2 || stats["scenes"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
	if stats["transition_count"] != 3 || stats["dialogue_count"] != 2 || stats["title_page_count"] != 0 {
		t.Fatalf("unexpected per-type counts: %v", stats)
	}
	sum := 0
	for _, et := range ElementTypes {
		sum += stats[et.String()+"_count"]
	}
	if sum != doc.Len() {
		t.Fatalf("per-type counts sum to %d, want %d", sum, doc.Len())
	}
	if got := doc.SpeakerAt(5); got != "BRICK" {
		t.Fatalf("SpeakerAt(5) = %q", got)
	}
	if got := doc.SpeakerAt(2); got != "" {
		t.Fatalf("SpeakerAt(action) = %q", got)
	}
	if got := doc.SpeakerAt(-1); got != "" {
		t.Fatalf("SpeakerAt(-1) = %q", got)
	}
	if got := doc.SceneAt(0); got != "" {
		t.Fatalf("SceneAt(before first scene) = %q", got)
	}
	for _, i := range []int{1, 5, doc.Len() - 1} {
		if got := doc.SceneAt(i); got != "EXT. BRICK'S PATIO - DAY" {
			t.Fatalf("SceneAt(%d) = %q", i, got)
		}
	}
}

func TestCueName(t *testing.T) {
	for in, want := range map[string]string{
		"BRICK":     "BRICK",
		" steel ^ ": "STEEL",
		"McCLANE":   "MCCLANE",
		"":          "",
	} {
		if got := CueName(in); got != want {
			t.Fatalf("CueName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDocumentAccessorsReturnCopies(t *testing.T) {
	doc := Parse("Title: T\n\nJOHN\n**Hi**")
	els := doc.Elements()
	els[1].Text = "changed"
	els[1].Formatting[0].End = 99
	md := doc.Metadata()
	md["title"] = "changed"

	if doc.At(1).Text != "Hi" || doc.At(1).Formatting[0].End != 2 {
		t.Fatalf("document mutated through Elements(): %+v", doc.At(1))
	}
	if doc.Title() != "T" {
		t.Fatalf("document mutated through Metadata(): %q", doc.Title())
	}
}

func TestNewDocumentNormalizesKeys(t *testing.T) {
	doc := NewDocument([]Element{{Type: Action, Text: "x", LineNumber: 1}}, map[string]string{"Draft  Date": "now"})
	if v, ok := doc.Meta("DRAFT DATE"); !ok || v != "now" {
		t.Fatalf("Meta lookup = %q %v", v, ok)
	}
	if doc.Len() != 1 {
		t.Fatalf("Len = %d", doc.Len())
	}
}

func TestElementTypeText(t *testing.T) {
	for _, et := range ElementTypes {
		b, err := et.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", et, err)
		}
		var back ElementType
		if err := back.UnmarshalText(b); err != nil || back != et {
			t.Fatalf("UnmarshalText(%s) = %v, %v", b, back, err)
		}
	}
	if _, err := ElementType(0).MarshalText(); err == nil {
		t.Fatalf("zero element type must not marshal")
	}
	if _, err := ParseElementType("SCENE_HEADING"); err != nil {
		t.Fatalf("ParseElementType should be case-insensitive: %v", err)
	}
}
