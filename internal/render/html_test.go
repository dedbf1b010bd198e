/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gosimple/slug"
	"golang.org/x/net/html"

	"gofountain/internal/fountain"
)

func mustHTML(t *testing.T, doc *fountain.Document, opt HTMLOptions) string {
	t.Helper()
	out, err := HTMLString(doc, opt)
	if err != nil {
		t.Fatalf("HTMLString: %v", err)
	}
	return out
}

func contains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Fatalf("output does not contain %q:\n%s", w, out)
		}
	}
}

func TestHTMLSimpleDocument(t *testing.T) {
	doc := fountain.NewDocument([]fountain.Element{
		{Type: fountain.SceneHeading, Text: "INT. HOUSE - DAY", LineNumber: 1},
		{Type: fountain.Character, Text: "JOHN", LineNumber: 2},
		{Type: fountain.Dialogue, Text: "Hello, world!", LineNumber: 3},
	}, map[string]string{"title": "Test Script", "author": "Test Author"})

	out := mustHTML(t, doc, DefaultHTMLOptions())
	contains(t, out,
		"<style>",
		`<div class="fountain-script">`,
		`<div class="title-page">`,
		`<h1 class="title">Test Script</h1>`,
		`<p class="author">by Test Author</p>`,
		`<div class="scene-heading" id="scene-`+slug.Make("INT. HOUSE - DAY")+`">INT. HOUSE - DAY</div>`,
		`<div class="character">JOHN</div>`,
		`<div class="dialogue">Hello, world!</div>`,
	)
}

func TestHTMLFormattingIsNested(t *testing.T) {
	doc := fountain.Parse("JOHN\nThe **parser** works!")
	out := mustHTML(t, doc, HTMLOptions{})
	contains(t, out, `<div class="dialogue">The <strong>parser</strong> works!</div>`)

	overlap := fountain.NewDocument([]fountain.Element{{
		Type:       fountain.Action,
		Text:       "abcdef",
		LineNumber: 1,
		Formatting: []fountain.FormatSpan{
			{Kind: fountain.Bold, Start: 0, End: 4},
			{Kind: fountain.Italic, Start: 2, End: 6},
		},
	}}, nil)
	out = mustHTML(t, overlap, HTMLOptions{})
	contains(t, out, `<strong>ab</strong><strong><em>cd</em></strong><em>ef</em>`)

	both := fountain.Parse("***x***")
	contains(t, mustHTML(t, both, HTMLOptions{}), `<strong><em>x</em></strong>`)
}

func TestHTMLEscaping(t *testing.T) {
	doc := fountain.NewDocument([]fountain.Element{
		{Type: fountain.Action, Text: `Text with <tags> & "quotes"`, LineNumber: 1},
	}, map[string]string{"title": "<b>"})
	out := mustHTML(t, doc, HTMLOptions{IncludeTitlePage: true})
	contains(t, out, "&lt;tags&gt;", "&amp;", "&#34;quotes&#34;", "&lt;b&gt;")
	if strings.Contains(out, "<tags>") || strings.Contains(out, "<b>") {
		t.Fatalf("unescaped markup in output:\n%s", out)
	}
}

func TestHTMLActionLineBreaksAndTabs(t *testing.T) {
	doc := fountain.NewDocument([]fountain.Element{
		{Type: fountain.Action, Text: "He stands up.\nHis coffee spills.", LineNumber: 1},
		{Type: fountain.Action, Text: "\tIndented.", LineNumber: 3},
		{Type: fountain.Action, Text: "She sits down.", LineNumber: 4},
	}, nil)
	out := mustHTML(t, doc, HTMLOptions{})
	contains(t, out,
		`<div class="action">He stands up.<br/>His coffee spills.</div>`,
		`<div class="action">`+nbsp4+`Indented.</div>`,
		`<div class="action">She sits down.</div>`,
	)
}

func TestHTMLMetaSpans(t *testing.T) {
	doc := fountain.Parse("EXT. PATIO - DAY #1#\n\nBRICK (V.O.)\nHello.\n\n> THE END <")
	out := mustHTML(t, doc, HTMLOptions{})
	contains(t, out,
		`EXT. PATIO - DAY <span class="scene-number">#1#</span>`,
		`BRICK <span class="character-extension">(V.O.)</span>`,
		`<div class="transition centered">THE END</div>`,
	)
}

func TestHTMLOptionsFilterAndTitlePage(t *testing.T) {
	doc := fountain.Parse("Title: T\nContact:\n    line one\n    line two\n\nAction.\n/* gone */\n[[memo]]")
	out := mustHTML(t, doc, HTMLOptions{IncludeTitlePage: true})
	if strings.Contains(out, "boneyard") || strings.Contains(out, `class="note"`) || strings.Contains(out, "<style>") {
		t.Fatalf("excluded content rendered:\n%s", out)
	}
	contains(t, out, `<p class="contact">line one<br/>line two</p>`)

	out = mustHTML(t, doc, HTMLOptions{IncludeBoneyard: true, IncludeNotes: true})
	contains(t, out, `<div class="boneyard">gone</div>`, `<div class="note">memo</div>`)
	if strings.Contains(out, "title-page") {
		t.Fatalf("title page rendered although disabled")
	}
}

func TestHTMLUnknownTheme(t *testing.T) {
	_, err := HTMLString(fountain.Parse("x"), HTMLOptions{IncludeCSS: true, Theme: "neon"})
	if !errors.Is(err, ErrUnknownTheme) {
		t.Fatalf("expected ErrUnknownTheme, got %v", err)
	}
	for _, name := range Themes() {
		if _, err := ThemeCSS(name); err != nil {
			t.Fatalf("ThemeCSS(%s): %v", name, err)
		}
	}
	if len(Themes()) < 2 {
		t.Fatalf("expected at least two themes, got %v", Themes())
	}
}

func TestHTMLSceneAnchorsAreUnique(t *testing.T) {
	doc := fountain.Parse("INT. HOUSE - DAY\n\nAction.\n\nINT. HOUSE - DAY")
	out := mustHTML(t, doc, HTMLOptions{SceneAnchors: true})
	id := "scene-" + slug.Make("INT. HOUSE - DAY")
	contains(t, out, `id="`+id+`"`, `id="`+id+`-2"`)
}

func TestSceneAnchorsSkipIDsAlreadyIssued(t *testing.T) {
	doc := fountain.Parse("INT. A 2\n\nINT. A\n\nINT. A\n\nINT. A 2\n")
	anchors := SceneAnchors(doc)
	if len(anchors) != 4 {
		t.Fatalf("got %d anchors, want 4", len(anchors))
	}
	want := []string{"scene-int-a-2", "scene-int-a", "scene-int-a-3", "scene-int-a-2-2"}
	seen := map[string]bool{}
	for i, a := range anchors {
		if a.ID != want[i] {
			t.Fatalf("anchor %d = %q, want %q", i, a.ID, want[i])
		}
		if seen[a.ID] {
			t.Fatalf("duplicate anchor %q", a.ID)
		}
		seen[a.ID] = true
	}
	out := mustHTML(t, doc, HTMLOptions{SceneAnchors: true})
	for _, id := range want {
		if strings.Count(out, `id="`+id+`"`) != 1 {
			t.Fatalf("id %q not issued exactly once:\n%s", id, out)
		}
	}
}

func TestHTMLDualDialogue(t *testing.T) {
	doc := fountain.Parse("BRICK\nHi.\n\nSTEEL ^\nHello.")
	out := mustHTML(t, doc, HTMLOptions{})
	root, err := html.Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("html.Parse: %v", err)
	}
	dual := findClass(root, "dual-dialogue")
	if dual == nil {
		t.Fatalf("no dual-dialogue block:\n%s", out)
	}
	left := findClass(dual, "dual-dialogue-left")
	right := findClass(dual, "dual-dialogue-right")
	if left == nil || right == nil {
		t.Fatalf("dual block lacks columns:\n%s", out)
	}
	if got := textOf(findClass(left, "character")); got != "BRICK" {
		t.Fatalf("left cue = %q", got)
	}
	if got := textOf(findClass(right, "character")); got != "STEEL" {
		t.Fatalf("right cue = %q", got)
	}
}

func TestHTMLStandaloneParses(t *testing.T) {
	doc := fountain.Parse("Title: Brick & Steel\n\nINT. HOUSE - DAY\n\nJOHN\n(beat)\nHi.")
	opt := DefaultHTMLOptions()
	opt.Standalone = true
	out := mustHTML(t, doc, opt)
	if !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Fatalf("standalone output lacks doctype: %.40s", out)
	}
	contains(t, out, "<title>Brick &amp; Steel</title>")
	root, err := html.Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("html.Parse: %v", err)
	}
	for _, class := range []string{"scene-heading", "character", "parenthetical", "dialogue"} {
		if findClass(root, class) == nil {
			t.Fatalf("no %s element in parsed output", class)
		}
	}
}

func TestRenderJSONAndFormats(t *testing.T) {
	doc := fountain.Parse("Title: T\n\nJOHN\nThe **parser** works!")
	var buf bytes.Buffer
	if err := Render(&buf, doc, FormatJSON, HTMLOptions{}); err != nil {
		t.Fatalf("Render json: %v", err)
	}
	back, err := fountain.FromJSON(buf.Bytes())
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if back.Len() != doc.Len() || back.Title() != "T" {
		t.Fatalf("unexpected round trip: %+v", back.Elements())
	}

	if f, err := ParseFormat(" HTML "); err != nil || f != FormatHTML || f.Ext() != ".html" {
		t.Fatalf("ParseFormat(HTML) = %q, %v", f, err)
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatalf("pdf must be rejected")
	}
}

func findClass(n *html.Node, class string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "class" {
				for _, c := range strings.Fields(a.Val) {
					if c == class {
						return n
					}
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findClass(c, class); f != nil {
			return f
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "span" {
			continue
		}
		b.WriteString(textOf(c))
	}
	return strings.TrimSpace(b.String())
}
