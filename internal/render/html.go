/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render turns parsed documents into HTML and JSON.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"gofountain/internal/fountain"
)

//go:embed themes/*.css
var themeFS embed.FS

// ErrUnknownTheme is returned when HTMLOptions.Theme names no embedded stylesheet.
var ErrUnknownTheme = errors.New("unknown theme")

// HTMLOptions controls HTML output.
type HTMLOptions struct {
	Theme            string // embedded stylesheet name, see Themes
	IncludeCSS       bool
	IncludeTitlePage bool
	IncludeBoneyard  bool // boneyard divs are still hidden by the stylesheet
	IncludeNotes     bool
	SceneAnchors     bool // give scene headings an id built from their text
	Standalone       bool // wrap the fragment in a full <html> document
}

// DefaultHTMLOptions returns the settings used when nothing is configured.
func DefaultHTMLOptions() HTMLOptions {
	return HTMLOptions{
		Theme:            "default",
		IncludeCSS:       true,
		IncludeTitlePage: true,
		IncludeBoneyard:  true,
		IncludeNotes:     true,
		SceneAnchors:     true,
	}
}

// Themes lists the embedded stylesheet names.
func Themes() []string {
	entries, err := themeFS.ReadDir("themes")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".css"))
	}
	sort.Strings(out)
	return out
}

// ThemeCSS returns the stylesheet for the named theme; "" selects "default".
func ThemeCSS(name string) (string, error) {
	if name == "" {
		name = "default"
	}
	if strings.ContainsAny(name, "/\\.") {
		return "", fmt.Errorf("%w: %q", ErrUnknownTheme, name)
	}
	b, err := themeFS.ReadFile("themes/" + name + ".css")
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTheme, name)
	}
	return string(b), nil
}

// HTML writes doc as HTML to w.
func HTML(w io.Writer, doc *fountain.Document, opt HTMLOptions) error {
	nodes, err := buildHTML(doc, opt)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("render html: %w", err)
		}
	}
	return nil
}

// HTMLString is HTML into a string.
func HTMLString(doc *fountain.Document, opt HTMLOptions) (string, error) {
	var buf bytes.Buffer
	if err := HTML(&buf, doc, opt); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildHTML(doc *fountain.Document, opt HTMLOptions) ([]*html.Node, error) {
	var style *html.Node
	if opt.IncludeCSS {
		css, err := ThemeCSS(opt.Theme)
		if err != nil {
			return nil, err
		}
		style = newElem(atom.Style, "")
		style.AppendChild(newText(css))
	}

	r := &htmlRenderer{opt: opt, anchors: map[string]int{}}
	script := newElem(atom.Div, "fountain-script")
	if md := doc.Metadata(); opt.IncludeTitlePage && len(md) > 0 {
		script.AppendChild(titlePage(md))
	}
	script.AppendChild(r.body(doc.Elements()))

	if !opt.Standalone {
		if style != nil {
			return []*html.Node{style, script}, nil
		}
		return []*html.Node{script}, nil
	}

	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	htmlEl := newElem(atom.Html, "")
	head := newElem(atom.Head, "")
	charset := newElem(atom.Meta, "")
	charset.Attr = append(charset.Attr, html.Attribute{Key: "charset", Val: "utf-8"})
	head.AppendChild(charset)
	title := newElem(atom.Title, "")
	t := doc.Title()
	if t == "" {
		t = "Screenplay"
	}
	title.AppendChild(newText(strings.ReplaceAll(t, "\n", " ")))
	head.AppendChild(title)
	if style != nil {
		head.AppendChild(style)
	}
	bodyEl := newElem(atom.Body, "")
	bodyEl.AppendChild(script)
	htmlEl.AppendChild(head)
	htmlEl.AppendChild(bodyEl)
	root.AppendChild(htmlEl)
	return []*html.Node{root}, nil
}

type titleField struct {
	key, class, label string
}

// Title page keys in display order. title and author are handled separately.
var titleFields = []titleField{
	{"credit", "credit", ""},
	{"source", "source", ""},
	{"writers", "writers", "Writers: "},
	{"producer", "producer", "Producer: "},
	{"director", "director", "Director: "},
	{"draft date", "draft-date", ""},
	{"date", "date", ""},
	{"revised", "revised", "Revised: "},
	{"version", "version", "Version: "},
	{"format", "format", "Format: "},
	{"created", "created", "Created: "},
	{"contact", "contact", ""},
	{"copyright", "copyright", ""},
	{"notes", "notes", ""},
}

func titlePage(md map[string]string) *html.Node {
	div := newElem(atom.Div, "title-page")
	done := map[string]bool{"title": true, "author": true, "authors": true}
	if v, ok := md["title"]; ok {
		h := newElem(atom.H1, "title")
		appendText(h, v, false)
		div.AppendChild(h)
	}
	author, ok := md["author"]
	if !ok {
		author, ok = md["authors"]
	}
	if ok {
		p := newElem(atom.P, "author")
		appendText(p, "by "+author, false)
		div.AppendChild(p)
	}
	for _, f := range titleFields {
		done[f.key] = true
		v, ok := md[f.key]
		if !ok {
			continue
		}
		p := newElem(atom.P, f.class)
		appendText(p, f.label+v, false)
		div.AppendChild(p)
	}

	var rest []string
	for k := range md {
		if !done[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		p := newElem(atom.P, "meta-"+slug.Make(k))
		appendText(p, k+": "+md[k], false)
		div.AppendChild(p)
	}
	return div
}

type htmlRenderer struct {
	opt     HTMLOptions
	anchors map[string]int // issued id -> last suffix tried for it
}

// body renders the element sequence. A dialogue block whose cue carries the dual
// marker is paired with the block right before it into two columns.
func (r *htmlRenderer) body(els []fountain.Element) *html.Node {
	body := newElem(atom.Div, "script-body")
	var last []*html.Node
	for i := 0; i < len(els); {
		e := els[i]
		if e.Type != fountain.Character {
			if n := r.element(e); n != nil {
				body.AppendChild(n)
				last = nil
			}
			i++
			continue
		}
		j := i + 1
		for j < len(els) && (els[j].Type == fountain.Dialogue || els[j].Type == fountain.Parenthetical) {
			j++
		}
		block := make([]*html.Node, 0, j-i)
		for _, be := range els[i:j] {
			block = append(block, r.element(be))
		}
		if e.Meta.Dual && last != nil {
			dual := newElem(atom.Div, "dual-dialogue")
			left := newElem(atom.Div, "dual-dialogue-left")
			right := newElem(atom.Div, "dual-dialogue-right")
			for _, n := range last {
				body.RemoveChild(n)
				left.AppendChild(n)
			}
			for _, n := range block {
				right.AppendChild(n)
			}
			dual.AppendChild(left)
			dual.AppendChild(right)
			body.AppendChild(dual)
			last = nil
		} else {
			for _, n := range block {
				body.AppendChild(n)
			}
			last = block
		}
		i = j
	}
	return body
}

// element returns nil for elements the options leave out.
func (r *htmlRenderer) element(e fountain.Element) *html.Node {
	switch {
	case e.Type == fountain.Boneyard && !r.opt.IncludeBoneyard:
		return nil
	case e.Type == fountain.Note && !r.opt.IncludeNotes:
		return nil
	}

	class := className(e.Type)
	if e.Type == fountain.Transition && e.Meta.Centered {
		class += " centered"
	}
	div := newElem(atom.Div, class)
	switch e.Type {
	case fountain.SceneHeading:
		if r.opt.SceneAnchors {
			div.Attr = append(div.Attr, html.Attribute{Key: "id", Val: r.anchor(e.Text)})
		}
		appendFormatted(div, e.Text, e.Formatting, false)
		if n := e.Meta.SceneNumber; n != "" {
			div.AppendChild(newText(" "))
			span := newElem(atom.Span, "scene-number")
			span.AppendChild(newText("#" + n + "#"))
			div.AppendChild(span)
		}
	case fountain.Character:
		appendFormatted(div, e.Text, e.Formatting, false)
		if x := e.Meta.Extension; x != "" {
			div.AppendChild(newText(" "))
			span := newElem(atom.Span, "character-extension")
			span.AppendChild(newText("(" + x + ")"))
			div.AppendChild(span)
		}
	case fountain.Section:
		div.Attr = append(div.Attr, html.Attribute{Key: "data-depth", Val: strconv.Itoa(max(e.Meta.Depth, 1))})
		appendFormatted(div, e.Text, e.Formatting, false)
	case fountain.Action:
		appendFormatted(div, e.Text, e.Formatting, true)
	default:
		appendFormatted(div, e.Text, e.Formatting, false)
	}
	return div
}

// anchor builds a unique id for a scene heading.
func (r *htmlRenderer) anchor(text string) string {
	base := slug.Make(text)
	if base == "" {
		base = "untitled"
	}
	id := "scene-" + base
	n, taken := r.anchors[id]
	if !taken {
		r.anchors[id] = 1
		return id
	}
	// A heading may already end in "-2", so keep counting until the id is free.
	for {
		n++
		cand := id + "-" + strconv.Itoa(n)
		if _, taken := r.anchors[cand]; !taken {
			r.anchors[id] = n
			r.anchors[cand] = 1
			return cand
		}
	}
}

// SceneAnchor is the id HTML gives a scene heading.
type SceneAnchor struct {
	ID    string
	Title string
	Index int // element index in the document
}

// SceneAnchors returns the ids HTML assigns to scene headings when
// HTMLOptions.SceneAnchors is set, in document order.
func SceneAnchors(doc *fountain.Document) []SceneAnchor {
	r := &htmlRenderer{anchors: map[string]int{}}
	var out []SceneAnchor
	for i, e := range doc.Elements() {
		if e.Type == fountain.SceneHeading {
			out = append(out, SceneAnchor{ID: r.anchor(e.Text), Title: e.Text, Index: i})
		}
	}
	return out
}

func className(t fountain.ElementType) string {
	return strings.ReplaceAll(t.String(), "_", "-")
}

var formatTags = []struct {
	kind fountain.FormatKind
	tag  atom.Atom
}{
	{fountain.Bold, atom.Strong},
	{fountain.Italic, atom.Em},
	{fountain.Underline, atom.U},
}

// appendFormatted cuts s at every span boundary and wraps each piece in the tags
// of the spans covering it, strong outside em outside u. Overlapping spans thus
// always produce well-nested markup.
func appendFormatted(parent *html.Node, s string, spans []fountain.FormatSpan, tabs bool) {
	if len(spans) == 0 {
		appendText(parent, s, tabs)
		return
	}
	cuts := []int{0, len(s)}
	for _, sp := range spans {
		cuts = append(cuts, clamp(sp.Start, len(s)), clamp(sp.End, len(s)))
	}
	sort.Ints(cuts)
	for i := 0; i+1 < len(cuts); i++ {
		a, b := cuts[i], cuts[i+1]
		if a == b {
			continue
		}
		target := parent
		for _, ft := range formatTags {
			if covered(spans, ft.kind, a, b) {
				w := newElem(ft.tag, "")
				target.AppendChild(w)
				target = w
			}
		}
		appendText(target, s[a:b], tabs)
	}
}

func covered(spans []fountain.FormatSpan, k fountain.FormatKind, a, b int) bool {
	for _, sp := range spans {
		if sp.Kind == k && sp.Start <= a && sp.End >= b {
			return true
		}
	}
	return false
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

const nbsp4 = "\u00a0\u00a0\u00a0\u00a0"

// appendText adds s to parent, turning newlines into <br> and, for action, tabs
// into non-breaking spaces.
func appendText(parent *html.Node, s string, tabs bool) {
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			parent.AppendChild(newElem(atom.Br, ""))
		}
		if tabs {
			line = strings.ReplaceAll(line, "\t", nbsp4)
		}
		if line != "" {
			parent.AppendChild(newText(line))
		}
	}
}

func newElem(a atom.Atom, class string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	if class != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: class})
	}
	return n
}

func newText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
