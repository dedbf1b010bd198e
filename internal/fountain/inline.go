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

// markerPair is one matched emphasis pair in raw text: the opening marker starts
// at open, the closing marker at close, both width bytes wide.
type markerPair struct {
	kind  FormatKind
	open  int
	close int
	width int
}

// FormatInline strips emphasis markers from raw and returns the plain text with
// spans pointing into it.
//   - **bold** is matched first, then *italic* over the remaining stars, then _underline_.
//   - Matching is left to right and non-greedy.
//   - A marker without a partner stays in the text as a literal character.
//   - ***x*** yields Bold and Italic spans with identical offsets.
func FormatInline(raw string) (string, []FormatSpan) {
	if !strings.ContainsAny(raw, "*_") {
		return raw, nil
	}
	used := make([]bool, len(raw))
	var pairs []markerPair
	pairs = append(pairs, matchPairs(raw, used, "**", Bold)...)
	pairs = append(pairs, matchPairs(raw, used, "*", Italic)...)
	pairs = append(pairs, matchPairs(raw, used, "_", Underline)...)
	if len(pairs) == 0 {
		return raw, nil
	}

	// A pair whose content collapses to nothing once the other markers are gone
	// is released back to literal text. Releasing only grows the content of the
	// pairs that stay, so one pass settles it.
	offs := plainOffsets(used)
	kept := pairs[:0]
	released := false
	for _, p := range pairs {
		if offs[p.open+p.width] >= offs[p.close] {
			for i := 0; i < p.width; i++ {
				used[p.open+i] = false
				used[p.close+i] = false
			}
			released = true
			continue
		}
		kept = append(kept, p)
	}
	pairs = kept
	if released {
		offs = plainOffsets(used)
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if !used[i] {
			b.WriteByte(raw[i])
		}
	}
	spans := make([]FormatSpan, 0, len(pairs))
	for _, p := range pairs {
		spans = append(spans, FormatSpan{Kind: p.kind, Start: offs[p.open+p.width], End: offs[p.close]})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].Kind < spans[j].Kind
	})
	if len(spans) == 0 {
		spans = nil
	}
	return b.String(), spans
}

// matchPairs pairs unused occurrences of marker left to right. Content between the
// two markers must hold at least one byte that is not a marker character.
// Runs in one forward sweep: once an opener finds no partner, no later one can.
func matchPairs(raw string, used []bool, marker string, kind FormatKind) []markerPair {
	var out []markerPair
	w := len(marker)
	ch := marker[0]
	at := func(i int) bool {
		if i < 0 || i+w > len(raw) {
			return false
		}
		for k := 0; k < w; k++ {
			if raw[i+k] != ch || used[i+k] {
				return false
			}
		}
		return true
	}
	for i := 0; i < len(raw); i++ {
		if !at(i) {
			continue
		}
		// First content byte after the opener; a closer must start past it.
		content := i + w
		for content < len(raw) && raw[content] == ch {
			content++
		}
		closeAt := -1
		for j := content + 1; j+w <= len(raw); j++ {
			if at(j) {
				closeAt = j
				break
			}
		}
		if closeAt < 0 {
			break
		}
		for k := 0; k < w; k++ {
			used[i+k] = true
			used[closeAt+k] = true
		}
		out = append(out, markerPair{kind: kind, open: i, close: closeAt, width: w})
		i = closeAt + w - 1
	}
	return out
}

// plainOffsets maps every raw byte index (and len(raw)) to the number of
// unused bytes before it, i.e. its position in the stripped text.
func plainOffsets(used []bool) []int {
	offs := make([]int, len(used)+1)
	n := 0
	for i, u := range used {
		offs[i] = n
		if !u {
			n++
		}
	}
	offs[len(used)] = n
	return offs
}
