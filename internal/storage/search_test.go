/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSearchWithFilters(t *testing.T) {
	lib := newTestLibrary(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	one := writeScript(t, lib, "one.fountain", sampleScript)
	two := writeScript(t, lib, "two.fountain", "EXT. BEACH - DAY\n\nWaves crash on the shore.\n\nBRICK\nHello, ocean.\n")
	if _, err := IndexScripts(ctx, lib, []string{one, two}); err != nil {
		t.Fatalf("IndexScripts: %v", err)
	}

	res, err := Search(ctx, lib.Root, SearchQuery{Text: "hello"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 hello hits, got %d: %+v", len(res), res)
	}
	if res[0].Path != "one.fountain" || res[0].Type != "dialogue" || res[0].Character != "BRICK" || res[0].Scene != "EXT. PATIO - DAY" {
		t.Fatalf("unexpected first hit: %+v", res[0])
	}
	if !strings.Contains(res[0].Snippet, "[Hello]") {
		t.Fatalf("snippet lacks highlight: %q", res[0].Snippet)
	}

	// Types filter
	res, err = Search(ctx, lib.Root, SearchQuery{Text: "waves", Types: []string{"action"}})
	if err != nil {
		t.Fatalf("Search types: %v", err)
	}
	if len(res) != 1 || res[0].Path != "two.fountain" {
		t.Fatalf("types filter failed: %+v", res)
	}

	// Character filter without text: every line spoken by steel
	res, err = Search(ctx, lib.Root, SearchQuery{Character: "steel", Types: []string{"dialogue", "parenthetical"}})
	if err != nil {
		t.Fatalf("Search character: %v", err)
	}
	if len(res) != 2 || res[0].Type != "parenthetical" || res[1].Snippet != "Goodbye waves." {
		t.Fatalf("character filter failed: %+v", res)
	}

	// Scene filter
	res, err = Search(ctx, lib.Root, SearchQuery{Scene: "garage"})
	if err != nil {
		t.Fatalf("Search scene: %v", err)
	}
	for _, r := range res {
		if r.Scene != "INT. GARAGE - NIGHT" {
			t.Fatalf("scene filter leaked %+v", r)
		}
	}
	if len(res) != 4 {
		t.Fatalf("expected heading plus 3 elements in the garage, got %d", len(res))
	}

	// Script filter and pagination
	res, err = Search(ctx, lib.Root, SearchQuery{ScriptID: ScriptID("two.fountain"), Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Search script: %v", err)
	}
	if len(res) != 1 || res[0].Seq != 1 || res[0].Path != "two.fountain" {
		t.Fatalf("pagination failed: %+v", res)
	}
}

func TestSearchRequiresRoot(t *testing.T) {
	if _, err := Search(context.Background(), " ", SearchQuery{Text: "x"}); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func BenchmarkSearchFTS(b *testing.B) {
	lib, err := InitLibrary(b.TempDir(), "Bench")
	if err != nil {
		b.Fatalf("InitLibrary: %v", err)
	}
	p := lib.AbsPath("bench.fountain")
	if err := writeFileSync(p, []byte(sampleScript)); err != nil {
		b.Fatalf("write: %v", err)
	}
	ctx := context.Background()
	if _, _, err := IndexScript(ctx, lib, p); err != nil {
		b.Fatalf("IndexScript: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Search(ctx, lib.Root, SearchQuery{Text: "Hello"}); err != nil {
			b.Fatalf("Search: %v", err)
		}
	}
}
