/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func TestParseBytesUTF8BOM(t *testing.T) {
	doc, err := ParseBytes([]byte("\xEF\xBB\xBFINT. HOUSE - DAY"))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if doc.Len() != 1 || doc.At(0).Type != SceneHeading || doc.At(0).Text != "INT. HOUSE - DAY" {
		t.Fatalf("unexpected elements: %+v", doc.Elements())
	}
}

func TestParseBytesUTF16(t *testing.T) {
	for _, order := range []unicode.Endianness{unicode.LittleEndian, unicode.BigEndian} {
		enc := unicode.UTF16(order, unicode.UseBOM).NewEncoder()
		b, err := enc.Bytes([]byte("JOHN\r\nHello there."))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		doc, err := ParseBytes(b)
		if err != nil {
			t.Fatalf("ParseBytes: %v", err)
		}
		if doc.Len() != 2 || doc.At(0).Text != "JOHN" || doc.At(1).Text != "Hello there." {
			t.Fatalf("unexpected elements: %+v", doc.Elements())
		}
	}
}

func TestParseBytesRejectsInvalidInput(t *testing.T) {
	_, err := ParseBytes([]byte("ok\xffbad"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Encoding != "utf-8" || de.Offset != 2 {
		t.Fatalf("unexpected decode error: %#v", err)
	}

	_, err = ParseBytes([]byte{0xFF, 0xFE, 'A'})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for odd UTF-16 input, got %v", err)
	}
}

func TestParseBytesNormalizesNFC(t *testing.T) {
	doc, err := ParseBytes([]byte("Cafe\u0301 opens."))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if got := doc.At(0).Text; got != "Caf\u00e9 opens." {
		t.Fatalf("text not composed: %q", got)
	}
}

func TestParseReaderAndFile(t *testing.T) {
	doc, err := ParseReader(strings.NewReader("Title: R\n\nINT. ROOM - DAY"))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if doc.Title() != "R" || len(doc.Scenes()) != 1 {
		t.Fatalf("unexpected document: %+v %v", doc.Metadata(), doc.Scenes())
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "script.fountain")
	if err := os.WriteFile(p, []byte(sampleScript), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err = ParseFile(p)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if doc.Title() != "Brick & Steel" {
		t.Fatalf("title = %q", doc.Title())
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.fountain")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	bad := filepath.Join(dir, "bad.fountain")
	if err := os.WriteFile(bad, []byte{0xC3, 0x28}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseFile(bad); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode through wrapping, got %v", err)
	}
}
