/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("decode error")

// DecodeError reports input bytes that are not valid text in the detected encoding.
type DecodeError struct {
	Encoding string // "utf-8" or "utf-16"
	Offset   int    // byte offset of the first offending byte
	Err      error  // underlying transformer error, if any
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s input at byte %d: %v", e.Encoding, e.Offset, e.Err)
	}
	return fmt.Sprintf("invalid %s input at byte %d", e.Encoding, e.Offset)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) match any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// ParseBytes decodes raw input and parses it. UTF-8 is assumed unless a UTF-16
// byte-order mark is present. Text is normalized to NFC before parsing.
func ParseBytes(b []byte) (*Document, error) {
	s, err := decodeText(b)
	if err != nil {
		return nil, err
	}
	return Parse(s), nil
}

// ParseReader reads r to the end and parses it.
func ParseReader(r io.Reader) (*Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return ParseBytes(b)
}

// ParseFile reads and parses the file at path.
func ParseFile(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := ParseBytes(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func decodeText(b []byte) (string, error) {
	if bytes.HasPrefix(b, bomUTF16BE) || bytes.HasPrefix(b, bomUTF16LE) {
		if len(b)%2 != 0 {
			return "", &DecodeError{Encoding: "utf-16", Offset: len(b) - 1, Err: errors.New("odd byte count")}
		}
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), b)
		if err != nil {
			return "", &DecodeError{Encoding: "utf-16", Err: err}
		}
		return norm.NFC.String(string(out)), nil
	}
	b = bytes.TrimPrefix(b, bomUTF8)
	if !utf8.Valid(b) {
		return "", &DecodeError{Encoding: "utf-8", Offset: firstInvalidUTF8(b)}
	}
	return norm.NFC.String(string(b)), nil
}

func firstInvalidUTF8(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
