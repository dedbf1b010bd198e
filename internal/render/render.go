/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"fmt"
	"io"
	"strings"

	"gofountain/internal/fountain"
)

// Format is an output format name.
type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// Formats lists the supported output formats.
var Formats = []Format{FormatHTML, FormatJSON}

// ParseFormat resolves a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string { return "." + string(f) }

// JSON writes the indented JSON form of doc followed by a newline.
func JSON(w io.Writer, doc *fountain.Document) error {
	b, err := fountain.ToJSON(doc)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// Render writes doc in format f. opt only applies to HTML.
func Render(w io.Writer, doc *fountain.Document, f Format, opt HTMLOptions) error {
	switch f {
	case FormatHTML:
		return HTML(w, doc, opt)
	case FormatJSON:
		return JSON(w, doc)
	default:
		return fmt.Errorf("unsupported format %q", string(f))
	}
}
