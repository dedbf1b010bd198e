/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

// DocumentSchema is the JSON schema of the serialized Document.
//
//go:embed schema/document.schema.json
var DocumentSchema []byte

// ErrInvalidDocument is matched by every *SchemaError.
var ErrInvalidDocument = errors.New("invalid document")

// SchemaError lists why a serialized document could not be reconstructed.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid document: " + strings.Join(e.Problems, "; ")
}

func (e *SchemaError) Is(target error) bool { return target == ErrInvalidDocument }

type jsonElement struct {
	Type       ElementType       `json:"type"`
	Text       string            `json:"text"`
	Formatting []FormatSpan      `json:"formatting"`
	LineNumber int               `json:"line_number"`
	Metadata   map[string]string `json:"metadata"`
}

type jsonDocument struct {
	Metadata map[string]string `json:"metadata"`
	Elements []jsonElement     `json:"elements"`
}

// MarshalJSON writes {"metadata": {...}, "elements": [...]}.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := jsonDocument{Metadata: d.Metadata(), Elements: make([]jsonElement, 0, len(d.elements))}
	for _, e := range d.elements {
		spans := e.Formatting
		if spans == nil {
			spans = []FormatSpan{}
		}
		out.Elements = append(out.Elements, jsonElement{
			Type:       e.Type,
			Text:       e.Text,
			Formatting: spans,
			LineNumber: e.LineNumber,
			Metadata:   e.Meta.Map(),
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs a document written by MarshalJSON.
func (d *Document) UnmarshalJSON(b []byte) error {
	doc, err := FromJSON(b)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// ToJSON renders the document as indented JSON.
func ToJSON(d *Document) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// FromJSON validates b against DocumentSchema and rebuilds the Document.
// Span offsets must satisfy 0 <= start < end <= len(text).
func FromJSON(b []byte) (*Document, error) {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(DocumentSchema), gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, &SchemaError{Problems: []string{err.Error()}}
	}
	if !res.Valid() {
		se := &SchemaError{}
		for _, e := range res.Errors() {
			se.Problems = append(se.Problems, e.String())
		}
		return nil, se
	}
	var in jsonDocument
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, &SchemaError{Problems: []string{err.Error()}}
	}

	se := &SchemaError{}
	elements := make([]Element, 0, len(in.Elements))
	for i, je := range in.Elements {
		meta, err := metaFromMap(je.Metadata)
		if err != nil {
			se.Problems = append(se.Problems, fmt.Sprintf("elements.%d.metadata: %v", i, err))
		}
		for j, s := range je.Formatting {
			if s.Start < 0 || s.Start >= s.End || s.End > len(je.Text) {
				se.Problems = append(se.Problems, fmt.Sprintf("elements.%d.formatting.%d: span [%d,%d) outside text of length %d", i, j, s.Start, s.End, len(je.Text)))
			}
		}
		var spans []FormatSpan
		if len(je.Formatting) > 0 {
			spans = je.Formatting
		}
		elements = append(elements, Element{
			Type:       je.Type,
			Text:       je.Text,
			Formatting: spans,
			LineNumber: je.LineNumber,
			Meta:       meta,
		})
	}
	if len(se.Problems) > 0 {
		return nil, se
	}
	return NewDocument(elements, in.Metadata), nil
}
