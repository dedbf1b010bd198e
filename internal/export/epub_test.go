/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"gofountain/internal/fountain"
	"gofountain/internal/render"
)

func TestExportEPUB_Structure(t *testing.T) {
	doc := fountain.Parse(sample)
	out := filepath.Join(t.TempDir(), "exports", "script")
	if err := ExportEPUB(doc, out, EPUBOptions{}); err != nil {
		t.Fatalf("export epub: %v", err)
	}
	zr, err := zip.OpenReader(out + ".epub")
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer func() { _ = zr.Close() }()

	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" || zr.File[0].Method != zip.Store {
		t.Fatalf("mimetype must be the first stored entry")
	}
	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = string(b)
	}
	for _, name := range []string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/nav.xhtml", "OEBPS/script.xhtml", "OEBPS/styles/script.css"} {
		if _, ok := files[name]; !ok {
			t.Fatalf("missing %s", name)
		}
	}
	// Every XML part must be well-formed.
	for _, name := range []string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/nav.xhtml", "OEBPS/script.xhtml"} {
		dec := xml.NewDecoder(strings.NewReader(files[name]))
		for {
			_, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("%s is not well-formed: %v", name, err)
			}
		}
	}
	opf := files["OEBPS/content.opf"]
	if !strings.Contains(opf, "<dc:title>Brick &amp; Steel</dc:title>") || !strings.Contains(opf, "<dc:creator>Stu</dc:creator>") {
		t.Fatalf("metadata not taken from title page:\n%s", opf)
	}
	if !strings.Contains(opf, "urn:uuid:") {
		t.Fatalf("missing generated identifier")
	}
	nav := files["OEBPS/nav.xhtml"]
	for _, a := range render.SceneAnchors(doc) {
		if !strings.Contains(nav, "script.xhtml#"+a.ID) {
			t.Fatalf("nav lacks scene %s", a.ID)
		}
		if !strings.Contains(files["OEBPS/script.xhtml"], `id="`+a.ID+`"`) {
			t.Fatalf("script lacks anchor %s", a.ID)
		}
	}
}
