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
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gofountain/internal/fountain"
	"gofountain/internal/render"
)

// EPUBOptions controls EPUB export. Empty fields fall back to the title page.
//
//nolint:revive // clarity
type EPUBOptions struct {
	Title      string
	Author     string
	Language   string // e.g., "en"
	Publisher  string
	Identifier string // defaults to a random urn:uuid
	Theme      string // render theme for the embedded stylesheet
}

// ExportEPUB writes doc as a reflowable EPUB 3 package: one XHTML document
// holding the script and a navigation document listing its scenes.
func ExportEPUB(doc *fountain.Document, outPath string, opt EPUBOptions) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if opt.Language == "" {
		opt.Language = "en"
	}
	if opt.Title == "" {
		opt.Title = firstLine(doc.Title())
	}
	if opt.Title == "" {
		opt.Title = strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
	}
	if opt.Author == "" {
		if a, ok := doc.Meta("author"); ok {
			opt.Author = firstLine(a)
		} else if a, ok := doc.Meta("authors"); ok {
			opt.Author = firstLine(a)
		}
	}
	if opt.Identifier == "" {
		opt.Identifier = "urn:uuid:" + uuid.NewString()
	}
	css, err := render.ThemeCSS(opt.Theme)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".epub") {
		outPath += ".epub"
	}

	var body bytes.Buffer
	ho := render.HTMLOptions{IncludeTitlePage: true, IncludeNotes: true, SceneAnchors: true}
	if err := render.HTML(&body, doc, ho); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	defer func() { _ = f.Close() }()
	zw := zip.NewWriter(f)

	// mimetype must come first and stay uncompressed
	if err := addStoredZipFile(zw, "mimetype", []byte("application/epub+zip")); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write mimetype: %w", err)
	}
	containerXML := "" +
		"<?xml version=\"1.0\" encoding=\"utf-8\"?>\n" +
		"<container version=\"1.0\" xmlns=\"urn:oasis:names:tc:opendocument:xmlns:container\">\n" +
		"  <rootfiles>\n" +
		"    <rootfile full-path=\"OEBPS/content.opf\" media-type=\"application/oebps-package+xml\"/>\n" +
		"  </rootfiles>\n" +
		"</container>\n"
	if err := addZipFile(zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write container.xml: %w", err)
	}
	if err := addZipFile(zw, "OEBPS/styles/script.css", []byte(css)); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write css: %w", err)
	}

	script := &bytes.Buffer{}
	script.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	script.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\" xml:lang=\"" + xmlEsc(opt.Language) + "\">\n<head>\n")
	script.WriteString("<meta charset=\"utf-8\"/>\n")
	script.WriteString("<title>" + xmlEsc(opt.Title) + "</title>\n")
	script.WriteString("<link rel=\"stylesheet\" type=\"text/css\" href=\"styles/script.css\"/>\n")
	script.WriteString("</head>\n<body>\n")
	script.Write(body.Bytes())
	script.WriteString("\n</body>\n</html>\n")
	if err := addZipFile(zw, "OEBPS/script.xhtml", script.Bytes()); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write script xhtml: %w", err)
	}

	nav := &bytes.Buffer{}
	nav.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	nav.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\" xmlns:epub=\"http://www.idpf.org/2007/ops\">\n<head><title>Scenes</title></head>\n<body>\n")
	nav.WriteString("<nav epub:type=\"toc\" id=\"toc\"><ol>\n")
	nav.WriteString("<li><a href=\"script.xhtml\">" + xmlEsc(opt.Title) + "</a></li>\n")
	for _, a := range render.SceneAnchors(doc) {
		nav.WriteString(fmt.Sprintf("<li><a href=\"script.xhtml#%s\">%s</a></li>\n", xmlEsc(a.ID), xmlEsc(a.Title)))
	}
	nav.WriteString("</ol></nav>\n</body>\n</html>\n")
	if err := addZipFile(zw, "OEBPS/nav.xhtml", nav.Bytes()); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write nav.xhtml: %w", err)
	}

	mod := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	opf := &bytes.Buffer{}
	opf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	opf.WriteString("<package version=\"3.0\" unique-identifier=\"pub-id\" xmlns=\"http://www.idpf.org/2007/opf\">\n")
	opf.WriteString("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	opf.WriteString(fmt.Sprintf("    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", xmlEsc(opt.Identifier)))
	opf.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", xmlEsc(opt.Title)))
	opf.WriteString(fmt.Sprintf("    <dc:language>%s</dc:language>\n", xmlEsc(opt.Language)))
	if strings.TrimSpace(opt.Author) != "" {
		opf.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", xmlEsc(opt.Author)))
	}
	if strings.TrimSpace(opt.Publisher) != "" {
		opf.WriteString(fmt.Sprintf("    <dc:publisher>%s</dc:publisher>\n", xmlEsc(opt.Publisher)))
	}
	opf.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n", mod))
	opf.WriteString("  </metadata>\n")
	opf.WriteString("  <manifest>\n")
	opf.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	opf.WriteString("    <item id=\"css\" href=\"styles/script.css\" media-type=\"text/css\"/>\n")
	opf.WriteString("    <item id=\"script\" href=\"script.xhtml\" media-type=\"application/xhtml+xml\"/>\n")
	opf.WriteString("  </manifest>\n")
	opf.WriteString("  <spine>\n    <itemref idref=\"script\"/>\n  </spine>\n")
	opf.WriteString("</package>\n")
	if err := addZipFile(zw, "OEBPS/content.opf", opf.Bytes()); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write content.opf: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// addStoredZipFile writes an entry with STORE method (no compression), required for EPUB mimetype.
func addStoredZipFile(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Store}
	hdr.Modified = time.Now()
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	hdr.Modified = time.Now()
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func xmlEsc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
