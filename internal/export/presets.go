/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0
 */

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/multierr"

	"gofountain/internal/fountain"
	"gofountain/internal/render"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb     PresetName = "web"     // standalone HTML
	PresetData    PresetName = "data"    // JSON
	PresetEbook   PresetName = "ebook"   // EPUB
	PresetArchive PresetName = "archive" // everything
)

// Format names accepted in BatchOptions.Formats besides the render formats.
const FormatEPUB = "epub"

// BatchOptions controls batch export of several scripts to several formats.
//
// Path semantics:
//   - If OutDir is empty it becomes exports/<preset>; a relative OutDir is resolved against Root.
//   - Each input yields <name>.<ext> in OutDir, where name is the slug of the title page
//     title or, without one, of the file name. Clashes get -2, -3, ... appended.
//
//nolint:revive // keep fields explicit for clarity
type BatchOptions struct {
	Preset  PresetName
	Formats []string // allowed: html, json, epub; empty means preset defaults
	OutDir  string
	Root    string // base for a relative OutDir; empty means the working directory
	HTML    render.HTMLOptions
	EPUB    EPUBOptions
}

// Result lists the files one BatchExport call wrote.
type Result struct {
	Written []string
}

// BatchExport parses every input and writes it in every requested format.
// A failing input does not stop the batch; all errors are returned combined.
func BatchExport(inputs []string, opt BatchOptions) (Result, error) {
	var res Result
	if len(inputs) == 0 {
		return res, fmt.Errorf("no input files")
	}

	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	norm := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if f != FormatEPUB {
			if _, err := render.ParseFormat(f); err != nil {
				return res, fmt.Errorf("unknown format: %s", f)
			}
		}
		norm = append(norm, f)
	}

	baseOut := opt.OutDir
	if baseOut == "" {
		preset := string(opt.Preset)
		if preset == "" {
			preset = "default"
		}
		baseOut = filepath.Join("exports", preset)
	}
	if !filepath.IsAbs(baseOut) && opt.Root != "" {
		baseOut = filepath.Join(opt.Root, baseOut)
	}
	if err := os.MkdirAll(baseOut, 0o755); err != nil {
		return res, fmt.Errorf("ensure out dir: %w", err)
	}

	htmlOpt := opt.HTML
	if htmlOpt == (render.HTMLOptions{}) {
		htmlOpt = render.DefaultHTMLOptions()
		htmlOpt.Standalone = true
	}

	var errs error
	used := map[string]int{}
	for _, in := range inputs {
		doc, err := fountain.ParseFile(in)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		name := outputName(doc, in)
		used[name]++
		if n := used[name]; n > 1 {
			name += "-" + strconv.Itoa(n)
		}
		for _, f := range norm {
			out := filepath.Join(baseOut, name+"."+f)
			if err := exportOne(doc, f, out, htmlOpt, opt.EPUB); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", f, in, err))
				continue
			}
			res.Written = append(res.Written, out)
		}
	}
	return res, errs
}

func exportOne(doc *fountain.Document, format, out string, htmlOpt render.HTMLOptions, epub EPUBOptions) error {
	if format == FormatEPUB {
		return ExportEPUB(doc, out, epub)
	}
	f, err := render.ParseFormat(format)
	if err != nil {
		return err
	}
	fh, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := render.Render(fh, doc, f, htmlOpt); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

// outputName picks the file stem for doc read from path.
func outputName(doc *fountain.Document, path string) string {
	if s := slug.Make(firstLine(doc.Title())); s != "" {
		return s
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if s := slug.Make(base); s != "" {
		return s
	}
	return "script"
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{"html"}
	case PresetData:
		return []string{"json"}
	case PresetEbook:
		return []string{FormatEPUB}
	case PresetArchive:
		return []string{"html", "json", FormatEPUB}
	default:
		return []string{"html", "json"}
	}
}
