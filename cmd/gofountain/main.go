/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gofountain/internal/config"
	"gofountain/internal/crash"
	"gofountain/internal/export"
	"gofountain/internal/fountain"
	applog "gofountain/internal/log"
	"gofountain/internal/render"
	"gofountain/internal/telemetry"
	"gofountain/internal/version"
)

func main() {
	defer crash.Recover(nil)
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries what every command needs after the config has been loaded.
type app struct {
	cfg     config.AppConfig
	token   string
	library string // --library flag; empty means cfg.Library.Root
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "gofountain",
		Short: "Parse, render, index and publish Fountain screenplays",
		Long: `gofountain reads screenplays written in the Fountain markup language.

It turns them into structured documents (JSON), HTML pages and EPUB books,
keeps a searchable library index with snapshot history, and can publish
scripts to a gofountain server.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			telemetry.Flush(ctx)
		},
	}
	root.PersistentFlags().StringVarP(&a.library, "library", "L", "", "library root (default from config, then the working directory)")

	root.AddCommand(a.parseCmd())
	root.AddCommand(a.htmlCmd())
	root.AddCommand(a.statsCmd())
	root.AddCommand(a.exportCmd())
	root.AddCommand(a.indexCmd())
	root.AddCommand(a.scriptsCmd())
	root.AddCommand(a.removeCmd())
	root.AddCommand(a.searchCmd())
	root.AddCommand(a.snapshotCmd())
	root.AddCommand(a.rebuildCmd())
	root.AddCommand(a.serveCmd())
	root.AddCommand(a.publishCmd())
	root.AddCommand(a.loginCmd())
	root.AddCommand(a.logoutCmd())
	root.AddCommand(a.configCmd())
	root.AddCommand(versionCmd())
	return root
}

func (a *app) init() error {
	cfg, tok, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg, a.token = cfg, tok
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tc)
	a.log = applog.WithComponent("cli")
	return nil
}

// readDocument parses path; "-" reads standard input.
func (a *app) readDocument(cmd *cobra.Command, path string) (*fountain.Document, error) {
	var (
		doc *fountain.Document
		err error
	)
	if path == "-" {
		doc, err = fountain.ParseReader(cmd.InOrStdin())
	} else {
		doc, err = fountain.ParseFile(path)
	}
	if err != nil {
		return nil, err
	}
	a.log.DebugContext(applog.WithScript(cmd.Context(), path), "parsed", slog.Int("elements", doc.Len()))
	telemetry.ScriptParsed(doc.Statistics(), "cli")
	return doc, nil
}

// output returns the writer for -o (stdout when empty) and a close func.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (a *app) parseCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "parse <file|->",
		Short: "Parse a script and print the document as JSON or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			doc, err := a.readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			w, closeFn, err := output(cmd, out)
			if err != nil {
				return err
			}
			opt := a.cfg.Render.HTMLOptions()
			opt.Standalone = true
			if err := render.Render(w, doc, f, opt); err != nil {
				_ = closeFn()
				return err
			}
			return closeFn()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or html")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (a *app) htmlCmd() *cobra.Command {
	var (
		out, theme                string
		fragment, notes, boneyard bool
	)
	cmd := &cobra.Command{
		Use:   "html <file|->",
		Short: "Render a script as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			opt := a.cfg.Render.HTMLOptions()
			opt.Standalone = !fragment
			if theme != "" {
				opt.Theme = theme
			}
			if cmd.Flags().Changed("notes") {
				opt.IncludeNotes = notes
			}
			if cmd.Flags().Changed("boneyard") {
				opt.IncludeBoneyard = boneyard
			}
			s, err := render.HTMLString(doc, opt)
			if err != nil {
				return err
			}
			w, closeFn, err := output(cmd, out)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, s); err != nil {
				_ = closeFn()
				return err
			}
			return closeFn()
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&theme, "theme", "", "stylesheet: "+strings.Join(render.Themes(), ", "))
	cmd.Flags().BoolVar(&fragment, "fragment", false, "emit only the script <div>, without <html> wrapper")
	cmd.Flags().BoolVar(&notes, "notes", true, "include [[notes]]")
	cmd.Flags().BoolVar(&boneyard, "boneyard", true, "include /* boneyard */ sections")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file|->",
		Short: "Print element counts, scenes and characters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			stats := doc.Statistics()
			keys := make([]string, 0, len(stats))
			for k := range stats {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if t := doc.Title(); t != "" {
				fmt.Fprintf(tw, "title\t%s\n", strings.ReplaceAll(t, "\n", " / "))
			}
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%d\n", k, stats[k])
			}
			if chars := doc.Characters(); len(chars) > 0 {
				fmt.Fprintf(tw, "cast\t%s\n", strings.Join(chars, ", "))
			}
			return tw.Flush()
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var (
		preset, out string
		formats     []string
	)
	cmd := &cobra.Command{
		Use:   "export <file>...",
		Short: "Export scripts with a preset (web, data, ebook, archive)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			html := a.cfg.Render.HTMLOptions()
			html.Standalone = true
			res, err := export.BatchExport(args, export.BatchOptions{
				Preset:  export.PresetName(preset),
				Formats: formats,
				OutDir:  out,
				Root:    a.libraryRoot(),
				HTML:    html,
				EPUB:    export.EPUBOptions{Theme: html.Theme},
			})
			for _, p := range res.Written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			telemetry.Event(telemetry.EventExport, map[string]any{"preset": preset, "files": len(res.Written)})
			return err
		},
	}
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "web, data, ebook or archive")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "formats to write (html, json, epub); overrides the preset")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default exports/<preset> under the library root)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gofountain", version.String())
		},
	}
}
