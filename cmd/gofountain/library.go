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
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gofountain/internal/crash"
	"gofountain/internal/storage"
)

func (a *app) libraryRoot() string {
	if a.library != "" {
		return a.library
	}
	if a.cfg.Library.Root != "" {
		return a.cfg.Library.Root
	}
	return "."
}

// withLibrary opens (or, with create, initializes) the library, repairs a
// corrupt index and runs fn. A panic in fn snapshots the library's scripts.
func (a *app) withLibrary(ctx context.Context, create bool, fn func(lib *storage.Library) error) error {
	var (
		lib *storage.Library
		err error
	)
	if create {
		lib, err = storage.InitLibrary(a.libraryRoot(), "")
	} else {
		lib, err = storage.OpenLibrary(a.libraryRoot())
	}
	if err != nil {
		return fmt.Errorf("library %s: %w (run \"gofountain index\" to create one)", a.libraryRoot(), err)
	}
	defer crash.Recover(lib)
	rebuilt, err := storage.DetectAndRebuildIndex(ctx, lib)
	if err != nil {
		return err
	}
	if rebuilt {
		a.log.Warn("index was corrupt and has been rebuilt", slog.String("root", lib.Root))
	}
	return fn(lib)
}

// fountainFiles lists the .fountain files under root, skipping hidden directories.
func fountainFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".fountain") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func (a *app) indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [file]...",
		Short: "Add scripts to the library index (all .fountain files when none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), true, func(lib *storage.Library) error {
				paths := args
				if len(paths) == 0 {
					found, err := fountainFiles(lib.Root)
					if err != nil {
						return err
					}
					paths = found
				}
				n, err := storage.IndexScripts(cmd.Context(), lib, paths)
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d of %d scripts in %s\n", n, len(paths), lib.Root)
				return err
			})
		},
	}
}

func (a *app) scriptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scripts",
		Short: "List indexed scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), false, func(lib *storage.Library) error {
				list, err := storage.ListScripts(cmd.Context(), lib)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PATH\tTITLE\tSCENES\tELEMENTS\tINDEXED")
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.Path, firstLine(s.Title), s.SceneCount, s.ElementCount, s.IndexedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <file>",
		Short: "Drop a script from the library index (the file itself is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), false, func(lib *storage.Library) error {
				return storage.RemoveScript(cmd.Context(), lib, args[0])
			})
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var (
		q      storage.SearchQuery
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search script elements in the library (or the server with --remote)",
		Long: `Search script elements. Text uses FTS5 syntax locally: terms, "phrases", AND/OR/NOT.
Without text, all elements matching the filters are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Text = strings.Join(args, " ")
			var (
				res []storage.SearchResult
				err error
			)
			if remote {
				c, cerr := a.client(true)
				if cerr != nil {
					return cerr
				}
				res, err = c.Search(cmd.Context(), q)
			} else {
				err = a.withLibrary(cmd.Context(), false, func(lib *storage.Library) error {
					var serr error
					res, serr = storage.Search(cmd.Context(), lib.Root, q)
					return serr
				})
			}
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range res {
				who := ""
				if r.Character != "" {
					who = r.Character + ": "
				}
				fmt.Fprintf(w, "%s:%d [%s] %s%s\n", r.Path, r.LineNumber, r.Type, who, firstLine(r.Snippet))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&q.Types, "type", "t", nil, "element types, e.g. dialogue,action")
	f.StringVarP(&q.Character, "character", "c", "", "speaker name")
	f.StringVarP(&q.Scene, "scene", "s", "", "substring of the scene heading")
	f.StringVar(&q.ScriptID, "script", "", "restrict to one script id")
	f.IntVar(&q.Limit, "limit", 50, "maximum results")
	f.IntVar(&q.Offset, "offset", 0, "skip this many results")
	f.BoolVar(&remote, "remote", false, "search published scripts on the configured server")
	return cmd
}

func (a *app) snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, prune and restore script snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save <file>",
		Short: "Store the current text of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), false, func(lib *storage.Library) error {
				if err := storage.SaveScriptSnapshot(cmd.Context(), lib, args[0], time.Now()); err != nil {
					return err
				}
				if keep := a.cfg.Library.SnapshotKeep; keep > 0 {
					if _, err := storage.PruneOldScriptSnapshots(cmd.Context(), lib, args[0], keep); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Snapshot saved")
				return nil
			})
		},
	})

	var limit int
	list := &cobra.Command{
		Use:   "list <file>",
		Short: "List snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), false, func(lib *storage.Library) error {
				snaps, err := storage.ListScriptSnapshots(cmd.Context(), lib, args[0], limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTIME\tBYTES")
				for _, s := range snaps {
					fmt.Fprintf(tw, "%d\t%s\t%d\n", s.ID, s.TS.Local().Format(time.DateTime), len(s.Text))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum snapshots to list")
	cmd.AddCommand(list)

	var keep int
	prune := &cobra.Command{
		Use:   "prune <file>",
		Short: "Delete all but the newest snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep") {
				keep = a.cfg.Library.SnapshotKeep
			}
			return a.withLibrary(cmd.Context(), false, func(lib *storage.Library) error {
				n, err := storage.PruneOldScriptSnapshots(cmd.Context(), lib, args[0], keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d snapshots\n", n)
				return nil
			})
		},
	}
	prune.Flags().IntVar(&keep, "keep", 0, "snapshots to keep (default library.snapshot_keep)")
	cmd.AddCommand(prune)

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Overwrite a script with its latest snapshot (the current file is backed up)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), false, func(lib *storage.Library) error {
				snap, err := storage.RestoreLatestScriptSnapshot(cmd.Context(), lib, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored snapshot from %s\n", snap.TS.Local().Format(time.DateTime))
				return nil
			})
		},
	})
	return cmd
}

func (a *app) rebuildCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the library index from the script files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := storage.OpenLibrary(a.libraryRoot())
			if err != nil {
				return err
			}
			defer crash.Recover(lib)
			if check {
				rebuilt, err := storage.DetectAndRebuildIndex(cmd.Context(), lib)
				if err != nil {
					return err
				}
				if rebuilt {
					fmt.Fprintln(cmd.OutOrStdout(), "Index was corrupt and has been rebuilt")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Index is healthy")
				}
				return nil
			}
			if err := storage.RebuildIndex(cmd.Context(), lib); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt index for %d scripts\n", len(lib.Manifest.Scripts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only rebuild when the index is unreadable")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
