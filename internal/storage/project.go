/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	ManifestFileName = "library.json"
	BackupsDirName   = "backups"
)

// ErrOutsideLibrary is returned for script paths that do not live under the library root.
var ErrOutsideLibrary = errors.New("path is outside the library")

// Manifest lists the scripts that belong to a library.
type Manifest struct {
	Name      string    `json:"name"`
	Scripts   []string  `json:"scripts"` // slash-separated, relative to the library root
	CreatedAt time.Time `json:"created_at"`
}

// Library keeps track of a library loaded/saved from disk.
// Root is the directory holding the scripts and the .gft folder.
type Library struct {
	Root         string
	ManifestPath string
	Manifest     Manifest
}

// InitLibrary creates the .gft folder under root and writes a fresh manifest.
// An existing manifest is kept and returned instead.
func InitLibrary(root, name string) (*Library, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, IndexDirName, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create library dirs: %w", err)
	}
	if lib, err := OpenLibrary(abs); err == nil {
		return lib, nil
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(abs)
	}
	lib := &Library{
		Root:         abs,
		ManifestPath: filepath.Join(abs, IndexDirName, ManifestFileName),
		Manifest:     Manifest{Name: name, Scripts: []string{}, CreatedAt: time.Now().UTC()},
	}
	if err := Save(lib); err != nil {
		return nil, err
	}
	return lib, nil
}

// OpenLibrary loads an existing library from root.
// If the current manifest cannot be read or parsed, it will attempt last backup.
func OpenLibrary(root string) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	mpath := filepath.Join(abs, IndexDirName, ManifestFileName)
	b, err := os.ReadFile(mpath)
	if err != nil {
		m, berr := openFromLatestBackup(abs)
		if berr != nil {
			return nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		return &Library{Root: abs, ManifestPath: mpath, Manifest: *m}, nil
	}
	var m Manifest
	if uerr := json.Unmarshal(b, &m); uerr != nil {
		bm, berr := openFromLatestBackup(abs)
		if berr != nil {
			return nil, fmt.Errorf("parse manifest: %w; backup attempt: %v", uerr, berr)
		}
		return &Library{Root: abs, ManifestPath: mpath, Manifest: *bm}, nil
	}
	return &Library{Root: abs, ManifestPath: mpath, Manifest: m}, nil
}

// Save writes the manifest to disk with transactional semantics
// and a timestamped backup of the previous manifest (if present).
func Save(lib *Library) error {
	if lib == nil {
		return errors.New("nil Library")
	}
	if lib.Root == "" || lib.ManifestPath == "" {
		return errors.New("invalid Library: missing paths")
	}
	sort.Strings(lib.Manifest.Scripts)
	data, err := json.MarshalIndent(lib.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	bdir := filepath.Join(lib.Root, IndexDirName, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(lib.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp))
		if cerr := copyFile(lib.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}
	if err := replaceFile(lib.ManifestPath, data); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// RelPath converts path into the slash-separated form stored in the manifest.
func (l *Library) RelPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(l.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLibrary, path)
	}
	return filepath.ToSlash(rel), nil
}

// AbsPath resolves a manifest path against the library root.
func (l *Library) AbsPath(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// addScript records rel in the manifest; it reports whether the manifest changed.
func (l *Library) addScript(rel string) bool {
	for _, s := range l.Manifest.Scripts {
		if s == rel {
			return false
		}
	}
	l.Manifest.Scripts = append(l.Manifest.Scripts, rel)
	return true
}

func (l *Library) removeScript(rel string) bool {
	for i, s := range l.Manifest.Scripts {
		if s == rel {
			l.Manifest.Scripts = append(l.Manifest.Scripts[:i], l.Manifest.Scripts[i+1:]...)
			return true
		}
	}
	return false
}

// replaceFile writes data to a temp file next to path, then renames it over path.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp file: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return rerr
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// openFromLatestBackup tries to open the latest timestamped manifest backup.
func openFromLatestBackup(root string) (*Manifest, error) {
	bdir := filepath.Join(root, IndexDirName, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return &m, nil
}
