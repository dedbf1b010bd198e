/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package version exposes build information. Values are set via -ldflags, e.g.
//
//	go build -ldflags "-X gofountain/internal/version.Version=1.2.0 -X gofountain/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"runtime/debug"
	"strings"
)

var (
	Version = "0.1.0-dev"
	Commit  = ""
	Date    = ""
)

// String returns a human-readable version like "0.1.0-dev (abc1234, 2025-01-02)".
func String() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		v = "dev"
	}
	commit := strings.TrimSpace(Commit)
	if commit == "" {
		commit = vcsRevision()
	}
	var extra []string
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		extra = append(extra, commit)
	}
	if d := strings.TrimSpace(Date); d != "" {
		extra = append(extra, d)
	}
	if len(extra) == 0 {
		return v
	}
	return v + " (" + strings.Join(extra, ", ") + ")"
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
