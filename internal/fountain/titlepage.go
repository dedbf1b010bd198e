/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"regexp"
	"strings"
)

// Keys start at column 0 and hold word characters and spaces only.
var reTitleKey = regexp.MustCompile(`^(\w[\w ]*?)\s*:\s*(.*)$`)

// ExtractTitlePage reads the leading Key: Value block of lines.
// It returns the metadata with lower-cased keys and the number of lines consumed.
// Blank lines inside the block are skipped as long as another key line follows
// them; the block ends at a blank run followed by anything else, or at the first
// line that is neither a key line nor an indented continuation. A key with an
// empty value only counts when a continuation line follows it. Duplicate keys
// keep the last value.
func ExtractTitlePage(lines []string) (map[string]string, int) {
	meta := map[string]string{}
	consumed := 0
	currentKey := ""
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			if currentKey == "" {
				break
			}
			next := i + 1
			for next < len(lines) && strings.TrimSpace(lines[next]) == "" {
				next++
			}
			if _, _, ok := keyLine(lines, next); !ok {
				break
			}
			i = next - 1
			continue
		}
		if isIndented(line) {
			if currentKey == "" {
				break
			}
			cont := strings.TrimSpace(line)
			if meta[currentKey] == "" {
				meta[currentKey] = cont
			} else {
				meta[currentKey] += "\n" + cont
			}
			consumed = i + 1
			continue
		}
		key, value, ok := keyLine(lines, i)
		if !ok {
			break
		}
		currentKey = key
		meta[currentKey] = value
		consumed = i + 1
	}
	return meta, consumed
}

// keyLine reports whether lines[i] opens a title-page entry: a Key: Value line,
// or a bare Key: followed by an indented continuation.
func keyLine(lines []string, i int) (key, value string, ok bool) {
	if i >= len(lines) || isIndented(lines[i]) {
		return "", "", false
	}
	m := reTitleKey.FindStringSubmatch(lines[i])
	if m == nil {
		return "", "", false
	}
	value = strings.TrimSpace(m[2])
	if value == "" && !(i+1 < len(lines) && isIndented(lines[i+1]) && strings.TrimSpace(lines[i+1]) != "") {
		return "", "", false
	}
	return normalizeKey(m[1]), value, true
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// normalizeKey folds title-page keys so "Title" and "title " collapse.
func normalizeKey(k string) string {
	return strings.Join(strings.Fields(strings.ToLower(k)), " ")
}
