/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements script libraries.
// A library is a directory of .fountain files plus a .gft folder holding the library manifest
// (library.json, written transactionally with timestamped backups) and an embedded SQLite index
// at <root>/.gft/index.sqlite used for element search and script snapshots.
// The index is derived from the script files listed in the manifest and is rebuildable/disposable by design.
package storage
