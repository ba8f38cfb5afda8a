/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package storage implements persistence of annotation documents.
// It encodes and decodes the JSON document format (tags referenced by name), validates input
// against an embedded JSON schema, writes files transactionally with timestamped backups, and
// keeps an autosave journal in an embedded SQLite database at <dir>/.annotate/journal.sqlite.
// The journal is derived data and can be deleted at any time.
//
// Because annotations reference tags by name, a round trip preserves tag associations only
// while tag names are unique. When a document carries two tags with the same name, both tags
// are imported but every annotation referencing that name is attached to the first one.
package storage
