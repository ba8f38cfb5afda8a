/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

var (
	ErrNoReference = errors.New("no reference line")
	ErrNoSubject   = errors.New("no markers to analyse")
	ErrNoPixels    = errors.New("pixel data unavailable")
	ErrUnknownTool = errors.New("unknown tool")
)

// ToolError is a precondition failure of a tool. It is a value for the caller to present,
// never a reason to abort the session.
type ToolError struct {
	Tool string
	Err  error // one of the Err* sentinels
	Msg  string
}

func (e *ToolError) Error() string { return e.Tool + ": " + e.Msg }

func (e *ToolError) Unwrap() error { return e.Err }

func toolErr(tool string, err error, format string, args ...any) *ToolError {
	return &ToolError{Tool: tool, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// Table is a tool result. Cells are string, float64, int or nil (empty).
type Table struct {
	Tool    string
	Columns []string
	Rows    [][]any
}

// Records renders the table as strings, header first. Floats use the shortest
// representation that round-trips; nil cells become empty strings.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = FormatCell(v)
		}
		out = append(out, rec)
	}
	return out
}

// addColumn appends a column, suffixing the name when it is already taken so that every
// header is unique.
func (t *Table) addColumn(name string) {
	col := name
	for n := 2; slices.Contains(t.Columns, col); n++ {
		col = name + "_" + strconv.Itoa(n)
	}
	t.Columns = append(t.Columns, col)
}

// Object is one table row as an ordered set of column/value pairs. It marshals to a JSON
// object with keys in column order.
type Object struct {
	Keys   []string
	Values []any
}

func (o Object) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range o.Keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		var v any
		if i < len(o.Values) {
			v = o.Values[i]
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Objects returns one ordered object per row, for JSON output.
func (t *Table) Objects() []Object {
	out := make([]Object, len(t.Rows))
	for i, row := range t.Rows {
		n := min(len(row), len(t.Columns))
		out[i] = Object{Keys: t.Columns[:n:n], Values: row[:n:n]}
	}
	return out
}

func FormatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case uint8:
		return strconv.Itoa(int(v))
	default:
		return fmt.Sprint(v)
	}
}
