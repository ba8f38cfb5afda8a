/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"slices"
	"testing"
)

// counter is a tiny Source over a slice of ints.
type counter struct{ vals []int }

func (c *counter) Capture() []int  { return slices.Clone(c.vals) }
func (c *counter) Restore(v []int) { c.vals = slices.Clone(v) }
func (c *counter) push(h *History[[]int], v int) {
	h.Record(c)
	c.vals = append(c.vals, v)
}

func TestUndoRedoInverse(t *testing.T) {
	h := New[[]int](10)
	c := &counter{}
	for i := 1; i <= 4; i++ {
		c.push(h, i)
	}
	for i := 0; i < 4; i++ {
		if !h.Undo(c) {
			t.Fatalf("undo %d failed", i)
		}
	}
	if len(c.vals) != 0 {
		t.Fatalf("expected empty state after full undo, got %v", c.vals)
	}
	if h.Undo(c) {
		t.Fatalf("undo on empty stack should report false")
	}
	for i := 0; i < 4; i++ {
		if !h.Redo(c) {
			t.Fatalf("redo %d failed", i)
		}
	}
	if !slices.Equal(c.vals, []int{1, 2, 3, 4}) {
		t.Fatalf("redo did not restore post state: %v", c.vals)
	}
	if h.CanRedo() {
		t.Fatalf("redo stack should be exhausted")
	}
}

func TestRecordClearsRedo(t *testing.T) {
	h := New[[]int](10)
	c := &counter{}
	c.push(h, 1)
	c.push(h, 2)
	h.Undo(c)
	if !h.CanRedo() {
		t.Fatalf("expected redo available")
	}
	c.push(h, 9)
	if h.CanRedo() {
		t.Fatalf("new mutation must clear redo")
	}
	if !slices.Equal(c.vals, []int{1, 9}) {
		t.Fatalf("unexpected state %v", c.vals)
	}
}

func TestRedoKeepsRemainingRedo(t *testing.T) {
	h := New[[]int](10)
	c := &counter{}
	c.push(h, 1)
	c.push(h, 2)
	h.Undo(c)
	h.Undo(c)
	h.Redo(c)
	if !h.CanRedo() {
		t.Fatalf("redo must not clear the rest of the redo stack")
	}
	if u, r, _ := h.Stats(); u != 1 || r != 1 {
		t.Fatalf("stats undo=%d redo=%d", u, r)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	h := New[[]int](3)
	c := &counter{}
	for i := 1; i <= 6; i++ {
		c.push(h, i)
	}
	if u, _, capacity := h.Stats(); u != 3 || capacity != 3 {
		t.Fatalf("expected 3 entries, got %d (cap %d)", u, capacity)
	}
	for h.Undo(c) {
	}
	if !slices.Equal(c.vals, []int{1, 2, 3}) {
		t.Fatalf("oldest states should have been evicted, got %v", c.vals)
	}
}

func TestRevertRestoresDiscardedRedo(t *testing.T) {
	h := New[[]int](10)
	c := &counter{}
	c.push(h, 1)
	c.push(h, 2)
	h.Undo(c)
	h.Record(c)
	c.vals = append(c.vals, 7)
	if h.CanRedo() {
		t.Fatalf("record should clear redo")
	}
	if !h.Revert(c) {
		t.Fatalf("revert failed")
	}
	if !slices.Equal(c.vals, []int{1}) {
		t.Fatalf("unexpected state after revert %v", c.vals)
	}
	if u, r, _ := h.Stats(); u != 1 || r != 1 {
		t.Fatalf("expected undo=1 redo=1 after revert, got undo=%d redo=%d", u, r)
	}
	if !h.Redo(c) || !slices.Equal(c.vals, []int{1, 2}) {
		t.Fatalf("redo after revert should restore [1 2], got %v", c.vals)
	}
}

func TestRevertRestoresEvictedEntry(t *testing.T) {
	h := New[[]int](2)
	c := &counter{}
	c.push(h, 1)
	c.push(h, 2)
	h.Record(c)
	c.vals = append(c.vals, 3)
	if u, _, _ := h.Stats(); u != 2 {
		t.Fatalf("expected capacity to hold two entries, got %d", u)
	}
	h.Revert(c)
	if !slices.Equal(c.vals, []int{1, 2}) {
		t.Fatalf("unexpected state after revert %v", c.vals)
	}
	for h.Undo(c) {
	}
	if len(c.vals) != 0 {
		t.Fatalf("revert should give back the evicted oldest entry, got %v", c.vals)
	}
}

func TestRevertAfterUndoKeepsRedo(t *testing.T) {
	h := New[[]int](10)
	c := &counter{}
	c.push(h, 1)
	c.push(h, 2)
	h.Undo(c)
	// no Record since the undo, so there is nothing to hand back
	h.Revert(c)
	if u, r, _ := h.Stats(); u != 0 || r != 1 {
		t.Fatalf("expected undo=0 redo=1, got undo=%d redo=%d", u, r)
	}
}

func TestDefaultCapacityAndClear(t *testing.T) {
	h := New[[]int](0)
	if _, _, capacity := h.Stats(); capacity != DefaultCapacity {
		t.Fatalf("default capacity = %d", capacity)
	}
	c := &counter{}
	c.push(h, 1)
	h.Clear()
	if h.CanUndo() || h.CanRedo() {
		t.Fatalf("clear left entries behind")
	}
}
