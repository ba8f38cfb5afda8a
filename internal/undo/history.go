/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo implements a bounded snapshot history with undo and redo stacks.
package undo

import "sync"

// DefaultCapacity is the number of undo entries kept when none is configured.
const DefaultCapacity = 50

// Source is the state owner the history captures from and restores into.
// Capture must return a deep copy.
type Source[T any] interface {
	Capture() T
	Restore(T)
}

// History keeps whole-state snapshots taken before each mutation.
// It is safe for concurrent use.
type History[T any] struct {
	mu       sync.Mutex
	capacity int
	undo     []T
	redo     []T

	// what the latest Record discarded, handed back by Revert
	dropped  []T
	evicted  []T
	revertOK bool
}

func New[T any](capacity int) *History[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History[T]{capacity: capacity}
}

// Record pushes the current state of src before a mutation is applied.
// The oldest entry is evicted past capacity and the redo stack is cleared.
func (h *History[T]) Record(src Source[T]) {
	s := src.Capture()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = append(h.undo, s)
	// Any new change invalidates redo
	h.dropped = h.redo
	h.redo = nil
	h.evicted = h.enforceCapLocked()
	h.revertOK = true
}

// Undo saves the current state for redo and restores the most recent undo entry.
func (h *History[T]) Undo(src Source[T]) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.undo)
	if n == 0 {
		return false
	}
	h.forgetRecordLocked()
	h.redo = append(h.redo, src.Capture())
	s := h.undo[n-1]
	h.undo = h.undo[:n-1]
	src.Restore(s)
	return true
}

// Redo saves the current state for undo, without clearing redo, and restores the most
// recent redo entry.
func (h *History[T]) Redo(src Source[T]) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.redo)
	if n == 0 {
		return false
	}
	h.forgetRecordLocked()
	h.undo = append(h.undo, src.Capture())
	h.enforceCapLocked()
	s := h.redo[n-1]
	h.redo = h.redo[:n-1]
	src.Restore(s)
	return true
}

// Revert pops the latest undo entry and restores it. It abandons an in-progress change
// whose snapshot was already recorded: when called right after Record, the redo entries
// and the evicted oldest entries that Record discarded are put back.
func (h *History[T]) Revert(src Source[T]) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.undo)
	if n == 0 {
		return false
	}
	s := h.undo[n-1]
	h.undo = h.undo[:n-1]
	if h.revertOK {
		h.undo = append(h.evicted, h.undo...)
		h.redo = h.dropped
	}
	h.forgetRecordLocked()
	src.Restore(s)
	return true
}

func (h *History[T]) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

func (h *History[T]) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Clear drops both stacks.
func (h *History[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = nil
	h.redo = nil
	h.forgetRecordLocked()
}

// Stats returns current stack depths for diagnostics.
func (h *History[T]) Stats() (undoDepth, redoDepth, capacity int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo), h.capacity
}

func (h *History[T]) forgetRecordLocked() {
	h.dropped, h.evicted, h.revertOK = nil, nil, false
}

// enforceCapLocked drops the oldest extras and returns them.
func (h *History[T]) enforceCapLocked() []T {
	if len(h.undo) <= h.capacity {
		return nil
	}
	toDrop := len(h.undo) - h.capacity
	dropped := append([]T(nil), h.undo[:toDrop]...)
	h.undo = append([]T{}, h.undo[toDrop:]...)
	return dropped
}
