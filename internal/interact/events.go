/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package interact

import (
	"image"
	"image/color"

	"github.com/golang/geo/r2"
)

// Button follows DOM numbering.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonMiddle    Button = 1
	ButtonSecondary Button = 2
)

// Mods is a set of held modifier keys.
type Mods uint8

const (
	ModShift Mods = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

func (m Mods) Shift() bool { return m&ModShift != 0 }

// Command reports Ctrl or Meta, the shortcut and pan modifier.
func (m Mods) Command() bool { return m&(ModCtrl|ModMeta) != 0 }

// PointerEvent carries a client-space position.
type PointerEvent struct {
	Pos    r2.Point
	Button Button
	Mods   Mods
}

// KeyEvent uses DOM key names: "Escape", "Tab", "Delete", "Backspace", "z", ...
type KeyEvent struct {
	Key  string
	Mods Mods
}

// WheelMode is the unit of wheel deltas.
type WheelMode int

const (
	WheelPixels WheelMode = iota
	WheelLines
	WheelPages
)

// LineHeight converts line-mode wheel deltas to pixels.
const LineHeight = 16.0

type WheelEvent struct {
	Pos    r2.Point
	DX, DY float64
	Mode   WheelMode
}

// Touch is one contact point in client space.
type Touch struct {
	ID  int
	Pos r2.Point
}

// Probe is the pixel readout under the cursor.
type Probe struct {
	Image    r2.Point    // image-space position
	Pixel    image.Point // floored pixel coordinate
	InBounds bool
	Color    color.RGBA
	HasColor bool // false when there is no raster or the read failed
}

// Host receives change notifications. Calls happen synchronously inside event handlers.
type Host interface {
	// Redraw asks the host to render Session.Frame().
	Redraw()
	SelectionChanged(ids []string, primary string)
	// StoreChanged fires once per committed mutation, undo or redo.
	StoreChanged()
	// RequestFrame asks for one Session.Frame() call at the next animation frame.
	RequestFrame()
	// ScrollTo applies a new scroll offset after zoom or pan.
	ScrollTo(scroll r2.Point)
}

// NopHost ignores every notification.
type NopHost struct{}

func (NopHost) Redraw()                               {}
func (NopHost) SelectionChanged(_ []string, _ string) {}
func (NopHost) StoreChanged()                         {}
func (NopHost) RequestFrame()                         {}
func (NopHost) ScrollTo(r2.Point)                     {}
