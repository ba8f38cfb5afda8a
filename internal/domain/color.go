/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DefaultTagColor replaces colour values that cannot be parsed.
const DefaultTagColor = "#e6194b"

// Palette supplies swatches for newly added tags.
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#bfef45", "#469990", "#9a6324",
}

// PaletteColor returns the swatch for the n-th tag, cycling.
func PaletteColor(n int) string {
	if n < 0 {
		n = -n
	}
	return Palette[n%len(Palette)]
}

// SanitizeColor returns s as lower-case #rrggbb. Short #rgb forms are expanded and a missing
// leading '#' is tolerated; anything else yields DefaultTagColor.
func SanitizeColor(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTagColor
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 4 && len(s) != 7 {
		return DefaultTagColor
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return DefaultTagColor
	}
	return c.Clamped().Hex()
}

// Lighten blends hex toward white by t in Lab space; used for selected markers.
func Lighten(hex string, t float64) string {
	c, err := colorful.Hex(SanitizeColor(hex))
	if err != nil {
		return hex
	}
	white := colorful.Color{R: 1, G: 1, B: 1}
	return c.BlendLab(white, t).Clamped().Hex()
}
