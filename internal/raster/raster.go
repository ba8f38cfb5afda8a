/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package raster provides read access to the pixels of the annotated image.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrTainted reports that pixel data exists but may not be read.
	ErrTainted = errors.New("raster pixels are not readable")
	// ErrOutOfBounds reports a sample outside the image.
	ErrOutOfBounds = errors.New("pixel out of bounds")
)

// Source is a decoded raster with integer pixel sampling.
type Source interface {
	Size() (w, h int)
	At(x, y int) (color.RGBA, error)
}

type imageSource struct {
	img    image.Image
	bounds image.Rectangle
}

// FromImage wraps a decoded image. Coordinates are relative to the image's minimum point.
func FromImage(img image.Image) Source {
	return &imageSource{img: img, bounds: img.Bounds()}
}

func (s *imageSource) Size() (int, int) { return s.bounds.Dx(), s.bounds.Dy() }

func (s *imageSource) At(x, y int) (color.RGBA, error) {
	if x < 0 || y < 0 || x >= s.bounds.Dx() || y >= s.bounds.Dy() {
		return color.RGBA{}, fmt.Errorf("(%d,%d): %w", x, y, ErrOutOfBounds)
	}
	c := color.NRGBAModel.Convert(s.img.At(s.bounds.Min.X+x, s.bounds.Min.Y+y)).(color.NRGBA)
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
}

// Image returns the underlying image when src was built by FromImage or Load.
func Image(src Source) (image.Image, bool) {
	if s, ok := src.(*imageSource); ok {
		return s.img, true
	}
	return nil, false
}

// Load decodes a PNG, JPEG, GIF, BMP, TIFF or WebP file.
func Load(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return FromImage(img), nil
}

// DecodeConfig reads only the dimensions of an image file.
func DecodeConfig(path string) (w, h int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Tainted is a raster whose size is known but whose pixels cannot be read.
type Tainted struct{ W, H int }

func (t Tainted) Size() (int, int) { return t.W, t.H }

func (t Tainted) At(int, int) (color.RGBA, error) { return color.RGBA{}, ErrTainted }

// Luminance returns the Rec. 601 luma of c in 0..255.
func Luminance(c color.RGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}
