// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package exposure

import (
	"fmt"
	"math"
)

// Pixel value types an exposure can carry
type Float interface {
	~float32 | ~float64
}

// Per-pixel quality flags, one bit plane per condition
type MaskPixel uint16

const (
	MaskBad         MaskPixel = 1 << 0 // Known bad detector pixel
	MaskSat         MaskPixel = 1 << 1 // Saturated
	MaskFlatInvalid MaskPixel = 1 << 7 // Flat divisor was zero or not finite
)

// An exposure: image plane, optional variance plane, mask plane and metadata.
// Planes are stored row-major. Rows and Cols are fixed at construction.
type Exposure[T Float] struct {
	Rows     int
	Cols     int
	Image    []T         // The pixel values
	Variance []T         // Per-pixel variance, nil if not tracked
	Mask     []MaskPixel // Quality flags
	Metadata *Metadata
}

// Creates a zero-valued exposure of the given size, with empty mask and metadata and no variance plane
func New[T Float](rows, cols int) *Exposure[T] {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("invalid exposure size %dx%d", rows, cols))
	}
	return &Exposure[T]{
		Rows:     rows,
		Cols:     cols,
		Image:    make([]T, rows*cols),
		Mask:     make([]MaskPixel, rows*cols),
		Metadata: NewMetadata(),
	}
}

// Creates an exposure around the given image data. Data is not copied
func FromImage[T Float](rows, cols int, image []T) (*Exposure[T], error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("invalid exposure size %dx%d", rows, cols)
	}
	if len(image) != rows*cols {
		return nil, fmt.Errorf("image has %d pixels, expected %dx%d=%d", len(image), rows, cols, rows*cols)
	}
	return &Exposure[T]{
		Rows:     rows,
		Cols:     cols,
		Image:    image,
		Mask:     make([]MaskPixel, rows*cols),
		Metadata: NewMetadata(),
	}, nil
}

// Attaches a variance plane. Data is not copied
func (e *Exposure[T]) SetVariance(variance []T) error {
	if variance != nil && len(variance) != len(e.Image) {
		return fmt.Errorf("variance has %d pixels, expected %d", len(variance), len(e.Image))
	}
	e.Variance = variance
	return nil
}

// Number of pixels
func (e *Exposure[T]) Pixels() int {
	return e.Rows * e.Cols
}

// Checks that image and mask hold Rows*Cols entries each, and the variance
// plane too if present
func (e *Exposure[T]) CheckPlanes() error {
	if e.Rows < 0 || e.Cols < 0 {
		return fmt.Errorf("invalid exposure size %dx%d", e.Rows, e.Cols)
	}
	n := e.Pixels()
	if len(e.Image) != n {
		return fmt.Errorf("image has %d pixels, expected %dx%d=%d", len(e.Image), e.Rows, e.Cols, n)
	}
	if len(e.Mask) != n {
		return fmt.Errorf("mask has %d pixels, expected %d", len(e.Mask), n)
	}
	if e.Variance != nil && len(e.Variance) != n {
		return fmt.Errorf("variance has %d pixels, expected %d", len(e.Variance), n)
	}
	return nil
}

// True if the other exposure has identical dimensions
func (e *Exposure[T]) SameSize(o *Exposure[T]) bool {
	return e.Rows == o.Rows && e.Cols == o.Cols
}

// Creates a deep copy which shares no buffers with the original
func (e *Exposure[T]) Clone() *Exposure[T] {
	c := &Exposure[T]{
		Rows:     e.Rows,
		Cols:     e.Cols,
		Image:    make([]T, len(e.Image)),
		Mask:     make([]MaskPixel, len(e.Mask)),
		Metadata: e.Metadata.Clone(),
	}
	copy(c.Image, e.Image)
	copy(c.Mask, e.Mask)
	if e.Variance != nil {
		c.Variance = make([]T, len(e.Variance))
		copy(c.Variance, e.Variance)
	}
	return c
}

// Pixel value at given row and column
func (e *Exposure[T]) At(row, col int) T {
	return e.Image[row*e.Cols+col]
}

// Number of pixels with any of the given mask bits set
func (e *Exposure[T]) CountMasked(bits MaskPixel) int {
	n := 0
	for _, m := range e.Mask {
		if m&bits != 0 {
			n++
		}
	}
	return n
}

func (e *Exposure[T]) String() string {
	return fmt.Sprintf("%dx%d variance %v metadata %d keys", e.Rows, e.Cols, e.Variance != nil, e.Metadata.Len())
}

// True if the value is neither NaN nor infinite
func IsFinite[T Float](v T) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
