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


// Package synth generates synthetic master flats and matching chunk exposures
// with radial vignetting and random noise, for testing and demonstrations.
package synth

import (
	"fmt"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/flatfield/internal/exposure"
)

// Parameters for synthetic frames
type Params struct {
	Rows       int
	Cols       int
	FlatLevel  float64 // Mean flat level in ADU at the optical center
	Sky        float64 // Uniform sky level of the chunk in ADU, before vignetting
	Vignetting float64 // Fractional response loss in the corners, in [0,1)
	Noise      float64 // Relative uniform noise amplitude, e.g. 0.01 for ±1%
	CCDID      int64
	Filter     string
}

func DefaultParams() Params {
	return Params{
		Rows:       256,
		Cols:       256,
		FlatLevel:  20000,
		Sky:        1000,
		Vignetting: 0.3,
		Noise:      0.005,
		CCDID:      1,
		Filter:     "r",
	}
}

func (p *Params) String() string {
	return fmt.Sprintf("%dx%d flatLevel %.0f sky %.0f vignetting %.2f noise %.4f ccdid %d filter %s",
		p.Rows, p.Cols, p.FlatLevel, p.Sky, p.Vignetting, p.Noise, p.CCDID, p.Filter)
}

func (p *Params) Validate() error {
	if p.Rows <= 0 || p.Cols <= 0 {
		return fmt.Errorf("invalid size %dx%d", p.Rows, p.Cols)
	}
	if p.Vignetting < 0 || p.Vignetting >= 1 {
		return fmt.Errorf("vignetting must be in [0,1), got %g", p.Vignetting)
	}
	if p.Noise < 0 || p.Noise >= 1 {
		return fmt.Errorf("noise must be in [0,1), got %g", p.Noise)
	}
	return nil
}

// Relative response of the optics at a pixel: 1 at the center, falling off
// quadratically with radius to 1-vignetting in the corners
func (p *Params) Response(row, col int) float64 {
	cy, cx := float64(p.Rows-1)/2, float64(p.Cols-1)/2
	dy, dx := float64(row)-cy, float64(col)-cx
	rMaxSq := cy*cy + cx*cx
	if rMaxSq == 0 {
		return 1
	}
	return 1 - p.Vignetting*(dy*dy+dx*dx)/rMaxSq
}

// Uniform noise factor in [1-amp, 1+amp)
func jitter(amp float64) float64 {
	if amp == 0 {
		return 1
	}
	u := float64(fastrand.Uint32n(1<<24))/(1<<23) - 1
	return 1 + amp*u
}

// Creates a master flat with the configured vignetting and noise
func Flat(p Params) (*exposure.Exposure[float32], error) {
	return render(p, p.FlatLevel)
}

// Creates a chunk exposure of uniform sky seen through the same optics as the flat
func Chunk(p Params) (*exposure.Exposure[float32], error) {
	return render(p, p.Sky)
}

func render(p Params, level float64) (*exposure.Exposure[float32], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := exposure.New[float32](p.Rows, p.Cols)
	for row := 0; row < p.Rows; row++ {
		for col := 0; col < p.Cols; col++ {
			e.Image[row*p.Cols+col] = float32(level * p.Response(row, col) * jitter(p.Noise))
		}
	}
	e.Metadata.Set("CCDID", exposure.Int(p.CCDID))
	e.Metadata.Set("FILTER", exposure.String(p.Filter))
	return e, nil
}
