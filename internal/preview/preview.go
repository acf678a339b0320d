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

// Package preview renders exposures as false-color heat maps, which makes
// vignetting and dust shadows in a flat easy to spot.
package preview

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/stats"
)

// Gradient stops from low to high values
var gradient = []colorful.Color{
	{R: 0.267, G: 0.005, B: 0.329},
	{R: 0.231, G: 0.322, B: 0.545},
	{R: 0.129, G: 0.569, B: 0.549},
	{R: 0.369, G: 0.788, B: 0.384},
	{R: 0.992, G: 0.906, B: 0.145},
}

// Color for pixels which are not finite or flagged invalid
var invalidColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}

// Color for a value in [0,1], blending adjacent gradient stops in HCL space
func ColorAt(t float64) colorful.Color {
	if t <= 0 || math.IsNaN(t) {
		return gradient[0]
	}
	if t >= 1 {
		return gradient[len(gradient)-1]
	}
	pos := t * float64(len(gradient)-1)
	i := int(pos)
	return gradient[i].BlendHcl(gradient[i+1], pos-float64(i)).Clamped()
}

// Renders the exposure with values from lo to hi mapped across the gradient.
// If lo>=hi, the sigma-clipped mean ± 3 standard deviations of the finite pixels are used
func Render[T exposure.Float](e *exposure.Exposure[T], lo, hi float64) (*image.RGBA, error) {
	if !(lo < hi) {
		c, err := stats.SigmaClipped(e.Image, 3, 5)
		if err != nil {
			return nil, err
		}
		lo, hi = c.Mean-3*c.StdDev, c.Mean+3*c.StdDev
		if !(lo < hi) {
			lo, hi = c.Mean-0.5, c.Mean+0.5
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, e.Cols, e.Rows))
	scale := 1 / (hi - lo)
	stats.ForEachBlock(e.Pixels(), func(_, start, end int) {
		for i := start; i < end; i++ {
			x, y := i%e.Cols, i/e.Cols
			v := e.Image[i]
			if !exposure.IsFinite(v) || e.Mask[i]&exposure.MaskFlatInvalid != 0 {
				img.SetRGBA(x, y, invalidColor)
				continue
			}
			r, g, b := ColorAt((float64(v) - lo) * scale).RGB255()
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	})
	return img, nil
}

// Writes an image as PNG file
func WritePNG(fileName string, img image.Image) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
