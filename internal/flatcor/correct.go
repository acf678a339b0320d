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


package flatcor

import (
	"fmt"
	"math"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/policy"
	"github.com/mlnoga/flatfield/internal/stats"
)

// Overall factor applied to the flat: the stretch, times the flat field
// scale if one is set and nonzero
func ScaleFactor(stretch float64, scale policy.OptionalFloat) float64 {
	if scale.Applies() {
		return stretch * scale.Value
	}
	return stretch
}

// Multiplies every pixel of an owned flat by stretch, then by scale if set
// and nonzero. Variance scales by the square of the combined factor
func ScaleMaster[T exposure.Float](flat *exposure.Exposure[T], stretch float64, scale policy.OptionalFloat) {
	if stretch == 1 && !scale.Applies() {
		return
	}
	factor := ScaleFactor(stretch, scale)
	factorSq := factor * factor
	img, vari := flat.Image, flat.Variance
	stats.ForEachBlock(len(img), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			v := float64(img[i]) * stretch
			if scale.Applies() {
				v *= scale.Value
			}
			img[i] = T(v)
		}
		if vari != nil {
			for i := lo; i < hi; i++ {
				vari[i] = T(float64(vari[i]) * factorSq)
			}
		}
	})
}

// True if a flat pixel cannot serve as divisor
func invalidDivisor[T exposure.Float](v T) bool {
	return v == 0 || !exposure.IsFinite(v)
}

// Divides the chunk by the flat pixel by pixel, in place. With variance on
// the chunk, the result variance is (var_a + c²·var_b)/b² for c=a/b, taking
// var_b as zero if the flat tracks no variance. Zero or non-finite divisors
// either mask the output pixel as NaN with MaskFlatInvalid set, or fail with
// DivisionByZero before the chunk is touched. Returns the number of masked pixels
func DivideByFlat[T exposure.Float](chunk, flat *exposure.Exposure[T], mode policy.ZeroDivisorMode) (invalid int, err error) {
	if err := checkPlanes(chunk, flat, StepApplyCorrection); err != nil {
		return 0, err
	}
	if !chunk.SameSize(flat) {
		return 0, &Error{Code: CodeSizeMismatch, Step: StepApplyCorrection,
			Message: fmt.Sprintf("chunk is %dx%d, flat is %dx%d", chunk.Rows, chunk.Cols, flat.Rows, flat.Cols)}
	}
	n := chunk.Pixels()

	if mode == policy.ZeroDivisorFail {
		bad := countBlocks(n, func(lo, hi int) int {
			c := 0
			for _, b := range flat.Image[lo:hi] {
				if invalidDivisor(b) {
					c++
				}
			}
			return c
		})
		if bad > 0 {
			return 0, &Error{Code: CodeDivisionByZero, Step: StepApplyCorrection, Side: SideMaster,
				Message: fmt.Sprintf("%d flat pixels are zero or not finite", bad)}
		}
	}

	a, va, mask := chunk.Image, chunk.Variance, chunk.Mask
	b, vb := flat.Image, flat.Variance
	nan := T(math.NaN())
	invalid = countBlocks(n, func(lo, hi int) int {
		c := 0
		for i := lo; i < hi; i++ {
			if invalidDivisor(b[i]) {
				a[i] = nan
				if va != nil {
					va[i] = nan
				}
				mask[i] |= exposure.MaskFlatInvalid
				c++
				continue
			}
			bi := float64(b[i])
			q := float64(a[i]) / bi
			if va != nil {
				v := float64(va[i])
				if vb != nil {
					v += q * q * float64(vb[i])
				}
				va[i] = T(v / (bi * bi))
			}
			a[i] = T(q)
		}
		return c
	})
	return invalid, nil
}

// Runs fn over all blocks in parallel and sums the per-block counts
func countBlocks(n int, fn func(lo, hi int) int) int {
	counts := make([]int, stats.NumBlocks(n))
	stats.ForEachBlock(n, func(block, lo, hi int) {
		counts[block] = fn(lo, hi)
	})
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}
