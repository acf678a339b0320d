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

package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mlnoga/flatfield/internal/exposure"
)

var ErrEmptyImage = errors.New("image has no pixels")

// Basic statistics of an image. Mask is not consulted, all pixels participate
type Basic struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"` // Population standard deviation
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func (s Basic) String() string {
	return fmt.Sprintf("n %d mean %.6g stdDev %.6g min %.6g max %.6g", s.N, s.Mean, s.StdDev, s.Min, s.Max)
}

// Computes count, mean and standard deviation in two passes: sum and
// extrema first, then the sum of squared deviations from the mean
func Compute[T exposure.Float](data []T) (Basic, error) {
	n := len(data)
	if n == 0 {
		return Basic{}, ErrEmptyImage
	}
	numBlocks := NumBlocks(n)

	sums := make([]float64, numBlocks)
	mins := make([]float64, numBlocks)
	maxs := make([]float64, numBlocks)
	ForEachBlock(n, func(b, lo, hi int) {
		sum, min, max := 0.0, math.Inf(1), math.Inf(-1)
		for _, v := range data[lo:hi] {
			f := float64(v)
			sum += f
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		sums[b], mins[b], maxs[b] = sum, min, max
	})
	mean := floats.Sum(sums) / float64(n)

	sumSqs := make([]float64, numBlocks)
	ForEachBlock(n, func(b, lo, hi int) {
		sumSq := 0.0
		for _, v := range data[lo:hi] {
			d := float64(v) - mean
			sumSq += d * d
		}
		sumSqs[b] = sumSq
	})

	return Basic{
		N:      n,
		Mean:   mean,
		StdDev: math.Sqrt(floats.Sum(sumSqs) / float64(n)),
		Min:    floats.Min(mins),
		Max:    floats.Max(maxs),
	}, nil
}

// Result of iterative sigma clipping
type Clipped struct {
	N          int     `json:"n"` // Pixels surviving the clipping
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stdDev"` // Sample standard deviation of the survivors
	Iterations int     `json:"iterations"`
}

func (c Clipped) String() string {
	return fmt.Sprintf("n %d mean %.6g stdDev %.6g after %d iterations", c.N, c.Mean, c.StdDev, c.Iterations)
}

// Iteratively rejects pixels more than kappa standard deviations away from
// the mean, until no more pixels are rejected or maxIter is reached.
// Non-finite pixels are dropped up front
func SigmaClipped[T exposure.Float](data []T, kappa float64, maxIter int) (Clipped, error) {
	if !(kappa > 0) {
		return Clipped{}, fmt.Errorf("clipping threshold must be positive, got %g", kappa)
	}
	vals := make([]float64, 0, len(data))
	for _, v := range data {
		if exposure.IsFinite(v) {
			vals = append(vals, float64(v))
		}
	}
	if len(vals) == 0 {
		return Clipped{}, ErrEmptyImage
	}

	res := Clipped{}
	for res.Iterations < maxIter && len(vals) >= 2 {
		mean, std := stat.MeanStdDev(vals, nil)
		res.Iterations++

		lo, hi := mean-kappa*std, mean+kappa*std
		kept := make([]float64, 0, len(vals))
		for _, v := range vals {
			if v >= lo && v <= hi {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(vals) || len(kept) == 0 {
			break
		}
		vals = kept
	}

	res.N = len(vals)
	if len(vals) >= 2 {
		res.Mean, res.StdDev = stat.MeanStdDev(vals, nil)
	} else {
		res.Mean = vals[0]
	}
	return res, nil
}
