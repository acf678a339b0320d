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
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/stats"
)

// Computes statistics over the pixels of a flat
type StatsFunc[T exposure.Float] func(data []T) (stats.Basic, error)

// Returns a copy of the master flat normalized to unit mean. If the chunk
// metadata carries normalizeKey, the master is trusted to be normalized
// already, the copy is returned unchanged and computeStats is not called.
// The master itself is never modified. Stats are nil when skipped.
// A single non-finite flat pixel makes the mean non-finite, so normalizing
// rejects such a flat with DegenerateFlat. Non-finite divisors only reach
// the zero divisor policy when the master was normalized upstream
func NormalizeMaster[T exposure.Float](chunk, master *exposure.Exposure[T], normalizeKey string,
	computeStats StatsFunc[T]) (normalized *exposure.Exposure[T], st *stats.Basic, err error) {
	if master.Pixels() == 0 {
		return nil, nil, &Error{Code: CodeEmptyImage, Step: StepNormalizeMasterIfNeeded, Side: SideMaster,
			Message: "master flat has no pixels"}
	}
	if chunk.Metadata.Has(normalizeKey) {
		return master.Clone(), nil, nil
	}

	s, err := computeStats(master.Image)
	if err != nil {
		code := CodeDegenerateFlat
		if errors.Is(err, stats.ErrEmptyImage) {
			code = CodeEmptyImage
		}
		return nil, nil, &Error{Code: code, Step: StepNormalizeMasterIfNeeded, Side: SideMaster,
			Message: "cannot compute flat statistics", Err: err}
	}
	if s.Mean == 0 || math.IsNaN(s.Mean) || math.IsInf(s.Mean, 0) {
		return nil, nil, &Error{Code: CodeDegenerateFlat, Step: StepNormalizeMasterIfNeeded, Side: SideMaster,
			Message: fmt.Sprintf("cannot normalize by mean %g", s.Mean)}
	}

	normalized = master.Clone()
	mu, muSq := s.Mean, s.Mean*s.Mean
	img, vari := normalized.Image, normalized.Variance
	stats.ForEachBlock(len(img), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			img[i] = T(float64(img[i]) / mu)
		}
		if vari != nil {
			for i := lo; i < hi; i++ {
				vari[i] = T(float64(vari[i]) / muSq)
			}
		}
	})
	return normalized, &s, nil
}
