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

// Package flatcor divides a chunk exposure by a master flat field to remove
// pixel-to-pixel sensitivity variations such as vignetting, gain and
// thickness variations.
//
// The stage rejects chunks that were already flat fielded, checks that chunk
// and master match in size, detector and filter, normalizes a copy of the
// master to unit mean unless the dataset marks it as normalized upstream,
// applies the configured stretch and scale, divides, and finally records
// ISR_FLATCOR=Complete in the chunk metadata. The master is never modified,
// so one master can be shared across concurrent stages.
//
// Bias subtraction must have been applied to the chunk before.
package flatcor

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/policy"
	"github.com/mlnoga/flatfield/internal/provenance"
	"github.com/mlnoga/flatfield/internal/stats"
)

// Iterations for the sigma-clipped flat diagnostics
const sigClipMaxIter = 5

// What a successful stage did
type Result struct {
	Normalized      bool           `json:"normalized"`             // Master was normalized by this stage
	FlatStats       *stats.Basic   `json:"flatStats,omitempty"`    // Flat statistics, nil if normalization was skipped
	ClippedStats    *stats.Clipped `json:"clippedStats,omitempty"` // Sigma-clipped flat statistics, nil unless enabled
	ScaleFactor     float64        `json:"scaleFactor"`            // Factor applied to the normalized flat
	InvalidDivisors int            `json:"invalidDivisors"`        // Chunk pixels masked for a zero or non-finite divisor
}

// The flat field correction stage for pixel type T. Create with NewStage
type Stage[T exposure.Float] struct {
	Algorithm policy.Algorithm
	Dataset   policy.Dataset
	Log       zerolog.Logger // Receives debug traces only. Failures are returned, not logged

	computeStats StatsFunc[T]
}

func NewStage[T exposure.Float](alg policy.Algorithm, ds policy.Dataset) *Stage[T] {
	return &Stage[T]{
		Algorithm:    alg,
		Dataset:      ds,
		Log:          zerolog.Nop(),
		computeStats: stats.Compute[T],
	}
}

// Flat fields the chunk with the master using the given policies. Returns the
// chunk, corrected in place. On failure the chunk is unchanged
func Correct[T exposure.Float](chunk, master *exposure.Exposure[T], alg policy.Algorithm, ds policy.Dataset) (*exposure.Exposure[T], error) {
	res, _, err := NewStage[T](alg, ds).Run(chunk, master)
	return res, err
}

// Runs the stage steps in order, stopping at the first failure. The chunk is
// only modified once all checks have passed, and the master is never modified
func (s *Stage[T]) Run(chunk, master *exposure.Exposure[T]) (*exposure.Exposure[T], Result, error) {
	var res Result
	log := s.Log.With().Str("stage", "flatcor").Logger()

	// CheckNotYetCorrected
	if provenance.HasMarker(chunk.Metadata, provenance.FlatCorrected) {
		log.Debug().Msg("Exposure has already been flat field corrected")
		return nil, res, &Error{Code: CodeAlreadyCorrected, Step: StepCheckNotYetCorrected, Side: SideChunk,
			Key: provenance.FlatCorrected, Message: "flat field correction previously performed"}
	}

	// ValidateCompatibility
	if err := ValidateCompatibility(chunk, master, s.Algorithm.ChunkType, s.Algorithm.ChunkTypeName); err != nil {
		return nil, res, err
	}

	// NormalizeMasterIfNeeded
	computeStats := s.computeStats
	if computeStats == nil {
		computeStats = stats.Compute[T]
	}
	flat, flatStats, err := NormalizeMaster(chunk, master, s.Dataset.NormalizeKey, computeStats)
	if err != nil {
		return nil, res, err
	}
	res.Normalized, res.FlatStats = flatStats != nil, flatStats
	if flatStats != nil {
		log.Debug().Int("n", flatStats.N).Float64("mu", flatStats.Mean).Float64("sigma", flatStats.StdDev).
			Msg("Normalized master flat")
	} else {
		log.Debug().Str("key", s.Dataset.NormalizeKey).Msg("Master flat has been normalized upstream")
	}
	if s.Algorithm.SigClip {
		clipped, err := stats.SigmaClipped(master.Image, s.Algorithm.SigClipVal, sigClipMaxIter)
		if err != nil {
			log.Debug().Err(err).Msg("Sigma-clipped flat statistics unavailable")
		} else {
			res.ClippedStats = &clipped
			log.Debug().Int("n", clipped.N).Float64("mean", clipped.Mean).Float64("stdDev", clipped.StdDev).
				Float64("kappa", s.Algorithm.SigClipVal).Msg("Sigma-clipped master flat")
		}
	}

	// ComputeScaleParameters
	res.ScaleFactor = ScaleFactor(s.Algorithm.StretchFactor, s.Algorithm.FlatFieldScale)
	if res.ScaleFactor == 0 || math.IsNaN(res.ScaleFactor) || math.IsInf(res.ScaleFactor, 0) {
		return nil, res, &Error{Code: CodeDegenerateFlat, Step: StepComputeScaleParameters, Side: SideMaster,
			Message: fmt.Sprintf("cannot scale flat by %g", res.ScaleFactor)}
	}
	ScaleMaster(flat, s.Algorithm.StretchFactor, s.Algorithm.FlatFieldScale)
	log.Debug().Float64("stretch", s.Algorithm.StretchFactor).Str("scale", s.Algorithm.FlatFieldScale.String()).
		Msg("Scaled master flat")

	// ApplyCorrection
	res.InvalidDivisors, err = DivideByFlat(chunk, flat, s.Algorithm.ZeroDivisor)
	if err != nil {
		return nil, res, err
	}
	if res.InvalidDivisors > 0 {
		log.Debug().Int("pixels", res.InvalidDivisors).Msg("Masked pixels with invalid flat divisor")
	}

	// RecordProvenance
	provenance.SetMarker(chunk.Metadata, provenance.FlatCorrected, provenance.Complete)
	log.Debug().Msg("Flat field correction completed successfully")
	return chunk, res, nil
}
