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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/policy"
	"github.com/mlnoga/flatfield/internal/provenance"
	"github.com/mlnoga/flatfield/internal/stats"
)

const normalizeKey = "IMRED_NF"

func frame[T exposure.Float](t *testing.T, rows, cols int, data []T) *exposure.Exposure[T] {
	t.Helper()
	e, err := exposure.FromImage(rows, cols, data)
	require.NoError(t, err)
	e.Metadata.Set("CCDID", exposure.Int(1))
	e.Metadata.Set(FilterKey, exposure.Int(1))
	return e
}

func dataset() policy.Dataset {
	return policy.Dataset{Name: "test", NormalizeKey: normalizeKey}
}

func codeOf(t *testing.T, err error) Code {
	t.Helper()
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok, "not a stage error: %v", err)
	return code
}

func TestSecondCorrectionIsRejected(t *testing.T) {
	chunk := frame(t, 2, 2, []float32{10, 20, 30, 40})
	master := frame(t, 2, 2, []float32{2, 4, 6, 8})

	out, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	require.NoError(t, err)
	require.Same(t, chunk, out)
	after := append([]float32(nil), chunk.Image...)

	out, err = Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrAlreadyCorrected)
	assert.Equal(t, after, chunk.Image)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, StepCheckNotYetCorrected, fe.Step)
}

func TestSizeMismatchMutatesNothing(t *testing.T) {
	sizes := []struct{ cr, cc, mr, mc int }{
		{2, 2, 2, 3},
		{3, 2, 2, 3},
		{4, 4, 4, 1},
		{0, 4, 4, 0},
	}
	for _, s := range sizes {
		t.Run(fmt.Sprintf("%dx%d_vs_%dx%d", s.cr, s.cc, s.mr, s.mc), func(t *testing.T) {
			chunk := frame(t, s.cr, s.cc, make([]float32, s.cr*s.cc))
			for i := range chunk.Image {
				chunk.Image[i] = float32(i + 1)
			}
			master := frame(t, s.mr, s.mc, make([]float32, s.mr*s.mc))
			for i := range master.Image {
				master.Image[i] = 1
			}
			chunkBefore, masterBefore := chunk.Clone(), master.Clone()

			_, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
			assert.Equal(t, CodeSizeMismatch, codeOf(t, err))
			assert.Equal(t, chunkBefore, chunk)
			assert.Equal(t, masterBefore, master)
		})
	}
}

func TestIdentityMismatch(t *testing.T) {
	chunk := frame(t, 1, 1, []float32{1})
	master := frame(t, 1, 1, []float32{1})
	chunk.Metadata.Set("CCDID", exposure.Int(5))
	master.Metadata.Set("CCDID", exposure.Int(7))

	_, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.False(t, provenance.HasMarker(chunk.Metadata, provenance.FlatCorrected))
}

func TestAmpIdentity(t *testing.T) {
	alg := policy.DefaultAlgorithm()
	alg.ChunkType, alg.ChunkTypeName = policy.ChunkAmp, "amp"

	chunk := frame(t, 1, 1, []float32{1})
	master := frame(t, 1, 1, []float32{1})
	_, err := Correct(chunk, master, alg, dataset())
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, CodeMetadataNotFound, fe.Code)
	assert.Equal(t, SideChunk, fe.Side)
	assert.Equal(t, "AMPID", fe.Key)

	chunk.Metadata.Set("AMPID", exposure.Int(3))
	master.Metadata.Set("AMPID", exposure.Int(4))
	_, err = Correct(chunk, master, alg, dataset())
	assert.Equal(t, CodeIdentityMismatch, codeOf(t, err))

	master.Metadata.Set("AMPID", exposure.Int(3))
	_, err = Correct(chunk, master, alg, dataset())
	assert.NoError(t, err)
}

func TestMissingMasterFilter(t *testing.T) {
	chunk := frame(t, 1, 1, []float32{1})
	master, err := exposure.FromImage(1, 1, []float32{1})
	require.NoError(t, err)
	master.Metadata.Set("CCDID", exposure.Int(1))

	_, err = Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, CodeMetadataNotFound, fe.Code)
	assert.Equal(t, SideMaster, fe.Side)
	assert.Equal(t, FilterKey, fe.Key)
	assert.Contains(t, err.Error(), "master")
}

func TestFilterMismatch(t *testing.T) {
	chunk := frame(t, 1, 1, []float32{1})
	master := frame(t, 1, 1, []float32{1})
	chunk.Metadata.Set(FilterKey, exposure.Int(2))
	master.Metadata.Set(FilterKey, exposure.Int(3))

	_, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	assert.Equal(t, CodeFilterMismatch, codeOf(t, err))
}

func TestUnsupportedChunkTypeIsReported(t *testing.T) {
	alg := policy.DefaultAlgorithm()
	alg.ChunkType, alg.ChunkTypeName = policy.ParseChunkType("raft"), "raft"

	chunk := frame(t, 1, 1, []float32{1})
	master := frame(t, 1, 1, []float32{1})
	_, err := Correct(chunk, master, alg, dataset())
	assert.ErrorIs(t, err, ErrUnsupportedChunkType)
	assert.Contains(t, err.Error(), "raft")
}

func TestNormalizeMasterToUnitMean(t *testing.T) {
	chunk := frame(t, 2, 2, []float32{10, 20, 30, 40})
	master := frame(t, 2, 2, []float32{2, 4, 6, 8})

	norm, st, err := NormalizeMaster(chunk, master, normalizeKey, stats.Compute[float32])
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.InDelta(t, 5.0, st.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5), st.StdDev, 1e-12)
	assert.InDeltaSlice(t, []float32{0.4, 0.8, 1.2, 1.6}, norm.Image, 1e-6)
	assert.Equal(t, []float32{2, 4, 6, 8}, master.Image)
}

func TestDivideByNormalizedFlat(t *testing.T) {
	chunk := frame(t, 2, 2, []float32{10, 20, 30, 40})
	flat := frame(t, 2, 2, []float32{0.4, 0.8, 1.2, 1.6})
	ScaleMaster(flat, 1.0, policy.None)

	invalid, err := DivideByFlat(chunk, flat, policy.ZeroDivisorMask)
	require.NoError(t, err)
	assert.Zero(t, invalid)
	assert.InDeltaSlice(t, []float32{25, 25, 25, 25}, chunk.Image, 1e-4)
}

func TestEndToEndPreNormalized(t *testing.T) {
	chunkData := make([]float32, 16)
	masterData := make([]float32, 16)
	for i := range chunkData {
		chunkData[i] = float32(100 + 7*i)
		masterData[i] = 0.5 + 0.0625*float32(i)
	}
	chunk := frame(t, 4, 4, chunkData)
	chunk.Metadata.Set(normalizeKey, exposure.Bool(true))
	master := frame(t, 4, 4, append([]float32(nil), masterData...))
	want := make([]float32, 16)
	for i := range want {
		want[i] = chunkData[i] / masterData[i]
	}

	out, res, err := NewStage[float32](policy.DefaultAlgorithm(), dataset()).Run(chunk, master)
	require.NoError(t, err)
	assert.False(t, res.Normalized)
	assert.Nil(t, res.FlatStats)
	assert.Equal(t, 1.0, res.ScaleFactor)
	assert.InDeltaSlice(t, want, out.Image, 1e-3)

	v, ok := out.Metadata.Get(provenance.FlatCorrected)
	require.True(t, ok)
	assert.True(t, v.Equal(exposure.String("Complete")))
	assert.Equal(t, masterData, master.Image)
}

func TestSkipNormalizationDoesNotComputeStats(t *testing.T) {
	calls := 0
	counting := func(data []float32) (stats.Basic, error) {
		calls++
		return stats.Compute(data)
	}

	chunk := frame(t, 2, 2, []float32{1, 2, 3, 4})
	chunk.Metadata.Set(normalizeKey, exposure.String("Elixir"))
	master := frame(t, 2, 2, []float32{0.9, 1.1, 1.0, 1.0})
	before := master.Clone()

	stage := NewStage[float32](policy.DefaultAlgorithm(), dataset())
	stage.computeStats = counting
	_, res, err := stage.Run(chunk, master)
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.False(t, res.Normalized)
	assert.Equal(t, before.Image, master.Image)

	chunk = frame(t, 2, 2, []float32{1, 2, 3, 4})
	_, res, err = stage.Run(chunk, master)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, res.Normalized)
	assert.Equal(t, before.Image, master.Image)
}

func TestZeroDivisorMasked(t *testing.T) {
	chunk := frame(t, 2, 2, []float32{2, 4, 6, 8})
	chunk.Metadata.Set(normalizeKey, exposure.Bool(true))
	master := frame(t, 2, 2, []float32{1, 0, float32(math.NaN()), 2})

	_, res, err := NewStage[float32](policy.DefaultAlgorithm(), dataset()).Run(chunk, master)
	require.NoError(t, err)
	assert.Equal(t, 2, res.InvalidDivisors)
	assert.Equal(t, float32(2), chunk.Image[0])
	assert.True(t, math.IsNaN(float64(chunk.Image[1])))
	assert.True(t, math.IsNaN(float64(chunk.Image[2])))
	assert.Equal(t, float32(4), chunk.Image[3])
	assert.Equal(t, []exposure.MaskPixel{0, exposure.MaskFlatInvalid, exposure.MaskFlatInvalid, 0}, chunk.Mask)
}

func TestZeroDivisorFailsBeforeTouchingChunk(t *testing.T) {
	alg := policy.DefaultAlgorithm()
	alg.ZeroDivisor = policy.ZeroDivisorFail

	chunk := frame(t, 2, 2, []float32{2, 4, 6, 8})
	chunk.Metadata.Set(normalizeKey, exposure.Bool(true))
	master := frame(t, 2, 2, []float32{1, 1, 0, 2})
	before := chunk.Clone()

	_, err := Correct(chunk, master, alg, dataset())
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.Equal(t, before, chunk)
}

func TestFlatFieldScaleIsOptional(t *testing.T) {
	run := func(alg policy.Algorithm) (*exposure.Exposure[float64], Result) {
		chunk := frame(t, 1, 2, []float64{10, 20})
		chunk.Metadata.Set(normalizeKey, exposure.Bool(true))
		master := frame(t, 1, 2, []float64{2, 4})
		_, res, err := NewStage[float64](alg, dataset()).Run(chunk, master)
		require.NoError(t, err)
		return chunk, res
	}

	alg := policy.DefaultAlgorithm()
	chunk, res := run(alg)
	assert.Equal(t, []float64{5, 5}, chunk.Image)
	assert.Equal(t, 1.0, res.ScaleFactor)

	alg.StretchFactor, alg.FlatFieldScale = 2, policy.Some(2.5)
	chunk, res = run(alg)
	assert.InDeltaSlice(t, []float64{1, 1}, chunk.Image, 1e-12)
	assert.Equal(t, 5.0, res.ScaleFactor)

	// a zero scale is no scale
	alg.StretchFactor, alg.FlatFieldScale = 1, policy.Some(0)
	chunk, res = run(alg)
	assert.Equal(t, []float64{5, 5}, chunk.Image)
	assert.Equal(t, 1.0, res.ScaleFactor)
	assert.Equal(t, 0, res.InvalidDivisors)
}

func TestZeroScalePolicyFileCorrectsNormally(t *testing.T) {
	alg, err := policy.LoadAlgorithm("../policy/testdata/zero_scale.toml")
	require.NoError(t, err)

	chunk := frame(t, 2, 2, []float32{10, 20, 30, 40})
	master := frame(t, 2, 2, []float32{2, 4, 6, 8})
	_, res, err := NewStage[float32](alg, dataset()).Run(chunk, master)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.ScaleFactor)
	assert.Equal(t, 0, res.InvalidDivisors)
	assert.InDeltaSlice(t, []float32{25, 25, 25, 25}, chunk.Image, 1e-4)
	assert.True(t, provenance.HasMarker(chunk.Metadata, provenance.FlatCorrected))
}

func TestZeroStretchLeavesChunkUncorrected(t *testing.T) {
	chunk := frame(t, 1, 2, []float64{10, 20})
	master := frame(t, 1, 2, []float64{2, 4})
	before := chunk.Clone()

	alg := policy.DefaultAlgorithm()
	alg.StretchFactor = 0
	_, err := Correct(chunk, master, alg, dataset())
	assert.Equal(t, CodeDegenerateFlat, codeOf(t, err))
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, StepComputeScaleParameters, fe.Step)
	assert.Equal(t, before, chunk)
	assert.False(t, provenance.HasMarker(chunk.Metadata, provenance.FlatCorrected))
}

func TestInconsistentPlanesAreSizeMismatch(t *testing.T) {
	cases := []struct {
		name   string
		side   Side
		mutate func(chunk, master *exposure.Exposure[float32])
	}{
		{"chunk without mask", SideChunk, func(c, _ *exposure.Exposure[float32]) { c.Mask = nil }},
		{"short chunk image", SideChunk, func(c, _ *exposure.Exposure[float32]) { c.Image = c.Image[:3] }},
		{"short master image", SideMaster, func(_, m *exposure.Exposure[float32]) { m.Image = m.Image[:2] }},
		{"short master variance", SideMaster, func(_, m *exposure.Exposure[float32]) { m.Variance = []float32{1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunk := frame(t, 2, 2, []float32{10, 20, 30, 40})
			master := frame(t, 2, 2, []float32{2, 4, 6, 8})
			tc.mutate(chunk, master)

			_, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
			assert.Equal(t, CodeSizeMismatch, codeOf(t, err))
			var fe *Error
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tc.side, fe.Side)
			assert.False(t, provenance.HasMarker(chunk.Metadata, provenance.FlatCorrected))
		})
	}

	chunk := &exposure.Exposure[float32]{Rows: 1, Cols: 2, Image: []float32{1, 2}}
	flat := frame(t, 1, 2, []float32{1, 1})
	_, err := DivideByFlat(chunk, flat, policy.ZeroDivisorMask)
	assert.Equal(t, CodeSizeMismatch, codeOf(t, err))
}

func TestNonFiniteFlatPixel(t *testing.T) {
	master := frame(t, 1, 2, []float64{2, math.NaN()})

	chunk := frame(t, 1, 2, []float64{10, 20})
	_, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	assert.Equal(t, CodeDegenerateFlat, codeOf(t, err))

	chunk = frame(t, 1, 2, []float64{10, 20})
	chunk.Metadata.Set(normalizeKey, exposure.Bool(true))
	_, res, err := NewStage[float64](policy.DefaultAlgorithm(), dataset()).Run(chunk, master)
	require.NoError(t, err)
	assert.Equal(t, 1, res.InvalidDivisors)
	assert.Equal(t, 5.0, chunk.Image[0])
	assert.True(t, math.IsNaN(chunk.Image[1]))
}

func TestVariancePropagation(t *testing.T) {
	chunk := frame(t, 1, 1, []float64{10})
	require.NoError(t, chunk.SetVariance([]float64{4}))
	chunk.Metadata.Set(normalizeKey, exposure.Bool(true))
	master := frame(t, 1, 1, []float64{2})
	require.NoError(t, master.SetVariance([]float64{0.01}))

	_, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	require.NoError(t, err)
	assert.InDelta(t, 5.0, chunk.Image[0], 1e-12)
	assert.InDelta(t, (4+25*0.01)/4, chunk.Variance[0], 1e-12)
	assert.Equal(t, []float64{0.01}, master.Variance)
}

func TestNormalizationScalesVariance(t *testing.T) {
	chunk := frame(t, 1, 2, []float64{1, 1})
	master := frame(t, 1, 2, []float64{1, 3})
	require.NoError(t, master.SetVariance([]float64{0.4, 0.8}))

	norm, st, err := NormalizeMaster(chunk, master, normalizeKey, stats.Compute[float64])
	require.NoError(t, err)
	assert.Equal(t, 2.0, st.Mean)
	assert.InDeltaSlice(t, []float64{0.1, 0.2}, norm.Variance, 1e-12)
}

func TestEmptyAndDegenerateFlats(t *testing.T) {
	chunk := frame(t, 0, 0, []float32{})
	master := frame(t, 0, 0, []float32{})
	_, err := Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	assert.ErrorIs(t, err, ErrEmptyImage)

	chunk = frame(t, 1, 2, []float32{1, 2})
	master = frame(t, 1, 2, []float32{1, -1})
	_, err = Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	assert.ErrorIs(t, err, ErrDegenerateFlat)

	master = frame(t, 1, 2, []float32{1, float32(math.Inf(1))})
	_, err = Correct(chunk, master, policy.DefaultAlgorithm(), dataset())
	assert.ErrorIs(t, err, ErrDegenerateFlat)
	assert.Equal(t, []float32{1, 2}, chunk.Image)
}

func TestSigmaClippedDiagnostics(t *testing.T) {
	alg := policy.DefaultAlgorithm()
	alg.SigClip, alg.SigClipVal = true, 3

	chunk := frame(t, 2, 2, []float32{1, 1, 1, 1})
	master := frame(t, 2, 2, []float32{1, 1, 1, 1})
	_, res, err := NewStage[float32](alg, dataset()).Run(chunk, master)
	require.NoError(t, err)
	require.NotNil(t, res.ClippedStats)
	assert.Equal(t, 4, res.ClippedStats.N)
	assert.InDeltaSlice(t, []float32{1, 1, 1, 1}, chunk.Image, 1e-6)
}

func TestWrappedErrorsKeepTheirCode(t *testing.T) {
	err := fmt.Errorf("chunk 3: %w", &Error{Code: CodeFilterMismatch, Step: StepValidateCompatibility, Message: "x"})
	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeFilterMismatch, code)
	assert.ErrorIs(t, err, ErrFilterMismatch)
	assert.NotErrorIs(t, err, ErrSizeMismatch)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, "ApplyCorrection", StepApplyCorrection.String())
}
