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


// Package policy holds the tunable parameters of the flat field stage: an
// algorithm policy shared across datasets, and a dataset policy with the
// quirks of one data source.
package policy

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Granularity of a chunk exposure, which selects the identity key to match
type ChunkType int

const (
	ChunkUnsupported ChunkType = iota // Anything else, e.g. raft. Reported, never silently skipped
	ChunkAmp                          // One amplifier, matched on AMPID
	ChunkCcd                          // One detector, matched on CCDID
)

// Parses a chunk type discriminator. Unknown values map to ChunkUnsupported
func ParseChunkType(s string) ChunkType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amp":
		return ChunkAmp
	case "ccd":
		return ChunkCcd
	}
	return ChunkUnsupported
}

// Metadata key identifying the physical pixels of a chunk of this type
func (c ChunkType) IdentityKey() (key string, ok bool) {
	switch c {
	case ChunkAmp:
		return "AMPID", true
	case ChunkCcd:
		return "CCDID", true
	}
	return "", false
}

func (c ChunkType) String() string {
	switch c {
	case ChunkAmp:
		return "amp"
	case ChunkCcd:
		return "ccd"
	}
	return "unsupported"
}

// An optional float. The zero value is unset
type OptionalFloat struct {
	Value float64
	Set   bool
}

func Some(v float64) OptionalFloat { return OptionalFloat{Value: v, Set: true} }

var None = OptionalFloat{}

// True if set to a nonzero value. A scale of zero is no scale
func (o OptionalFloat) Applies() bool {
	return o.Set && o.Value != 0
}

func (o OptionalFloat) String() string {
	if !o.Set {
		return "none"
	}
	return fmt.Sprintf("%.4g", o.Value)
}

// What the correction does with a flat pixel that cannot be divided by
type ZeroDivisorMode int

const (
	ZeroDivisorMask ZeroDivisorMode = iota // Output NaN and set the mask bit, continue
	ZeroDivisorFail                        // Fail the whole stage before touching the chunk
)

func ParseZeroDivisorMode(s string) (ZeroDivisorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mask":
		return ZeroDivisorMask, nil
	case "fail":
		return ZeroDivisorFail, nil
	}
	return 0, fmt.Errorf("unknown zero divisor mode %q", s)
}

func (m ZeroDivisorMode) String() string {
	if m == ZeroDivisorFail {
		return "fail"
	}
	return "mask"
}

// Parameters of the flat field correction algorithm
type Algorithm struct {
	ChunkType      ChunkType
	ChunkTypeName  string          // Discriminator as configured, for error messages
	FlatFieldScale OptionalFloat   // Extra divisor scale, applied only if set and nonzero
	StretchFactor  float64         // Dynamic range stretch applied to the flat. 1 is a no-op
	SigClip        bool            // Compute sigma-clipped flat statistics as a diagnostic
	SigClipVal     float64         // Clipping threshold in standard deviations
	ZeroDivisor    ZeroDivisorMode // Handling of zero or non-finite flat pixels
}

// Defaults for programmatic use: ccd chunks, no extra scale, no stretch
func DefaultAlgorithm() Algorithm {
	return Algorithm{
		ChunkType:     ChunkCcd,
		ChunkTypeName: "ccd",
		StretchFactor: 1,
		SigClipVal:    3,
	}
}

// Print algorithm parameters
func (a *Algorithm) String() string {
	return fmt.Sprintf("chunkType %s flatFieldScale %s stretchFactor %.4g sigClip %v sigClipVal %.2f zeroDivisor %s",
		a.ChunkTypeName, a.FlatFieldScale, a.StretchFactor, a.SigClip, a.SigClipVal, a.ZeroDivisor)
}

// Checks parameter ranges. An unsupported chunk type is not an error here,
// it is reported by the stage when validation reaches the identity check
func (a *Algorithm) Validate() error {
	if math.IsNaN(a.StretchFactor) || math.IsInf(a.StretchFactor, 0) {
		return errors.New("stretch factor must be finite")
	}
	if a.StretchFactor == 0 {
		return errors.New("stretch factor must be nonzero")
	}
	if a.FlatFieldScale.Set && (math.IsNaN(a.FlatFieldScale.Value) || math.IsInf(a.FlatFieldScale.Value, 0)) {
		return errors.New("flat field scale must be finite")
	}
	if a.SigClip && !(a.SigClipVal > 0) {
		return fmt.Errorf("sigma clipping threshold must be positive, got %g", a.SigClipVal)
	}
	return nil
}

// Parameters specific to one data source
type Dataset struct {
	Name         string // Label for log output
	NormalizeKey string // Metadata key set when the master flat was normalized upstream, e.g. IMRED_NF for CFHT Elixir
}

func (d *Dataset) String() string {
	return fmt.Sprintf("dataset %s normalizeKey %s", d.Name, d.NormalizeKey)
}

func (d *Dataset) Validate() error {
	if strings.TrimSpace(d.NormalizeKey) == "" {
		return errors.New("normalize key is required")
	}
	return nil
}
