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

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/policy"
)

const FilterKey = "FILTER"

// Checks that chunk and master flat have consistent planes and the same
// size, were taken from the same physical pixels and through the same
// filter. Fails on the first mismatch. Does not modify either exposure
func ValidateCompatibility[T exposure.Float](chunk, master *exposure.Exposure[T], chunkType policy.ChunkType, chunkTypeName string) error {
	if err := checkPlanes(chunk, master, StepValidateCompatibility); err != nil {
		return err
	}
	if !chunk.SameSize(master) {
		return &Error{
			Code:    CodeSizeMismatch,
			Step:    StepValidateCompatibility,
			Message: fmt.Sprintf("chunk is %dx%d, master is %dx%d", chunk.Rows, chunk.Cols, master.Rows, master.Cols),
		}
	}

	idKey, ok := chunkType.IdentityKey()
	if !ok {
		return &Error{
			Code:    CodeUnsupportedChunkType,
			Step:    StepValidateCompatibility,
			Message: fmt.Sprintf("no identity check for chunk type %q", chunkTypeName),
		}
	}
	if err := matchKey(chunk, master, idKey, CodeIdentityMismatch, "not derived from the same pixels"); err != nil {
		return err
	}

	return matchKey(chunk, master, FilterKey, CodeFilterMismatch, "not taken through the same filter")
}

// Reports the first exposure whose planes do not match its dimensions
func checkPlanes[T exposure.Float](chunk, master *exposure.Exposure[T], step Step) error {
	for _, in := range []struct {
		side Side
		e    *exposure.Exposure[T]
	}{{SideChunk, chunk}, {SideMaster, master}} {
		if err := in.e.CheckPlanes(); err != nil {
			return &Error{Code: CodeSizeMismatch, Step: step, Side: in.side,
				Message: fmt.Sprintf("%s planes inconsistent", in.side), Err: err}
		}
	}
	return nil
}

// Requires key on both sides with equal values
func matchKey[T exposure.Float](chunk, master *exposure.Exposure[T], key string, mismatch Code, what string) error {
	cv, err := requireKey(chunk.Metadata, SideChunk, key)
	if err != nil {
		return err
	}
	mv, err := requireKey(master.Metadata, SideMaster, key)
	if err != nil {
		return err
	}
	if !cv.Equal(mv) {
		return &Error{
			Code:    mismatch,
			Step:    StepValidateCompatibility,
			Key:     key,
			Message: fmt.Sprintf("%s: chunk %s=%s, master %s=%s", what, key, cv, key, mv),
		}
	}
	return nil
}

func requireKey(md *exposure.Metadata, side Side, key string) (exposure.Value, error) {
	v, ok := md.Get(key)
	if !ok {
		return exposure.Value{}, &Error{
			Code:    CodeMetadataNotFound,
			Step:    StepValidateCompatibility,
			Side:    side,
			Key:     key,
			Message: fmt.Sprintf("could not get %s from the %s metadata", key, side),
		}
	}
	return v, nil
}
