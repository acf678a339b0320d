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


package internal

import (
	"fmt"

	"github.com/mlnoga/flatfield/internal/synth"
)

// Parameters for the synthetic frame command
type SynthParams struct {
	synth.Params
	OutFlat  string // Output file for the flat, empty to skip
	OutChunk string // Output file for the chunk, empty to skip
}

// Generate a synthetic vignetted flat and a matching chunk, and write them as exposure documents
func CmdSynth(p *SynthParams) error {
	if p.OutFlat == "" && p.OutChunk == "" {
		return fmt.Errorf("neither flat nor chunk output given")
	}
	LogPrintf("Generating synthetic frames with %s\n", &p.Params)

	if p.OutFlat != "" {
		flat, err := synth.Flat(p.Params)
		if err != nil {
			return err
		}
		if err := flat.WriteFile(p.OutFlat); err != nil {
			return fmt.Errorf("writing flat: %w", err)
		}
		LogPrintf("Wrote flat %s\n", p.OutFlat)
	}
	if p.OutChunk != "" {
		chunk, err := synth.Chunk(p.Params)
		if err != nil {
			return err
		}
		if err := chunk.WriteFile(p.OutChunk); err != nil {
			return fmt.Errorf("writing chunk: %w", err)
		}
		LogPrintf("Wrote chunk %s\n", p.OutChunk)
	}
	return nil
}
