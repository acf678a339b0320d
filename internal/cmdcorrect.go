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
	"runtime/debug"
)

// Bytes per pixel while a chunk is in flight: image, variance and mask planes,
// plus the document buffers while decoding and encoding
const bytesPerChunkPixel = (4 + 4 + 2) * 4

// Perform flat field correction command on the given chunk files
func CmdCorrect(fileNames []string, p *CorrectParams) error {
	if len(fileNames) == 0 {
		return fmt.Errorf("no chunk exposures given")
	}
	alg, ds, err := p.LoadPolicies()
	if err != nil {
		return err
	}
	LogPrintf("Algorithm policy: %s\n", &alg)
	LogPrintf("Dataset policy: %s\n", &ds)

	master, err := LoadMaster(p.Master)
	if err != nil {
		return err
	}

	imageLevelParallelism := ImageLevelParallelism(int64(master.Pixels())*bytesPerChunkPixel, p.Memory)
	ids := make([]int, len(fileNames))
	for i := range ids {
		ids[i] = i
	}
	LogPrintf("\nCorrecting %d chunks with %s, %d at a time:\n", len(fileNames), p, imageLevelParallelism)

	numErrors := CorrectChunks(ids, fileNames, master, alg, ds, p.OutPattern, imageLevelParallelism)

	// Free memory
	master = nil
	debug.FreeOSMemory()

	if numErrors > 0 {
		return fmt.Errorf("%d of %d chunks failed", numErrors, len(fileNames))
	}
	LogPrintf("Corrected %d chunks\n", len(fileNames))
	return nil
}
