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
	"runtime"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/stats"
)

// Parameters for the statistics command
type StatsParams struct {
	SigClip    bool    // Also compute sigma-clipped statistics
	SigClipVal float64 // Clipping threshold in standard deviations
	SigClipMax int     // Maximum clipping iterations
}

func (p *StatsParams) String() string {
	return fmt.Sprintf("sigClip %v sigClipVal %.2f sigClipMax %d", p.SigClip, p.SigClipVal, p.SigClipMax)
}

// Print statistics for the given flats, limiting concurrency to the number of available CPUs
func CmdStats(fileNames []string, p *StatsParams) error {
	LogPrintf("\nComputing statistics for %d files with %s:\n", len(fileNames), p)

	errs := make([]error, len(fileNames))
	sem := make(chan bool, runtime.NumCPU())
	for id, fileName := range fileNames {
		sem <- true
		go func(id int, fileName string) {
			defer func() { <-sem }()
			errs[id] = statsForFile(id, fileName, p)
			if errs[id] != nil {
				LogPrintf("%d: Error: %s\n", id, errs[id].Error())
			}
		}(id, fileName)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}

	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("statistics failed for some files")
		}
	}
	return nil
}

func statsForFile(id int, fileName string, p *StatsParams) error {
	e, err := exposure.ReadFile[float32](fileName)
	if err != nil {
		return err
	}
	st, err := stats.Compute(e.Image)
	if err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}
	LogPrintf("%d: %s %dx%d %v\n", id, fileName, e.Rows, e.Cols, st)

	if p.SigClip {
		c, err := stats.SigmaClipped(e.Image, p.SigClipVal, p.SigClipMax)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}
		LogPrintf("%d: Sigma-clipped %v\n", id, c)
	}
	if masked := e.CountMasked(exposure.MaskFlatInvalid); masked > 0 {
		LogPrintf("%d: %d pixels masked for invalid flat\n", id, masked)
	}
	return nil
}
