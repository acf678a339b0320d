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
	"errors"
	"fmt"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/flatcor"
	"github.com/mlnoga/flatfield/internal/policy"
	"github.com/mlnoga/flatfield/internal/stats"
)

// Load master flat from file and report its statistics
func LoadMaster(fileName string) (*exposure.Exposure[float32], error) {
	master, err := exposure.ReadFile[float32](fileName)
	if err != nil {
		return nil, fmt.Errorf("loading master flat: %w", err)
	}
	st, err := stats.Compute(master.Image)
	if err != nil {
		return nil, fmt.Errorf("master flat %s: %w", fileName, err)
	}
	LogPrintf("Master flat %s %dx%d stats: %v\n", fileName, master.Rows, master.Cols, st)

	if (st.Min <= 0 && st.Max >= 0) || st.StdDev < 1e-8 {
		LogWarnf("Master flat %s may be degenerate\n", fileName)
	}
	return master, nil
}

// Parameters for flat field correcting a batch of chunk exposures
type CorrectParams struct {
	Master     string // Master flat file
	Algorithm  string // Algorithm policy file
	Dataset    string // Dataset policy file, defaults to the algorithm policy file
	OutPattern string // Output file pattern with one %d for the chunk index. Empty to skip writing
	Memory     int64  // Memory limit in MB for concurrent chunks, 0 for automatic
}

// Print parameters for flat field correction
func (p *CorrectParams) String() string {
	return fmt.Sprintf("master %s algorithm %s dataset %s out %s memory %dMB",
		p.Master, p.Algorithm, p.Dataset, p.OutPattern, p.Memory)
}

// Load both policies named in the parameters
func (p *CorrectParams) LoadPolicies() (alg policy.Algorithm, ds policy.Dataset, err error) {
	alg, err = policy.LoadAlgorithm(p.Algorithm)
	if err != nil {
		return alg, ds, err
	}
	dsFile := p.Dataset
	if dsFile == "" {
		dsFile = p.Algorithm
	}
	ds, err = policy.LoadDataset(dsFile)
	return alg, ds, err
}

// Flat field correct all chunks against the shared master, limiting concurrency to
// imageLevelParallelism. The master is read only and shared. Returns the number of failures
func CorrectChunks(ids []int, fileNames []string, master *exposure.Exposure[float32],
	alg policy.Algorithm, ds policy.Dataset, outPattern string, imageLevelParallelism int32) (numErrors int) {
	errs := make([]error, len(fileNames))
	sem := make(chan bool, imageLevelParallelism)
	for i, fileName := range fileNames {
		id := ids[i]
		sem <- true
		go func(i int, id int, fileName string) {
			defer func() { <-sem }()
			errs[i] = CorrectChunk(id, fileName, master, alg, ds, outPattern)
			if errs[i] != nil {
				LogPrintf("%d: Error: %s\n", id, errs[i].Error())
			}
		}(i, id, fileName)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}

	for _, err := range errs {
		if err != nil {
			numErrors++
		}
	}
	return numErrors
}

// Flat field correct a single chunk exposure from file, and write the result
// if an output pattern is given
func CorrectChunk(id int, fileName string, master *exposure.Exposure[float32],
	alg policy.Algorithm, ds policy.Dataset, outPattern string) error {
	chunk, err := exposure.ReadFile[float32](fileName)
	if err != nil {
		return err
	}

	stage := flatcor.NewStage[float32](alg, ds)
	stage.Log = Logger().With().Int("id", id).Logger()
	_, res, err := stage.Run(chunk, master)
	if err != nil {
		if errors.Is(err, flatcor.ErrAlreadyCorrected) {
			return fmt.Errorf("%s: skipping, %w", fileName, err)
		}
		return fmt.Errorf("%s: %w", fileName, err)
	}

	if res.Normalized {
		LogPrintf("%d: Normalized master by mean %.6g (sigma %.4g), scale %.4g\n", id, res.FlatStats.Mean, res.FlatStats.StdDev, res.ScaleFactor)
	} else {
		LogPrintf("%d: Master pre-normalized per %s, scale %.4g\n", id, ds.NormalizeKey, res.ScaleFactor)
	}
	if res.ClippedStats != nil {
		LogPrintf("%d: Sigma-clipped master %v\n", id, res.ClippedStats)
	}
	if res.InvalidDivisors > 0 {
		LogWarnf("%d: Masked %d pixels (%.2f%%) with zero or invalid flat\n",
			id, res.InvalidDivisors, 100.0*float32(res.InvalidDivisors)/float32(chunk.Pixels()))
	}

	if outPattern != "" {
		outName := fmt.Sprintf(outPattern, id)
		if err := chunk.WriteFile(outName); err != nil {
			return fmt.Errorf("writing %s: %w", outName, err)
		}
		LogPrintf("%d: Wrote %s\n", id, outName)
	}
	return nil
}
