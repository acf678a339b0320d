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
	"path/filepath"
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// Turn filename wildcards into list of files. Patterns without matches are
// kept verbatim, so the subsequent load reports the missing file
func GlobFilenameWildcards(args []string) ([]string, error) {
	fileNames := []string{}
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		fileNames = append(fileNames, matches...)
	}
	return fileNames, nil
}

// Describe the CPU and memory of this machine, for the startup banner
func MachineInfo() string {
	return fmt.Sprintf("%s, %d physical / %d logical cores, AVX2 %v, %d MB RAM",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2(),
		memory.TotalMemory()/1024/1024)
}

// Number of images to process concurrently, given bytes needed per image and
// a memory limit in MB. A limit of 0 uses 75% of physical memory
func ImageLevelParallelism(bytesPerImage int64, memoryMB int64) int32 {
	cores := int64(cpuid.CPU.LogicalCores)
	if cores <= 0 {
		cores = int64(runtime.NumCPU())
	}

	mem := memoryMB * 1024 * 1024
	if mem <= 0 {
		mem = int64(memory.TotalMemory() / 4 * 3)
	}
	if bytesPerImage <= 0 {
		bytesPerImage = 1
	}
	byMem := mem / bytesPerImage

	p := cores
	if byMem < p {
		p = byMem
	}
	if p < 1 {
		p = 1
	}
	return int32(p)
}
