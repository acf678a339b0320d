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


// Package stats computes flat field statistics as explicit reductions over
// fixed-size pixel blocks, running blocks in parallel.
package stats

import (
	"runtime"
)

// Number of pixels per block. Fixed so partial results, and thus floating
// point rounding, do not depend on the number of CPUs
const BlockSize = 1 << 16

// Number of blocks needed to cover n elements
func NumBlocks(n int) int {
	return (n + BlockSize - 1) / BlockSize
}

// Calls fn for each block [lo,hi) of [0,n), limiting concurrency to the number
// of available CPUs. Returns after all blocks have completed
func ForEachBlock(n int, fn func(block, lo, hi int)) {
	numBlocks := NumBlocks(n)
	if numBlocks <= 1 {
		if n > 0 {
			fn(0, 0, n)
		}
		return
	}
	sem := make(chan bool, runtime.GOMAXPROCS(0))
	for b := 0; b < numBlocks; b++ {
		lo := b * BlockSize
		hi := lo + BlockSize
		if hi > n {
			hi = n
		}
		sem <- true
		go func(b, lo, hi int) {
			defer func() { <-sem }()
			fn(b, lo, hi)
		}(b, lo, hi)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
}
