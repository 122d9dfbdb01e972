package libsmm

import (
	"sort"

	"github.com/fxnlabs/smm-acc/internal/acc"
)

// Datatype identifies the element type of a stack's matrices.
type Datatype int

const (
	DatatypeReal4    Datatype = 1
	DatatypeReal8    Datatype = 3
	DatatypeComplex4 Datatype = 5
	DatatypeComplex8 Datatype = 7
)

func (d Datatype) String() string {
	switch d {
	case DatatypeReal4:
		return "real4"
	case DatatypeReal8:
		return "real8"
	case DatatypeComplex4:
		return "complex4"
	case DatatypeComplex8:
		return "complex8"
	default:
		return "unknown"
	}
}

type blocksize struct{ m, n, k int }

// generated holds the double precision kernels and their generator
// parameters, keyed by block size.
var generated = map[blocksize]acc.MultiplyKernel{
	{4, 4, 4}:    {M: 4, N: 4, K: 4, Grouping: 16, Threads: 32, TileM: 1, TileN: 1, V: 4, W: 4, MinBlocks: 16},
	{5, 5, 5}:    {M: 5, N: 5, K: 5, Grouping: 16, Threads: 32, TileM: 1, TileN: 1, V: 5, W: 5, MinBlocks: 16},
	{13, 13, 13}: {M: 13, N: 13, K: 13, Grouping: 16, Threads: 64, TileM: 1, TileN: 3, V: 8, W: 8, MinBlocks: 12},
	{23, 23, 23}: {M: 23, N: 23, K: 23, Grouping: 16, Threads: 96, TileM: 2, TileN: 3, V: 12, W: 10, MinBlocks: 12},
	{32, 32, 32}: {M: 32, N: 32, K: 32, Grouping: 16, Threads: 128, TileM: 2, TileN: 4, V: 16, W: 16, MinBlocks: 8},
}

// ListBlocksizes returns the (m, n, k) triples that have a kernel, sorted.
func ListBlocksizes() [][3]int {
	out := make([][3]int, 0, len(generated))
	for bs := range generated {
		out = append(out, [3]int{bs.m, bs.n, bs.k})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return out
}

// LookupMultiply returns the kernel for an m×n×k block multiply.
func LookupMultiply(m, n, k int) (acc.MultiplyKernel, bool) {
	kernel, ok := generated[blocksize{m, n, k}]
	return kernel, ok
}

// LookupTranspose reports whether an m×n transpose is needed: only blocks
// consumed as B (k×n) by some multiply kernel are transposed.
func LookupTranspose(m, n int) (acc.TransposeKernel, bool) {
	for bs := range generated {
		if bs.k == m && bs.n == n {
			return acc.TransposeKernel{M: m, N: n}, true
		}
	}
	return acc.TransposeKernel{}, false
}
