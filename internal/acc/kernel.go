package acc

import "fmt"

// StackEntryParams is the number of int32 values per multiply stack entry:
// m, n, k, aFirst, bFirst, cFirst, cBlock. The three offsets are 1-based
// element indices.
const StackEntryParams = 7

// Offsets of the fields inside a stack entry.
const (
	ParamM = iota
	ParamN
	ParamK
	ParamAFirst
	ParamBFirst
	ParamCFirst
	ParamCBlock
)

// MultiplyKernel describes one generated "dnt" kernel: C(m×n) += A(m×k)·B
// with B stored transposed. The remaining fields are generator parameters.
type MultiplyKernel struct {
	M, N, K   int
	Grouping  int // stack entries per work group
	Threads   int // work items per work group
	TileM     int
	TileN     int
	W         int
	V         int
	MinBlocks int
}

// Name returns the generator's kernel name.
func (k MultiplyKernel) Name() string {
	return fmt.Sprintf("clsmm_dnt_largeDB_%d_%d_%d_%d_%d_%d_%d_%d_%d_%d",
		k.Grouping, k.M, k.N, k.MinBlocks, k.K, k.Threads, k.TileM, k.TileN, k.V, k.W)
}

// Flops returns the floating point operations of a stack of the given size.
func (k MultiplyKernel) Flops(stackSize int) int64 {
	return 2 * int64(k.M) * int64(k.N) * int64(k.K) * int64(stackSize)
}

// TransposeKernel transposes m×n column-major blocks in place.
type TransposeKernel struct {
	M, N int
}

func (k TransposeKernel) Name() string {
	return fmt.Sprintf("transpose_%d_%d_d", k.M, k.N)
}
