package acc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadBytes(t *testing.T, backend Backend, data []byte) DevMem {
	t.Helper()
	mem, err := backend.DevMemAllocate(len(data))
	require.NoError(t, err)
	require.NoError(t, backend.MemcpyH2D(data, mem, len(data), nil))
	return mem
}

func readFloat64s(t *testing.T, backend Backend, mem DevMem) []float64 {
	t.Helper()
	host := make([]byte, mem.Size())
	require.NoError(t, backend.MemcpyD2H(mem, host, len(host), nil))
	return BytesToFloat64s(host)
}

func TestHostBackend_LaunchMultiply(t *testing.T) {
	backend := newTestBackend(t, 1<<20)
	kernel := MultiplyKernel{M: 2, N: 3, K: 2, Grouping: 1, Threads: 1}

	// A is 2x2 column major: [[1 3] [2 4]]
	a := uploadBytes(t, backend, Float64sToBytes([]float64{1, 2, 3, 4}))
	// B is 2x3 [[1 2 3] [4 5 6]], stored transposed (3x2 column major)
	b := uploadBytes(t, backend, Float64sToBytes([]float64{1, 2, 3, 4, 5, 6}))
	c := uploadBytes(t, backend, Float64sToBytes(make([]float64, 6)))
	// same product accumulated twice into the single C block
	stack := uploadBytes(t, backend, Int32sToBytes([]int32{
		2, 3, 2, 1, 1, 1, 0,
		2, 3, 2, 1, 1, 1, 0,
	}))

	require.NoError(t, backend.LaunchMultiply(nil, kernel, stack, 2, a, b, c))
	require.NoError(t, backend.StreamSync(nil))

	// A·B = [[13 17 21] [18 24 30]], column major, doubled
	assert.Equal(t, []float64{26, 36, 34, 48, 42, 60}, readFloat64s(t, backend, c))
}

func TestHostBackend_LaunchMultiplyOffsets(t *testing.T) {
	backend := newTestBackend(t, 1<<20)
	kernel := MultiplyKernel{M: 1, N: 1, K: 1, Grouping: 2, Threads: 1}

	a := uploadBytes(t, backend, Float64sToBytes([]float64{2, 3, 4}))
	b := uploadBytes(t, backend, Float64sToBytes([]float64{5, 7}))
	c := uploadBytes(t, backend, Float64sToBytes([]float64{1, 1}))
	stack := uploadBytes(t, backend, Int32sToBytes([]int32{
		1, 1, 1, 1, 1, 1, 0, // c[0] += 2*5
		1, 1, 1, 2, 2, 2, 1, // c[1] += 3*7
		1, 1, 1, 3, 1, 2, 1, // c[1] += 4*5
	}))

	require.NoError(t, backend.LaunchMultiply(nil, kernel, stack, 3, a, b, c))
	require.NoError(t, backend.StreamSync(nil))
	assert.Equal(t, []float64{11, 42}, readFloat64s(t, backend, c))
}

func TestHostBackend_LaunchMultiplyErrors(t *testing.T) {
	backend := newTestBackend(t, 1<<20)
	kernel := MultiplyKernel{M: 2, N: 2, K: 2, Grouping: 1, Threads: 1}
	block := uploadBytes(t, backend, Float64sToBytes(make([]float64, 4)))

	t.Run("stack larger than buffer", func(t *testing.T) {
		stack := uploadBytes(t, backend, Int32sToBytes(make([]int32, 7)))
		err := backend.LaunchMultiply(nil, kernel, stack, 2, block, block, block)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("bad kernel dimensions", func(t *testing.T) {
		stack := uploadBytes(t, backend, Int32sToBytes(make([]int32, 7)))
		err := backend.LaunchMultiply(nil, MultiplyKernel{M: 2, N: 0, K: 2, Grouping: 1}, stack, 1, block, block, block)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, StatusInvalidKernelArgs, statusErr.Status)
	})

	t.Run("entry out of range fails on sync", func(t *testing.T) {
		stack := uploadBytes(t, backend, Int32sToBytes([]int32{2, 2, 2, 1, 1, 4, 0}))
		require.NoError(t, backend.LaunchMultiply(nil, kernel, stack, 1, block, block, block))
		assert.ErrorIs(t, backend.StreamSync(nil), ErrInvalidValue)
	})

	t.Run("stack size overflowing the byte count", func(t *testing.T) {
		stack := uploadBytes(t, backend, Int32sToBytes(make([]int32, 7)))
		err := backend.LaunchMultiply(nil, kernel, stack, math.MaxInt/4+1, block, block, block)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("negative C block", func(t *testing.T) {
		stack := uploadBytes(t, backend, Int32sToBytes([]int32{2, 2, 2, 1, 1, 1, -3}))
		require.NoError(t, backend.LaunchMultiply(nil, kernel, stack, 1, block, block, block))
		assert.ErrorIs(t, backend.StreamSync(nil), ErrInvalidValue)
	})
}

func TestHostBackend_LaunchMultiplyLeavesCOnBadEntry(t *testing.T) {
	backend := newTestBackend(t, 1<<20)
	kernel := MultiplyKernel{M: 1, N: 1, K: 1, Grouping: 1, Threads: 1}

	a := uploadBytes(t, backend, Float64sToBytes([]float64{2}))
	b := uploadBytes(t, backend, Float64sToBytes([]float64{5}))
	c := uploadBytes(t, backend, Float64sToBytes([]float64{0}))
	stack := uploadBytes(t, backend, Int32sToBytes([]int32{
		1, 1, 1, 1, 1, 1, 0,
		1, 1, 1, 1, 1, 9, 0, // C offset past the buffer
	}))

	require.NoError(t, backend.LaunchMultiply(nil, kernel, stack, 2, a, b, c))
	assert.ErrorIs(t, backend.StreamSync(nil), ErrInvalidValue)
	assert.Equal(t, []float64{0}, readFloat64s(t, backend, c))
}

func TestHostBackend_LaunchTranspose(t *testing.T) {
	backend := newTestBackend(t, 1<<20)
	// a 2x3 column-major block [[1 3 5] [2 4 6]] followed by an untouched value
	buf := uploadBytes(t, backend, Float64sToBytes([]float64{1, 2, 3, 4, 5, 6, 9}))
	stack := uploadBytes(t, backend, Int32sToBytes([]int32{0}))

	require.NoError(t, backend.LaunchTranspose(nil, TransposeKernel{M: 2, N: 3}, stack, 0, 1, buf))
	require.NoError(t, backend.StreamSync(nil))
	// 3x2 column major [[1 2] [3 4] [5 6]]
	assert.Equal(t, []float64{1, 3, 5, 2, 4, 6, 9}, readFloat64s(t, backend, buf))

	t.Run("offset out of range", func(t *testing.T) {
		bad := uploadBytes(t, backend, Int32sToBytes([]int32{4}))
		require.NoError(t, backend.LaunchTranspose(nil, TransposeKernel{M: 2, N: 3}, bad, 0, 1, buf))
		assert.ErrorIs(t, backend.StreamSync(nil), ErrInvalidValue)
	})

	t.Run("stack window out of range", func(t *testing.T) {
		err := backend.LaunchTranspose(nil, TransposeKernel{M: 2, N: 3}, stack, 1, 1, buf)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("stack window overflowing", func(t *testing.T) {
		err := backend.LaunchTranspose(nil, TransposeKernel{M: 2, N: 3}, stack, 1, math.MaxInt, buf)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestMultiplyKernelName(t *testing.T) {
	kernel := MultiplyKernel{M: 23, N: 23, K: 23, Grouping: 16, Threads: 96, TileM: 2, TileN: 3, V: 12, W: 10, MinBlocks: 12}
	assert.Equal(t, "clsmm_dnt_largeDB_16_23_23_12_23_96_2_3_12_10", kernel.Name())
	assert.Equal(t, int64(2*23*23*23*100), kernel.Flops(100))
	assert.Equal(t, "transpose_23_23_d", TransposeKernel{M: 23, N: 23}.Name())
}
