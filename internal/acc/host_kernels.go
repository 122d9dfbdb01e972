package acc

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxnlabs/smm-acc/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// LaunchMultiply queues a "dnt" stack multiply on the stream. Entries are
// processed in groups of kernel.Grouping; groups run in parallel and every
// accumulation into a C block happens under that block's lock.
func (h *HostBackend) LaunchMultiply(stream Stream, kernel MultiplyKernel, stack DevMem, stackSize int, a, b, c DevMem) error {
	s, err := h.stream(stream, "LaunchMultiply")
	if err != nil {
		return err
	}
	bufs := make([]*hostBuffer, 0, 4)
	for _, m := range []DevMem{stack, a, b, c} {
		buf, err := h.buffer(m, "LaunchMultiply")
		if err != nil {
			return err
		}
		bufs = append(bufs, buf)
	}
	if stackSize < 0 || stackSize > bufs[0].Size()/(StackEntryParams*4) {
		return Check(h.logger, StatusInvalidValue, "LaunchMultiply")
	}
	if kernel.M < 1 || kernel.N < 1 || kernel.K < 1 || kernel.Grouping < 1 {
		return Check(h.logger, StatusInvalidKernelArgs, "LaunchMultiply")
	}

	return s.enqueue(func() error {
		start := time.Now()
		err := h.multiply(kernel, bufs[0], stackSize, bufs[1], bufs[2], bufs[3])
		metrics.KernelDuration.WithLabelValues(kernel.Name()).Observe(float64(time.Since(start).Microseconds()) / 1000)
		if err != nil {
			h.logger.Error("multiply kernel failed", zap.String("kernel", kernel.Name()), zap.Error(err))
		}
		return err
	})
}

func (h *HostBackend) multiply(kernel MultiplyKernel, stackBuf *hostBuffer, stackSize int, aBuf, bBuf, cBuf *hostBuffer) error {
	params := int32View(stackBuf.bytes())
	if len(params) < stackSize*StackEntryParams {
		return fmt.Errorf("acc: parameter stack shorter than %d entries: %w", stackSize, ErrInvalidValue)
	}
	params = params[:stackSize*StackEntryParams]
	aData := float64View(aBuf.bytes())
	bData := float64View(bBuf.bytes())
	cData := float64View(cBuf.bytes())

	m, n, k := kernel.M, kernel.N, kernel.K
	for i := 0; i < stackSize; i++ {
		entry := params[i*StackEntryParams : (i+1)*StackEntryParams]
		if !inRange(int(entry[ParamAFirst])-1, m*k, len(aData)) ||
			!inRange(int(entry[ParamBFirst])-1, n*k, len(bData)) ||
			!inRange(int(entry[ParamCFirst])-1, m*n, len(cData)) {
			return fmt.Errorf("acc: stack entry %d out of range: %w", i, ErrInvalidValue)
		}
	}
	locks, err := newCLocks(params)
	if err != nil {
		return err
	}

	impl := blas64.Implementation()

	var g errgroup.Group
	g.SetLimit(h.workers)
	for first := 0; first < stackSize; first += kernel.Grouping {
		last := min(first+kernel.Grouping, stackSize)
		g.Go(func() error {
			tmp := make([]float64, m*n)
			for i := first; i < last; i++ {
				entry := params[i*StackEntryParams : (i+1)*StackEntryParams]
				a0 := int(entry[ParamAFirst]) - 1
				b0 := int(entry[ParamBFirst]) - 1
				c0 := int(entry[ParamCFirst]) - 1

				// Column-major A (m×k) is row-major A^T; the transposed B block
				// (n×k column-major) is row-major B. tmp = (A·B)^T row-major,
				// which is C column-major.
				impl.Dgemm(blas.Trans, blas.NoTrans, n, m, k,
					1, bData[b0:b0+n*k], n,
					aData[a0:a0+m*k], m,
					0, tmp, m)

				lock := locks[entry[ParamCBlock]]
				lock.Lock()
				block := cData[c0 : c0+m*n]
				for idx, v := range tmp {
					block[idx] += v
				}
				lock.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}

// newCLocks returns one mutex per C block id referenced by the stack.
func newCLocks(params []int32) (map[int32]*sync.Mutex, error) {
	locks := make(map[int32]*sync.Mutex)
	for i := ParamCBlock; i < len(params); i += StackEntryParams {
		id := params[i]
		if id < 0 {
			return nil, fmt.Errorf("acc: negative C block id %d: %w", id, ErrInvalidValue)
		}
		if _, ok := locks[id]; !ok {
			locks[id] = &sync.Mutex{}
		}
	}
	return locks, nil
}

// LaunchTranspose queues an in-place transpose of nblks m×n blocks whose
// 0-based element offsets are stack[offset:offset+nblks].
func (h *HostBackend) LaunchTranspose(stream Stream, kernel TransposeKernel, stack DevMem, offset, nblks int, buffer DevMem) error {
	s, err := h.stream(stream, "LaunchTranspose")
	if err != nil {
		return err
	}
	stackBuf, err := h.buffer(stack, "LaunchTranspose")
	if err != nil {
		return err
	}
	buf, err := h.buffer(buffer, "LaunchTranspose")
	if err != nil {
		return err
	}
	if offset < 0 || nblks < 0 || !inRange(offset, nblks, stackBuf.Size()/4) {
		return Check(h.logger, StatusInvalidValue, "LaunchTranspose")
	}
	if kernel.M < 1 || kernel.N < 1 {
		return Check(h.logger, StatusInvalidKernelArgs, "LaunchTranspose")
	}

	return s.enqueue(func() error {
		start := time.Now()
		err := h.transpose(kernel, int32View(stackBuf.bytes())[offset:offset+nblks], buf)
		metrics.KernelDuration.WithLabelValues(kernel.Name()).Observe(float64(time.Since(start).Microseconds()) / 1000)
		return err
	})
}

func (h *HostBackend) transpose(kernel TransposeKernel, offsets []int32, buf *hostBuffer) error {
	data := float64View(buf.bytes())
	m, n := kernel.M, kernel.N

	for i, off := range offsets {
		if !inRange(int(off), m*n, len(data)) {
			return fmt.Errorf("acc: transpose block %d out of range: %w", i, ErrInvalidValue)
		}
	}

	var g errgroup.Group
	g.SetLimit(h.workers)
	for _, off := range offsets {
		o := int(off)
		g.Go(func() error {
			block := data[o : o+m*n]
			tmp := make([]float64, m*n)
			copy(tmp, block)
			for col := 0; col < n; col++ {
				for row := 0; row < m; row++ {
					block[col+row*n] = tmp[row+col*m]
				}
			}
			return nil
		})
	}
	return g.Wait()
}
