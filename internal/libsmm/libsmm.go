// Package libsmm dispatches multiply and transpose stacks to the generated
// small-matrix kernels of an accelerator backend.
package libsmm

import (
	"fmt"

	"github.com/fxnlabs/smm-acc/internal/acc"
	"github.com/fxnlabs/smm-acc/internal/metrics"
	"go.uber.org/zap"
)

// Library selects kernels by block size and launches them on a backend.
type Library struct {
	backend acc.Backend
	logger  *zap.Logger
}

func New(backend acc.Backend, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{
		backend: backend,
		logger:  logger.Named("libsmm"),
	}
}

func (l *Library) unsupported(op, reason string, err error) error {
	metrics.UnsupportedDispatches.WithLabelValues(op, reason).Inc()
	l.logger.Debug("dispatch not supported", zap.String("operation", op), zap.String("reason", reason))
	return err
}

// Process launches a homogeneous stack of stackSize multiplies on stream.
// Every entry multiplies an mMax×kMax block of a with a transposed
// kMax×nMax block of b and accumulates into an mMax×nMax block of c.
// Only homogeneous (defMNK) double precision stacks with a generated kernel
// are supported; the caller is expected to fall back to another
// implementation on ErrNotSupported.
func (l *Library) Process(stack acc.DevMem, stackSize, nparams int, datatype Datatype,
	a, b, c acc.DevMem, mMax, nMax, kMax int, defMNK bool, stream acc.Stream) error {
	l.logger.Debug("process",
		zap.Int("stack_size", stackSize),
		zap.Stringer("datatype", datatype),
		zap.Int("m", mMax), zap.Int("n", nMax), zap.Int("k", kMax))

	if !defMNK {
		return l.unsupported("process", "inhomogeneous",
			fmt.Errorf("libsmm: inhomogeneous stacks: %w", acc.ErrNotSupported))
	}
	if datatype != DatatypeReal8 {
		return l.unsupported("process", "datatype",
			fmt.Errorf("libsmm: datatype %s: %w", datatype, acc.ErrNotSupported))
	}
	if nparams != acc.StackEntryParams {
		return fmt.Errorf("libsmm: %d parameters per stack entry, want %d: %w",
			nparams, acc.StackEntryParams, acc.ErrInvalidValue)
	}
	kernel, ok := LookupMultiply(mMax, nMax, kMax)
	if !ok {
		return l.unsupported("process", "blocksize",
			fmt.Errorf("libsmm: no kernel for %dx%dx%d: %w", mMax, nMax, kMax, acc.ErrNotSupported))
	}

	metrics.StackSize.Observe(float64(stackSize))
	err := l.backend.LaunchMultiply(stream, kernel, stack, stackSize, a, b, c)
	metrics.KernelLaunches.WithLabelValues(kernel.Name(), result(err)).Inc()
	if err != nil {
		return fmt.Errorf("libsmm: launch %s: %w", kernel.Name(), err)
	}
	return nil
}

// Transpose turns nblks m×n blocks of buffer into n×m blocks in place. The
// blocks start at the 0-based element offsets trsStack[offset:offset+nblks].
// Blocks no multiply kernel consumes are left untouched.
func (l *Library) Transpose(trsStack acc.DevMem, offset, nblks int, buffer acc.DevMem,
	datatype Datatype, m, n int, stream acc.Stream) error {
	if datatype != DatatypeReal8 {
		l.unsupported("transpose", "datatype", nil)
		return nil
	}
	kernel, ok := LookupTranspose(m, n)
	if !ok {
		l.unsupported("transpose", "blocksize", nil)
		return nil
	}

	l.logger.Debug("transpose", zap.Int("blocks", nblks), zap.Int("m", m), zap.Int("n", n))
	err := l.backend.LaunchTranspose(stream, kernel, trsStack, offset, nblks, buffer)
	metrics.KernelLaunches.WithLabelValues(kernel.Name(), result(err)).Inc()
	if err != nil {
		return fmt.Errorf("libsmm: launch %s: %w", kernel.Name(), err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
