package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/fxnlabs/smm-acc/internal/acc"
	"github.com/fxnlabs/smm-acc/internal/libsmm"
	"github.com/fxnlabs/smm-acc/internal/metrics"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type benchOptions struct {
	M, N, K   int
	StackSize int
	Blocks    int // distinct A, B and C blocks
	Seed      int64
	Verify    bool
}

type benchResult struct {
	Kernel   string
	Duration time.Duration
	GFLOPS   float64
	MaxError float64
}

func benchCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Run a random homogeneous stack through transpose and multiply",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "m", Value: 23, Usage: "Rows of A and C"},
			&cli.IntFlag{Name: "n", Value: 23, Usage: "Columns of B and C"},
			&cli.IntFlag{Name: "k", Value: 23, Usage: "Columns of A, rows of B"},
			&cli.IntFlag{Name: "stack", Value: 30000, Usage: "Number of stack entries"},
			&cli.IntFlag{Name: "blocks", Value: 1000, Usage: "Distinct blocks per matrix"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "Random seed"},
			&cli.BoolFlag{Name: "verify", Value: true, Usage: "Check the result against a reference multiply"},
		},
		Action: func(c *cli.Context) error {
			manager, err := acc.NewManager(e.cfg.Device, e.log)
			if err != nil {
				return err
			}
			defer manager.Cleanup()

			opts := benchOptions{
				M: c.Int("m"), N: c.Int("n"), K: c.Int("k"),
				StackSize: c.Int("stack"),
				Blocks:    c.Int("blocks"),
				Seed:      c.Int64("seed"),
				Verify:    c.Bool("verify"),
			}
			res, err := runBench(manager.GetBackend(), opts, e.log)
			if err != nil {
				return err
			}
			metrics.BenchGFLOPS.WithLabelValues(res.Kernel, manager.GetBackendType()).Set(res.GFLOPS)
			printBench(c.App.Writer, manager.GetBackendType(), opts, res)
			return nil
		},
	}
}

func printBench(w io.Writer, backend string, opts benchOptions, res *benchResult) {
	fmt.Fprintf(w, "backend=%s kernel=%s\n", backend, res.Kernel)
	fmt.Fprintf(w, "stack=%d blocks=%d m=%d n=%d k=%d\n", opts.StackSize, opts.Blocks, opts.M, opts.N, opts.K)
	fmt.Fprintf(w, "time=%s GFLOPS=%.2f\n", res.Duration.Round(time.Microsecond), res.GFLOPS)
	if opts.Verify {
		fmt.Fprintf(w, "max abs error=%.3g\n", res.MaxError)
	}
}

// runBench uploads random blocks, transposes B, multiplies the stack and
// optionally checks C against gonum.
func runBench(backend acc.Backend, opts benchOptions, log *zap.Logger) (*benchResult, error) {
	m, n, k := opts.M, opts.N, opts.K
	if opts.StackSize < 1 || opts.Blocks < 1 {
		return nil, fmt.Errorf("stack and blocks must be positive: %w", acc.ErrInvalidValue)
	}
	kernel, ok := libsmm.LookupMultiply(m, n, k)
	if !ok {
		return nil, fmt.Errorf("no kernel for %dx%dx%d, see `smmacc blocksizes`: %w", m, n, k, acc.ErrNotSupported)
	}
	lib := libsmm.New(backend, log)
	rng := rand.New(rand.NewSource(opts.Seed))

	aHost := make([]float64, opts.Blocks*m*k)
	bHost := make([]float64, opts.Blocks*k*n)
	for i := range aHost {
		aHost[i] = rng.Float64()
	}
	for i := range bHost {
		bHost[i] = rng.Float64()
	}

	params := make([]int32, 0, opts.StackSize*acc.StackEntryParams)
	type task struct{ a, b, c int }
	tasks := make([]task, opts.StackSize)
	for i := range tasks {
		t := task{a: rng.Intn(opts.Blocks), b: rng.Intn(opts.Blocks), c: rng.Intn(opts.Blocks)}
		tasks[i] = t
		params = append(params, int32(m), int32(n), int32(k),
			int32(t.a*m*k+1), int32(t.b*k*n+1), int32(t.c*m*n+1), int32(t.c))
	}
	trs := make([]int32, opts.Blocks)
	for i := range trs {
		trs[i] = int32(i * k * n)
	}

	var allocated []acc.DevMem
	defer func() {
		for _, mem := range allocated {
			if err := backend.DevMemDeallocate(mem); err != nil {
				log.Warn("failed to release bench buffer", zap.Error(err))
			}
		}
	}()

	stream, err := backend.StreamCreate("bench", 0)
	if err != nil {
		return nil, err
	}
	defer backend.StreamDestroy(stream)

	upload := func(data []byte) (acc.DevMem, error) {
		mem, err := backend.DevMemAllocate(len(data))
		if err != nil {
			return nil, err
		}
		allocated = append(allocated, mem)
		staging, err := backend.HostMemAllocate(len(data))
		if err != nil {
			return nil, err
		}
		defer backend.HostMemDeallocate(staging)
		copy(staging, data)
		return mem, backend.MemcpyH2D(staging, mem, len(data), stream)
	}

	a, err := upload(acc.Float64sToBytes(aHost))
	if err != nil {
		return nil, err
	}
	b, err := upload(acc.Float64sToBytes(bHost))
	if err != nil {
		return nil, err
	}
	stack, err := upload(acc.Int32sToBytes(params))
	if err != nil {
		return nil, err
	}
	trsStack, err := upload(acc.Int32sToBytes(trs))
	if err != nil {
		return nil, err
	}
	c, err := backend.DevMemAllocate(opts.Blocks * m * n * 8)
	if err != nil {
		return nil, err
	}
	allocated = append(allocated, c)
	if err := backend.MemsetZero(c, 0, c.Size(), stream); err != nil {
		return nil, err
	}

	if err := lib.Transpose(trsStack, 0, len(trs), b, libsmm.DatatypeReal8, k, n, stream); err != nil {
		return nil, err
	}
	if err := backend.StreamSync(stream); err != nil {
		return nil, err
	}

	done, err := backend.EventCreate()
	if err != nil {
		return nil, err
	}
	defer backend.EventDestroy(done)

	start := time.Now()
	err = lib.Process(stack, opts.StackSize, acc.StackEntryParams, libsmm.DatatypeReal8,
		a, b, c, m, n, k, true, stream)
	if errors.Is(err, acc.ErrNotSupported) {
		return nil, fmt.Errorf("stack rejected by kernel dispatch: %w", err)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EventRecord(done, stream); err != nil {
		return nil, err
	}
	if err := backend.EventSynchronize(done); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	if err := backend.StreamSync(stream); err != nil {
		return nil, err
	}

	res := &benchResult{
		Kernel:   kernel.Name(),
		Duration: elapsed,
		GFLOPS:   float64(kernel.Flops(opts.StackSize)) / elapsed.Seconds() / 1e9,
	}
	log.Info("bench finished",
		zap.String("kernel", res.Kernel),
		zap.Duration("duration", elapsed),
		zap.Float64("gflops", res.GFLOPS))

	if !opts.Verify {
		return res, nil
	}

	raw := make([]byte, c.Size())
	if err := backend.MemcpyD2H(c, raw, len(raw), stream); err != nil {
		return nil, err
	}
	got := acc.BytesToFloat64s(raw)

	want := make([]*mat.Dense, opts.Blocks)
	for i := range want {
		want[i] = mat.NewDense(m, n, nil)
	}
	var prod mat.Dense
	for _, t := range tasks {
		// column-major blocks read row-major are transposed
		aBlock := mat.NewDense(k, m, aHost[t.a*m*k:(t.a+1)*m*k]).T()
		bBlock := mat.NewDense(n, k, bHost[t.b*k*n:(t.b+1)*k*n]).T()
		prod.Reset()
		prod.Mul(aBlock, bBlock)
		want[t.c].Add(want[t.c], &prod)
	}
	for blk, w := range want {
		for j := 0; j < n; j++ {
			for i := 0; i < m; i++ {
				res.MaxError = math.Max(res.MaxError, math.Abs(w.At(i, j)-got[blk*m*n+i+j*m]))
			}
		}
	}
	if res.MaxError > 1e-8*float64(k)*float64(opts.StackSize) {
		return res, fmt.Errorf("result mismatch: max abs error %g: %w", res.MaxError, acc.ErrDevice)
	}
	return res, nil
}
