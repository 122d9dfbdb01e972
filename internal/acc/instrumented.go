package acc

import "github.com/fxnlabs/smm-acc/internal/metrics"

// instrumentedBackend records memory and stream metrics around a backend.
type instrumentedBackend struct {
	Backend
}

func instrument(b Backend) Backend {
	return &instrumentedBackend{Backend: b}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (b *instrumentedBackend) DevMemAllocate(n int) (DevMem, error) {
	mem, err := b.Backend.DevMemAllocate(n)
	metrics.DeviceAllocations.WithLabelValues(b.Name(), result(err)).Inc()
	if err == nil {
		metrics.DeviceMemoryInUseBytes.WithLabelValues(b.Name()).Add(float64(n))
	}
	return mem, err
}

func (b *instrumentedBackend) DevMemDeallocate(mem DevMem) error {
	size := 0
	if mem != nil {
		size = mem.Size()
	}
	err := b.Backend.DevMemDeallocate(mem)
	if err == nil {
		metrics.DeviceMemoryInUseBytes.WithLabelValues(b.Name()).Sub(float64(size))
	}
	return err
}

func (b *instrumentedBackend) MemcpyH2D(host []byte, dev DevMem, count int, stream Stream) error {
	err := b.Backend.MemcpyH2D(host, dev, count, stream)
	if err == nil {
		metrics.TransferBytes.WithLabelValues(b.Name(), "h2d").Add(float64(count))
	}
	return err
}

func (b *instrumentedBackend) MemcpyD2H(dev DevMem, host []byte, count int, stream Stream) error {
	err := b.Backend.MemcpyD2H(dev, host, count, stream)
	if err == nil {
		metrics.TransferBytes.WithLabelValues(b.Name(), "d2h").Add(float64(count))
	}
	return err
}

func (b *instrumentedBackend) MemcpyD2D(src, dst DevMem, count int, stream Stream) error {
	err := b.Backend.MemcpyD2D(src, dst, count, stream)
	if err == nil {
		metrics.TransferBytes.WithLabelValues(b.Name(), "d2d").Add(float64(count))
	}
	return err
}

func (b *instrumentedBackend) MemsetZero(dev DevMem, offset, length int, stream Stream) error {
	err := b.Backend.MemsetZero(dev, offset, length, stream)
	if err == nil {
		metrics.TransferBytes.WithLabelValues(b.Name(), "memset").Add(float64(length))
	}
	return err
}

func (b *instrumentedBackend) StreamCreate(name string, priority int) (Stream, error) {
	s, err := b.Backend.StreamCreate(name, priority)
	if err == nil {
		metrics.ActiveStreams.WithLabelValues(b.Name()).Inc()
	}
	return s, err
}

func (b *instrumentedBackend) StreamDestroy(stream Stream) error {
	err := b.Backend.StreamDestroy(stream)
	if err == nil {
		metrics.ActiveStreams.WithLabelValues(b.Name()).Dec()
	}
	return err
}

// Cleanup drops every buffer and stream of the backend, so the gauges go
// back to zero with it.
func (b *instrumentedBackend) Cleanup() error {
	err := b.Backend.Cleanup()
	if err == nil {
		metrics.DeviceMemoryInUseBytes.WithLabelValues(b.Name()).Set(0)
		metrics.ActiveStreams.WithLabelValues(b.Name()).Set(0)
	}
	return err
}
