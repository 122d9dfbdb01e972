package acc

import (
	"sync"

	"go.uber.org/zap"
)

type hostBuffer struct {
	mu   sync.RWMutex
	data []byte
}

func (b *hostBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

func (b *hostBuffer) release() {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
}

// bytes returns the backing memory. Kernels and copies run on stream
// goroutines, so synchronizing access between streams is the caller's job,
// exactly as on a device.
func (b *hostBuffer) bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// DevMemAllocate creates a device buffer of n bytes.
func (h *HostBackend) DevMemAllocate(n int) (DevMem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized("DevMemAllocate"); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, Check(h.logger, StatusInvalidBufferSize, "DevMemAllocate")
	}
	if h.inUse+int64(n) > h.cfg.MemoryBytes {
		return nil, Check(h.logger, StatusMemAllocFailure, "DevMemAllocate")
	}

	buf := &hostBuffer{data: alignedBytes(n)}
	h.buffers[buf] = struct{}{}
	h.inUse += int64(n)

	h.logger.Debug("device buffer allocated", zap.Int("bytes", n), zap.Int64("in_use", h.inUse))
	return buf, nil
}

// DevMemDeallocate releases a device buffer. Freeing twice is an error.
func (h *HostBackend) DevMemDeallocate(mem DevMem) error {
	buf, err := h.buffer(mem, "DevMemDeallocate")
	if err != nil {
		return err
	}

	h.mu.Lock()
	if _, ok := h.buffers[buf]; !ok {
		h.mu.Unlock()
		return Check(h.logger, StatusInvalidMemObject, "DevMemDeallocate")
	}
	delete(h.buffers, buf)
	h.inUse -= int64(buf.Size())
	h.mu.Unlock()

	buf.release()
	h.logger.Debug("device buffer released")
	return nil
}

// HostMemAllocate returns n bytes of host memory. Go memory is already
// addressable by the host kernels so nothing needs pinning.
func (h *HostBackend) HostMemAllocate(n int) ([]byte, error) {
	if n < 0 {
		return nil, Check(h.logger, StatusInvalidBufferSize, "HostMemAllocate")
	}
	return alignedBytes(n), nil
}

// HostMemDeallocate is a no-op; the garbage collector reclaims the slice.
func (h *HostBackend) HostMemDeallocate(mem []byte) error {
	return nil
}

func (h *HostBackend) MemcpyH2D(host []byte, dev DevMem, count int, stream Stream) error {
	buf, s, err := h.transferArgs(dev, stream, "MemcpyH2D")
	if err != nil {
		return err
	}
	if count < 0 || count > len(host) || count > buf.Size() {
		return Check(h.logger, StatusInvalidValue, "MemcpyH2D")
	}
	return s.run(func() error {
		copy(buf.bytes()[:count], host[:count])
		return nil
	})
}

func (h *HostBackend) MemcpyD2H(dev DevMem, host []byte, count int, stream Stream) error {
	buf, s, err := h.transferArgs(dev, stream, "MemcpyD2H")
	if err != nil {
		return err
	}
	if count < 0 || count > len(host) || count > buf.Size() {
		return Check(h.logger, StatusInvalidValue, "MemcpyD2H")
	}
	return s.run(func() error {
		copy(host[:count], buf.bytes()[:count])
		return nil
	})
}

func (h *HostBackend) MemcpyD2D(src, dst DevMem, count int, stream Stream) error {
	from, s, err := h.transferArgs(src, stream, "MemcpyD2D")
	if err != nil {
		return err
	}
	to, err := h.buffer(dst, "MemcpyD2D")
	if err != nil {
		return err
	}
	if count < 0 || count > from.Size() || count > to.Size() {
		return Check(h.logger, StatusInvalidValue, "MemcpyD2D")
	}
	if from == to && count > 0 {
		return Check(h.logger, StatusMemCopyOverlap, "MemcpyD2D")
	}
	return s.enqueue(func() error {
		copy(to.bytes()[:count], from.bytes()[:count])
		return nil
	})
}

func (h *HostBackend) MemsetZero(dev DevMem, offset, length int, stream Stream) error {
	buf, s, err := h.transferArgs(dev, stream, "MemsetZero")
	if err != nil {
		return err
	}
	if length < 0 || !inRange(offset, length, buf.Size()) {
		return Check(h.logger, StatusInvalidValue, "MemsetZero")
	}
	return s.enqueue(func() error {
		clear(buf.bytes()[offset : offset+length])
		return nil
	})
}

// DevMemInfo reports the configured capacity minus live allocations.
func (h *HostBackend) DevMemInfo() (free, total int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized("DevMemInfo"); err != nil {
		return 0, 0, err
	}
	return h.cfg.MemoryBytes - h.inUse, h.cfg.MemoryBytes, nil
}

func (h *HostBackend) transferArgs(dev DevMem, stream Stream, op string) (*hostBuffer, *hostStream, error) {
	buf, err := h.buffer(dev, op)
	if err != nil {
		return nil, nil, err
	}
	s, err := h.stream(stream, op)
	if err != nil {
		return nil, nil, err
	}
	return buf, s, nil
}
