package acc

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/fxnlabs/smm-acc/internal/config"
	"go.uber.org/zap"
)

// HostBackend implements Backend in Go memory. Streams are command queues
// drained by one goroutine each, so ordering and event semantics match a real
// device while kernels run on the CPU.
type HostBackend struct {
	logger      *zap.Logger
	cfg         config.DeviceConfig
	workers     int
	mu          sync.Mutex
	initialized bool
	buffers     map[*hostBuffer]struct{}
	streams     map[*hostStream]struct{}
	events      map[*hostEvent]struct{}
	inUse       int64
	defaultS    *hostStream
}

// NewHostBackend creates a new host backend instance
func NewHostBackend(cfg config.DeviceConfig, logger *zap.Logger) *HostBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MemoryBytes <= 0 {
		cfg.MemoryBytes = config.DefaultDeviceMemory
	}
	if cfg.StreamDepth < 1 {
		cfg.StreamDepth = 1
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &HostBackend{
		logger:  logger.Named("host"),
		cfg:     cfg,
		workers: workers,
	}
}

func (h *HostBackend) Name() string { return config.BackendHost }

// IsAvailable always reports true; the host is the fallback device.
func (h *HostBackend) IsAvailable() bool {
	return true
}

// Initialize prepares the backend for use
func (h *HostBackend) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return nil
	}
	h.buffers = make(map[*hostBuffer]struct{})
	h.streams = make(map[*hostStream]struct{})
	h.events = make(map[*hostEvent]struct{})
	h.inUse = 0
	h.defaultS = newHostStream("default", h.cfg.StreamDepth)
	h.initialized = true
	h.logger.Info("host backend initialized",
		zap.Int64("memory_bytes", h.cfg.MemoryBytes),
		zap.Int("workers", h.workers))
	return nil
}

// Cleanup drains and closes all streams and drops every buffer and event.
func (h *HostBackend) Cleanup() error {
	h.mu.Lock()
	if !h.initialized {
		h.mu.Unlock()
		return nil
	}
	streams := make([]*hostStream, 0, len(h.streams)+1)
	for s := range h.streams {
		streams = append(streams, s)
	}
	streams = append(streams, h.defaultS)
	buffers := make([]*hostBuffer, 0, len(h.buffers))
	for b := range h.buffers {
		buffers = append(buffers, b)
	}
	h.buffers = nil
	h.streams = nil
	h.events = nil
	h.inUse = 0
	h.defaultS = nil
	h.initialized = false
	h.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
	for _, b := range buffers {
		b.release()
	}
	h.logger.Debug("host backend cleaned up", zap.Int("streams", len(streams)))
	return nil
}

// GetDeviceInfo returns device information for the host
func (h *HostBackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:            fmt.Sprintf("Host (%s)", runtime.GOARCH),
		Backend:         config.BackendHost,
		TotalMemory:     h.cfg.MemoryBytes,
		ComputeUnits:    h.workers,
		DriverVersion:   runtime.Version(),
		DoublePrecision: true,
		Features:        hostFeatures(),
	}
}

func (h *HostBackend) checkInitialized(op string) error {
	if !h.initialized {
		return fmt.Errorf("acc: %s: host backend not initialized: %w", op, ErrBackendUnavailable)
	}
	return nil
}

// stream resolves a caller handle, mapping nil to the default stream.
func (h *HostBackend) stream(s Stream, op string) (*hostStream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized(op); err != nil {
		return nil, err
	}
	if s == nil {
		return h.defaultS, nil
	}
	hs, ok := s.(*hostStream)
	if !ok {
		return nil, Check(h.logger, StatusInvalidCommandQueue, op)
	}
	if _, ok := h.streams[hs]; !ok {
		return nil, Check(h.logger, StatusInvalidCommandQueue, op)
	}
	return hs, nil
}

func (h *HostBackend) buffer(m DevMem, op string) (*hostBuffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized(op); err != nil {
		return nil, err
	}
	hb, ok := m.(*hostBuffer)
	if !ok {
		return nil, Check(h.logger, StatusInvalidMemObject, op)
	}
	if _, ok := h.buffers[hb]; !ok {
		return nil, Check(h.logger, StatusInvalidMemObject, op)
	}
	return hb, nil
}

func (h *HostBackend) event(e Event, op string) (*hostEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized(op); err != nil {
		return nil, err
	}
	he, ok := e.(*hostEvent)
	if !ok {
		return nil, Check(h.logger, StatusInvalidEvent, op)
	}
	if _, ok := h.events[he]; !ok {
		return nil, Check(h.logger, StatusInvalidEvent, op)
	}
	return he, nil
}
