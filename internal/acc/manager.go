package acc

import (
	"fmt"
	"sync"

	"github.com/fxnlabs/smm-acc/internal/config"
	"go.uber.org/zap"
)

// Manager handles backend selection and lifecycle
type Manager struct {
	backend Backend
	raw     Backend
	mu      sync.RWMutex
	logger  *zap.Logger
	cfg     config.DeviceConfig
}

// NewManager creates a new manager and initializes the backend requested by
// cfg.Backend. "auto" prefers OpenCL and falls back to the host.
func NewManager(cfg config.DeviceConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		logger: logger.Named("acc"),
		cfg:    cfg,
	}

	if err := m.detectAndInitialize(); err != nil {
		return nil, err
	}

	return m, nil
}

// detectAndInitialize detects available backends and initializes the best one
func (m *Manager) detectAndInitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.cfg.Backend {
	case config.BackendHost:
	case config.BackendOpenCL, config.BackendAuto, "":
		if b := m.tryCreateOpenCLBackend(); b != nil && b.IsAvailable() {
			if err := b.Initialize(); err == nil {
				m.use(b)
				return nil
			} else if m.cfg.Backend == config.BackendOpenCL {
				_ = b.Cleanup()
				return fmt.Errorf("failed to initialize OpenCL backend: %w", err)
			}
			// If initialization failed, try cleanup
			_ = b.Cleanup()
		} else if m.cfg.Backend == config.BackendOpenCL {
			return fmt.Errorf("OpenCL backend requested: %w", ErrBackendUnavailable)
		}
	default:
		return fmt.Errorf("unknown backend %q: %w", m.cfg.Backend, ErrInvalidValue)
	}

	// Fall back to the host
	host := NewHostBackend(m.cfg, m.logger)
	if err := host.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize host backend: %w", err)
	}
	m.use(host)
	return nil
}

func (m *Manager) use(b Backend) {
	m.raw = b
	m.backend = instrument(b)
	m.logger.Info("using backend", zap.String("backend", b.Name()), zap.String("device", b.GetDeviceInfo().Name))
}

// GetBackend returns the current backend
func (m *Manager) GetBackend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// GetDeviceInfo returns device information from the current backend
func (m *Manager) GetDeviceInfo() DeviceInfo {
	backend := m.GetBackend()
	if backend == nil {
		return DeviceInfo{Name: "No backend available"}
	}
	return backend.GetDeviceInfo()
}

// IsGPUAvailable returns true if a device backend is active
func (m *Manager) IsGPUAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.raw == nil {
		return false
	}
	_, isHost := m.raw.(*HostBackend)
	return !isHost
}

// Cleanup releases resources held by the current backend
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Cleanup(); err != nil {
			return err
		}
		m.backend = nil
		m.raw = nil
	}
	return nil
}

// GetBackendType returns a string describing the current backend type
func (m *Manager) GetBackendType() string {
	backend := m.GetBackend()
	if backend == nil {
		return "none"
	}
	return backend.Name()
}
