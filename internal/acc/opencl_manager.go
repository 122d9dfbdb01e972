//go:build opencl
// +build opencl

package acc

// tryCreateOpenCLBackend attempts to create an OpenCL backend when the opencl build tag is present
func (m *Manager) tryCreateOpenCLBackend() Backend {
	return NewOpenCLBackend(m.cfg, m.logger)
}
