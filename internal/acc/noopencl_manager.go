//go:build !opencl
// +build !opencl

package acc

// tryCreateOpenCLBackend attempts to create an OpenCL backend when the opencl build tag is NOT present
func (m *Manager) tryCreateOpenCLBackend() Backend {
	m.logger.Debug("compiled without OpenCL support")
	return nil
}
