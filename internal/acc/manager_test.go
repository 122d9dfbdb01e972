package acc

import (
	"testing"

	"github.com/fxnlabs/smm-acc/internal/config"
	"github.com/fxnlabs/smm-acc/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_HostBackend(t *testing.T) {
	manager, err := NewManager(config.DeviceConfig{
		Backend:     config.BackendHost,
		MemoryBytes: 4096,
		StreamDepth: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Cleanup()

	assert.Equal(t, config.BackendHost, manager.GetBackendType())
	assert.False(t, manager.IsGPUAvailable())
	assert.Contains(t, manager.GetDeviceInfo().Name, "Host")
	require.NotNil(t, manager.GetBackend())
}

func TestManager_AutoFallsBack(t *testing.T) {
	manager, err := NewManager(config.DeviceConfig{
		Backend:     config.BackendAuto,
		MemoryBytes: 4096,
		StreamDepth: 4,
	}, nil)
	require.NoError(t, err)
	defer manager.Cleanup()

	// auto always ends up with a working backend
	assert.Contains(t, []string{config.BackendHost, config.BackendOpenCL}, manager.GetBackendType())
	backend := manager.GetBackend()
	mem, err := backend.DevMemAllocate(64)
	require.NoError(t, err)
	require.NoError(t, backend.DevMemDeallocate(mem))
}

func TestManager_UnknownBackend(t *testing.T) {
	_, err := NewManager(config.DeviceConfig{Backend: "cuda"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestManager_Cleanup(t *testing.T) {
	manager, err := NewManager(config.DeviceConfig{Backend: config.BackendHost}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, manager.Cleanup())
	assert.Nil(t, manager.GetBackend())
	assert.Equal(t, "none", manager.GetBackendType())
	assert.Equal(t, "No backend available", manager.GetDeviceInfo().Name)
	assert.NoError(t, manager.Cleanup())
}

func TestManager_InstrumentsBackend(t *testing.T) {
	manager, err := NewManager(config.DeviceConfig{
		Backend:     config.BackendHost,
		MemoryBytes: 1 << 20,
		StreamDepth: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Cleanup()
	backend := manager.GetBackend()

	inUse := metrics.DeviceMemoryInUseBytes.WithLabelValues(config.BackendHost)
	allocs := metrics.DeviceAllocations.WithLabelValues(config.BackendHost, "ok")
	failed := metrics.DeviceAllocations.WithLabelValues(config.BackendHost, "error")
	h2d := metrics.TransferBytes.WithLabelValues(config.BackendHost, "h2d")
	streams := metrics.ActiveStreams.WithLabelValues(config.BackendHost)

	inUseBefore := testutil.ToFloat64(inUse)
	allocsBefore := testutil.ToFloat64(allocs)
	failedBefore := testutil.ToFloat64(failed)
	h2dBefore := testutil.ToFloat64(h2d)
	streamsBefore := testutil.ToFloat64(streams)

	mem, err := backend.DevMemAllocate(512)
	require.NoError(t, err)
	assert.Equal(t, inUseBefore+512, testutil.ToFloat64(inUse))
	assert.Equal(t, allocsBefore+1, testutil.ToFloat64(allocs))

	_, err = backend.DevMemAllocate(1 << 21)
	require.Error(t, err)
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))

	require.NoError(t, backend.MemcpyH2D(make([]byte, 256), mem, 256, nil))
	assert.Equal(t, h2dBefore+256, testutil.ToFloat64(h2d))

	stream, err := backend.StreamCreate("metered", 0)
	require.NoError(t, err)
	assert.Equal(t, streamsBefore+1, testutil.ToFloat64(streams))
	require.NoError(t, backend.StreamDestroy(stream))
	assert.Equal(t, streamsBefore, testutil.ToFloat64(streams))

	require.NoError(t, backend.DevMemDeallocate(mem))
	assert.Equal(t, inUseBefore, testutil.ToFloat64(inUse))
}

func TestManager_CleanupResetsGauges(t *testing.T) {
	manager, err := NewManager(config.DeviceConfig{
		Backend:     config.BackendHost,
		MemoryBytes: 1 << 20,
		StreamDepth: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	backend := manager.GetBackend()

	_, err = backend.DevMemAllocate(512)
	require.NoError(t, err)
	_, err = backend.StreamCreate("left open", 0)
	require.NoError(t, err)
	inUse := metrics.DeviceMemoryInUseBytes.WithLabelValues(config.BackendHost)
	streams := metrics.ActiveStreams.WithLabelValues(config.BackendHost)
	require.Greater(t, testutil.ToFloat64(inUse), 0.0)
	require.Greater(t, testutil.ToFloat64(streams), 0.0)

	require.NoError(t, manager.Cleanup())
	assert.Zero(t, testutil.ToFloat64(inUse))
	assert.Zero(t, testutil.ToFloat64(streams))
}
