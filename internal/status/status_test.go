package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxnlabs/smm-acc/internal/acc"
	"github.com/fxnlabs/smm-acc/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDeviceHandler(t *testing.T) {
	log := zap.NewNop()
	manager, err := acc.NewManager(config.DeviceConfig{
		Backend:     config.BackendHost,
		MemoryBytes: 8192,
		StreamDepth: 4,
	}, log)
	require.NoError(t, err)
	defer manager.Cleanup()

	mem, err := manager.GetBackend().DevMemAllocate(1024)
	require.NoError(t, err)
	defer manager.GetBackend().DevMemDeallocate(mem)

	handler := NewDeviceHandler(manager, log)
	req := httptest.NewRequest("GET", "/device", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var device Device
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&device))
	assert.Equal(t, config.BackendHost, device.Backend)
	assert.Equal(t, config.BackendHost, device.Device.Backend)
	assert.True(t, device.Device.DoublePrecision)
	assert.Equal(t, int64(8192), device.Memory.Total)
	assert.Equal(t, int64(7168), device.Memory.Free)
}

func TestNewDeviceHandler_NoBackend(t *testing.T) {
	manager, err := acc.NewManager(config.DeviceConfig{Backend: config.BackendHost}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, manager.Cleanup())

	rr := httptest.NewRecorder()
	NewDeviceHandler(manager, zap.NewNop()).ServeHTTP(rr, httptest.NewRequest("GET", "/device", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewBlocksizesHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NewBlocksizesHandler(zap.NewNop()).ServeHTTP(rr, httptest.NewRequest("GET", "/blocksizes", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var list BlocksizeList
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Equal(t, "list", list.Object)
	assert.Contains(t, list.Data, [3]int{23, 23, 23})
}
