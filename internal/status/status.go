// Package status serves read-only JSON views of the accelerator.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/fxnlabs/smm-acc/internal/acc"
	"github.com/fxnlabs/smm-acc/internal/libsmm"
	"go.uber.org/zap"
)

// DeviceSource is the part of the backend manager the handlers read.
type DeviceSource interface {
	GetBackend() acc.Backend
	GetBackendType() string
}

type Memory struct {
	Free  int64 `json:"free"`
	Total int64 `json:"total"`
}

type Device struct {
	Backend string         `json:"backend"`
	Device  acc.DeviceInfo `json:"device"`
	Memory  Memory         `json:"memory"`
}

type BlocksizeList struct {
	Object string   `json:"object"`
	Data   [][3]int `json:"data"`
}

// NewDeviceHandler reports the active backend, its device and memory usage.
func NewDeviceHandler(source DeviceSource, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backend := source.GetBackend()
		if backend == nil {
			http.Error(w, "no backend available", http.StatusServiceUnavailable)
			return
		}
		free, total, err := backend.DevMemInfo()
		if err != nil {
			log.Error("failed to query device memory", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, log, Device{
			Backend: source.GetBackendType(),
			Device:  backend.GetDeviceInfo(),
			Memory:  Memory{Free: free, Total: total},
		})
	}
}

// NewBlocksizesHandler lists the (m, n, k) block sizes with a kernel.
func NewBlocksizesHandler(log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, BlocksizeList{Object: "list", Data: libsmm.ListBlocksizes()})
	}
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}
