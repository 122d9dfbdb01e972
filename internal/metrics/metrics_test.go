package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceMetrics(t *testing.T) {
	t.Run("DeviceMemoryInUseBytes", func(t *testing.T) {
		gauge := DeviceMemoryInUseBytes.WithLabelValues("test")
		gauge.Set(0)
		gauge.Add(4096)
		gauge.Sub(1024)
		assert.Equal(t, float64(3072), testutil.ToFloat64(gauge))
	})

	t.Run("TransferBytes", func(t *testing.T) {
		counter := TransferBytes.WithLabelValues("test", "h2d")
		before := testutil.ToFloat64(counter)
		counter.Add(512)
		assert.Equal(t, before+512, testutil.ToFloat64(counter))
	})

	t.Run("ActiveStreams", func(t *testing.T) {
		gauge := ActiveStreams.WithLabelValues("test")
		gauge.Set(0)
		gauge.Inc()
		gauge.Inc()
		gauge.Dec()
		assert.Equal(t, float64(1), testutil.ToFloat64(gauge))
	})
}

func TestKernelMetrics(t *testing.T) {
	t.Run("KernelLaunches", func(t *testing.T) {
		ok := KernelLaunches.WithLabelValues("test_kernel", "ok")
		failed := KernelLaunches.WithLabelValues("test_kernel", "error")
		okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

		ok.Inc()
		ok.Inc()
		failed.Inc()

		assert.Equal(t, okBefore+2, testutil.ToFloat64(ok))
		assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
	})

	t.Run("histograms", func(t *testing.T) {
		assert.NotPanics(t, func() {
			StackSize.Observe(30000)
			KernelDuration.WithLabelValues("test_kernel").Observe(0.25)
		})
		assert.Equal(t, 1, testutil.CollectAndCount(StackSize))
	})

	t.Run("BenchGFLOPS", func(t *testing.T) {
		gauge := BenchGFLOPS.WithLabelValues("test_kernel", "host")
		gauge.Set(12.5)
		assert.Equal(t, 12.5, testutil.ToFloat64(gauge))
	})
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		write  bool
	}{
		{"implicit ok", http.StatusOK, false},
		{"explicit not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.write {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte("body"))
			})
			label := EndpointResponses.WithLabelValues("/test", strconv.Itoa(tt.status))
			before := testutil.ToFloat64(label)

			rr := httptest.NewRecorder()
			Middleware(next, "/test").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

			require.Equal(t, tt.status, rr.Code)
			assert.Equal(t, before+1, testutil.ToFloat64(label))
		})
	}
}
