package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	EndpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "endpoint_duration_seconds",
		Help:    "Latency of endpoint responses",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Device memory metrics
	DeviceMemoryInUseBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acc_device_memory_in_use_bytes",
		Help: "Device memory currently allocated through the offload layer",
	}, []string{"backend"})

	DeviceAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acc_device_allocations_total",
		Help: "Total number of device buffer allocations by result",
	}, []string{"backend", "result"})

	// Direction is one of h2d, d2h, d2d or memset.
	TransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acc_transfer_bytes_total",
		Help: "Bytes moved or cleared on the device by direction",
	}, []string{"backend", "direction"})

	ActiveStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acc_active_streams",
		Help: "Number of streams currently open",
	}, []string{"backend"})

	// Kernel metrics
	KernelLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsmm_kernel_launches_total",
		Help: "Kernel launches by kernel name and result",
	}, []string{"kernel", "result"})

	UnsupportedDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsmm_unsupported_dispatches_total",
		Help: "Dispatch requests without a matching kernel by operation and reason",
	}, []string{"operation", "reason"})

	StackSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "libsmm_stack_size",
		Help:    "Number of entries per multiply stack",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1 to ~262k
	})

	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libsmm_kernel_duration_ms",
		Help:    "Execution time of kernels on the device in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 18), // 10µs to ~1.3s
	}, []string{"kernel"})

	BenchGFLOPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "libsmm_bench_gflops",
		Help: "Throughput of the last benchmark run per kernel",
	}, []string{"kernel", "backend"})
)
