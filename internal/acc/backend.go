package acc

// DeviceInfo contains information about the accelerator device
type DeviceInfo struct {
	Name            string `json:"name"`
	Vendor          string `json:"vendor,omitempty"`
	Backend         string `json:"backend"`
	TotalMemory     int64  `json:"totalMemory"` // in bytes
	ComputeUnits    int    `json:"computeUnits"`
	DriverVersion   string `json:"driverVersion"`
	RuntimeVersion  string `json:"runtimeVersion,omitempty"`
	DoublePrecision bool   `json:"doublePrecision"`

	// Features lists CPU extensions of the host backend.
	Features []string `json:"features,omitempty"`
}

// DevMem is an opaque device buffer handle. Its contents are only reachable
// through the memcpy operations and kernel launches of the backend that
// allocated it.
type DevMem interface {
	Size() int
}

// Stream is an ordered command queue. Commands on one stream complete in
// submission order; different streams may overlap.
type Stream interface {
	Name() string
}

// Event marks a point in a stream's command sequence.
type Event interface {
	Recorded() bool
}

// MemoryOps allocates, copies and clears device memory.
//
// A nil stream selects the backend's default stream.
type MemoryOps interface {
	// DevMemAllocate creates a read/write device buffer of n bytes.
	DevMemAllocate(n int) (DevMem, error)
	DevMemDeallocate(mem DevMem) error

	// HostMemAllocate returns host staging memory suitable for transfers.
	HostMemAllocate(n int) ([]byte, error)
	HostMemDeallocate(mem []byte) error

	// MemcpyH2D and MemcpyD2H block until count bytes have been transferred.
	MemcpyH2D(host []byte, dev DevMem, count int, stream Stream) error
	MemcpyD2H(dev DevMem, host []byte, count int, stream Stream) error

	// MemcpyD2D and MemsetZero are ordered on the stream but return as soon
	// as the command is queued.
	MemcpyD2D(src, dst DevMem, count int, stream Stream) error
	MemsetZero(dev DevMem, offset, length int, stream Stream) error

	// DevMemInfo reports free and total device memory in bytes.
	DevMemInfo() (free, total int64, err error)
}

// StreamOps manages command queues.
type StreamOps interface {
	// StreamPriorityRange returns (-1, -1) when priorities are unsupported.
	StreamPriorityRange() (least, greatest int)
	StreamCreate(name string, priority int) (Stream, error)
	StreamDestroy(stream Stream) error
	// StreamSync waits for all queued commands and reports the first
	// asynchronous failure since the last sync.
	StreamSync(stream Stream) error
}

// EventOps manages stream markers.
type EventOps interface {
	EventCreate() (Event, error)
	EventDestroy(event Event) error
	EventRecord(event Event, stream Stream) error
	// EventQuery reports whether the last record point was reached. An event
	// that was never recorded counts as occurred.
	EventQuery(event Event) (bool, error)
	StreamWaitEvent(stream Stream, event Event) error
	EventSynchronize(event Event) error
}

// KernelLauncher runs pre-generated small-matrix kernels.
type KernelLauncher interface {
	LaunchMultiply(stream Stream, kernel MultiplyKernel, stack DevMem, stackSize int, a, b, c DevMem) error
	LaunchTranspose(stream Stream, kernel TransposeKernel, stack DevMem, offset, nblks int, buffer DevMem) error
}

// Backend defines the interface for accelerator backends.
//
// Implementation notes:
// - Backends validate handles and ranges before anything is queued
// - Runtime status codes go through Check so failures are logged uniformly
// - Fallback to the host backend is handled by the Manager, not the backend
type Backend interface {
	MemoryOps
	StreamOps
	EventOps
	KernelLauncher

	// Name returns the short backend identifier ("host", "opencl").
	Name() string

	// IsAvailable performs a quick check without heavy initialization.
	IsAvailable() bool

	// Initialize prepares the backend for use. It is idempotent.
	Initialize() error

	// Cleanup releases every resource held by the backend.
	Cleanup() error

	GetDeviceInfo() DeviceInfo
}
