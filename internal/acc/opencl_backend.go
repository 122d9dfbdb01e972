//go:build opencl
// +build opencl

package acc

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>

#define ACC_MAX_PLATFORMS 16
#define ACC_MAX_DEVICES 64

// acc_find_device returns the index-th device counted across all platforms.
static cl_int acc_find_device(cl_uint index, cl_platform_id *platform, cl_device_id *device) {
	cl_platform_id platforms[ACC_MAX_PLATFORMS];
	cl_uint nplatforms = 0;
	cl_int err = clGetPlatformIDs(ACC_MAX_PLATFORMS, platforms, &nplatforms);
	if (err != CL_SUCCESS) return err;
	if (nplatforms > ACC_MAX_PLATFORMS) nplatforms = ACC_MAX_PLATFORMS;

	cl_uint seen = 0;
	for (cl_uint p = 0; p < nplatforms; p++) {
		cl_device_id devices[ACC_MAX_DEVICES];
		cl_uint ndevices = 0;
		if (clGetDeviceIDs(platforms[p], CL_DEVICE_TYPE_ALL, ACC_MAX_DEVICES, devices, &ndevices) != CL_SUCCESS) continue;
		if (ndevices > ACC_MAX_DEVICES) ndevices = ACC_MAX_DEVICES;
		if (index < seen + ndevices) {
			*platform = platforms[p];
			*device = devices[index - seen];
			return CL_SUCCESS;
		}
		seen += ndevices;
	}
	return CL_DEVICE_NOT_FOUND;
}

static cl_int acc_device_string(cl_device_id device, cl_device_info param, char *buf, size_t size) {
	cl_int err = clGetDeviceInfo(device, param, size, buf, NULL);
	buf[size - 1] = 0;
	return err;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/fxnlabs/smm-acc/internal/config"
	"github.com/fxnlabs/smm-acc/internal/metrics"
	"github.com/fxnlabs/smm-acc/kernels"
	"go.uber.org/zap"
)

type clBuffer struct {
	mem  C.cl_mem // nil for zero-sized buffers
	size int
}

func (b *clBuffer) Size() int { return b.size }

type clStream struct {
	name  string
	queue C.cl_command_queue

	mu       sync.Mutex
	launches []clLaunch
}

func (s *clStream) Name() string { return s.name }

// clLaunch is a kernel enqueued on a stream whose timing has not been read.
type clLaunch struct {
	kernel string
	ev     C.cl_event
}

func (s *clStream) track(kernel string, ev C.cl_event) {
	s.mu.Lock()
	s.launches = append(s.launches, clLaunch{kernel: kernel, ev: ev})
	s.mu.Unlock()
}

type clEvent struct {
	mu sync.Mutex
	ev C.cl_event
}

func (e *clEvent) Recorded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ev != nil
}

type clProgram struct {
	program C.cl_program
	kernel  C.cl_kernel
}

// OpenCLBackend implements Backend on an OpenCL 1.2 device.
type OpenCLBackend struct {
	logger      *zap.Logger
	cfg         config.DeviceConfig
	mu          sync.Mutex
	available   bool
	initialized bool
	platform    C.cl_platform_id
	device      C.cl_device_id
	ctx         C.cl_context
	defaultS    *clStream
	deviceInfo  DeviceInfo
	buffers     map[*clBuffer]struct{}
	streams     map[*clStream]struct{}
	events      map[*clEvent]struct{}
	inUse       int64

	// kernelMu serializes argument setup and enqueue on shared kernel objects.
	kernelMu sync.Mutex
	programs map[string]*clProgram
}

// NewOpenCLBackend creates a new OpenCL backend instance
func NewOpenCLBackend(cfg config.DeviceConfig, logger *zap.Logger) *OpenCLBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &OpenCLBackend{
		logger: logger.Named("opencl"),
		cfg:    cfg,
	}

	status := Status(C.acc_find_device(C.cl_uint(cfg.ID), &o.platform, &o.device))
	if status != StatusSuccess {
		o.logger.Warn("OpenCL device not available", zap.Int("device_id", cfg.ID), zap.Stringer("status", status))
		o.available = false
	} else {
		o.available = true
	}
	return o
}

func (o *OpenCLBackend) Name() string { return config.BackendOpenCL }

func (o *OpenCLBackend) IsAvailable() bool {
	return o.available
}

// Initialize creates the context and the default queue.
func (o *OpenCLBackend) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.available {
		return fmt.Errorf("OpenCL device not available: %w", ErrBackendUnavailable)
	}
	if o.initialized {
		return nil
	}

	var status C.cl_int
	o.ctx = C.clCreateContext(nil, 1, &o.device, nil, nil, &status)
	if err := Check(o.logger, Status(status), "clCreateContext"); err != nil {
		return err
	}

	queue := C.clCreateCommandQueue(o.ctx, o.device, C.CL_QUEUE_PROFILING_ENABLE, &status)
	if err := Check(o.logger, Status(status), "clCreateCommandQueue"); err != nil {
		C.clReleaseContext(o.ctx)
		o.ctx = nil
		return err
	}
	o.defaultS = &clStream{name: "default", queue: queue}
	o.buffers = make(map[*clBuffer]struct{})
	o.streams = make(map[*clStream]struct{})
	o.events = make(map[*clEvent]struct{})
	o.programs = make(map[string]*clProgram)
	o.inUse = 0
	o.deviceInfo = o.queryDeviceInfo()
	o.initialized = true

	o.logger.Info("OpenCL backend initialized",
		zap.String("device", o.deviceInfo.Name),
		zap.String("vendor", o.deviceInfo.Vendor),
		zap.Int("compute_units", o.deviceInfo.ComputeUnits),
		zap.Float64("total_memory_gb", float64(o.deviceInfo.TotalMemory)/(1<<30)))
	return nil
}

func (o *OpenCLBackend) queryDeviceInfo() DeviceInfo {
	str := func(param C.cl_device_info) string {
		buf := (*C.char)(C.malloc(256))
		defer C.free(unsafe.Pointer(buf))
		if C.acc_device_string(o.device, param, buf, 256) != C.CL_SUCCESS {
			return ""
		}
		return C.GoString(buf)
	}

	var units C.cl_uint
	C.clGetDeviceInfo(o.device, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(units)), unsafe.Pointer(&units), nil)
	var memSize C.cl_ulong
	C.clGetDeviceInfo(o.device, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(memSize)), unsafe.Pointer(&memSize), nil)
	var fp64 C.cl_device_fp_config
	C.clGetDeviceInfo(o.device, C.CL_DEVICE_DOUBLE_FP_CONFIG, C.size_t(unsafe.Sizeof(fp64)), unsafe.Pointer(&fp64), nil)

	total := int64(memSize)
	if total == 0 {
		total = o.cfg.MemoryBytes
	}
	return DeviceInfo{
		Name:            str(C.CL_DEVICE_NAME),
		Vendor:          str(C.CL_DEVICE_VENDOR),
		Backend:         config.BackendOpenCL,
		TotalMemory:     total,
		ComputeUnits:    int(units),
		DriverVersion:   str(C.CL_DRIVER_VERSION),
		RuntimeVersion:  str(C.CL_DEVICE_VERSION),
		DoublePrecision: fp64 != 0,
	}
}

// Cleanup releases kernels, queues, buffers, events and the context.
func (o *OpenCLBackend) Cleanup() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil
	}
	o.logger.Debug("cleaning up OpenCL backend")

	for s := range o.streams {
		C.clFinish(s.queue)
		o.observeLaunches(s)
		C.clReleaseCommandQueue(s.queue)
	}
	C.clFinish(o.defaultS.queue)
	o.observeLaunches(o.defaultS)
	C.clReleaseCommandQueue(o.defaultS.queue)
	for e := range o.events {
		if e.ev != nil {
			C.clReleaseEvent(e.ev)
		}
	}
	for b := range o.buffers {
		if b.mem != nil {
			C.clReleaseMemObject(b.mem)
		}
	}
	for _, p := range o.programs {
		C.clReleaseKernel(p.kernel)
		C.clReleaseProgram(p.program)
	}
	C.clReleaseContext(o.ctx)

	o.ctx = nil
	o.defaultS = nil
	o.buffers = nil
	o.streams = nil
	o.events = nil
	o.programs = nil
	o.initialized = false
	return nil
}

func (o *OpenCLBackend) GetDeviceInfo() DeviceInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deviceInfo
}

func (o *OpenCLBackend) checkInitialized(op string) error {
	if !o.initialized {
		return fmt.Errorf("acc: %s: OpenCL backend not initialized: %w", op, ErrBackendUnavailable)
	}
	return nil
}

func (o *OpenCLBackend) stream(s Stream, op string) (*clStream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkInitialized(op); err != nil {
		return nil, err
	}
	if s == nil {
		return o.defaultS, nil
	}
	cs, ok := s.(*clStream)
	if !ok {
		return nil, Check(o.logger, StatusInvalidCommandQueue, op)
	}
	if _, ok := o.streams[cs]; !ok {
		return nil, Check(o.logger, StatusInvalidCommandQueue, op)
	}
	return cs, nil
}

func (o *OpenCLBackend) buffer(m DevMem, op string) (*clBuffer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkInitialized(op); err != nil {
		return nil, err
	}
	cb, ok := m.(*clBuffer)
	if !ok {
		return nil, Check(o.logger, StatusInvalidMemObject, op)
	}
	if _, ok := o.buffers[cb]; !ok {
		return nil, Check(o.logger, StatusInvalidMemObject, op)
	}
	return cb, nil
}

func (o *OpenCLBackend) event(e Event, op string) (*clEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkInitialized(op); err != nil {
		return nil, err
	}
	ce, ok := e.(*clEvent)
	if !ok {
		return nil, Check(o.logger, StatusInvalidEvent, op)
	}
	if _, ok := o.events[ce]; !ok {
		return nil, Check(o.logger, StatusInvalidEvent, op)
	}
	return ce, nil
}

// Memory

func (o *OpenCLBackend) DevMemAllocate(n int) (DevMem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkInitialized("DevMemAllocate"); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, Check(o.logger, StatusInvalidBufferSize, "DevMemAllocate")
	}

	buf := &clBuffer{size: n}
	if n > 0 {
		var status C.cl_int
		buf.mem = C.clCreateBuffer(o.ctx, C.CL_MEM_READ_WRITE, C.size_t(n), nil, &status)
		if err := Check(o.logger, Status(status), "clCreateBuffer"); err != nil {
			return nil, err
		}
	}
	o.buffers[buf] = struct{}{}
	o.inUse += int64(n)
	o.logger.Debug("device buffer allocated", zap.Int("bytes", n))
	return buf, nil
}

func (o *OpenCLBackend) DevMemDeallocate(mem DevMem) error {
	buf, err := o.buffer(mem, "DevMemDeallocate")
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.buffers[buf]; !ok {
		return Check(o.logger, StatusInvalidMemObject, "DevMemDeallocate")
	}
	delete(o.buffers, buf)
	o.inUse -= int64(buf.size)
	if buf.mem != nil {
		return Check(o.logger, Status(C.clReleaseMemObject(buf.mem)), "clReleaseMemObject")
	}
	return nil
}

// HostMemAllocate returns Go memory; transfers are blocking so the runtime
// never holds on to the pointer after a call returns.
func (o *OpenCLBackend) HostMemAllocate(n int) ([]byte, error) {
	if n < 0 {
		return nil, Check(o.logger, StatusInvalidBufferSize, "HostMemAllocate")
	}
	return alignedBytes(n), nil
}

func (o *OpenCLBackend) HostMemDeallocate(mem []byte) error {
	return nil
}

func (o *OpenCLBackend) transferArgs(dev DevMem, stream Stream, op string) (*clBuffer, *clStream, error) {
	buf, err := o.buffer(dev, op)
	if err != nil {
		return nil, nil, err
	}
	s, err := o.stream(stream, op)
	if err != nil {
		return nil, nil, err
	}
	return buf, s, nil
}

func (o *OpenCLBackend) MemcpyH2D(host []byte, dev DevMem, count int, stream Stream) error {
	buf, s, err := o.transferArgs(dev, stream, "MemcpyH2D")
	if err != nil {
		return err
	}
	if count < 0 || count > len(host) || count > buf.size {
		return Check(o.logger, StatusInvalidValue, "MemcpyH2D")
	}
	if count == 0 {
		return nil
	}
	status := C.clEnqueueWriteBuffer(s.queue, buf.mem, C.CL_TRUE, 0, C.size_t(count),
		unsafe.Pointer(&host[0]), 0, nil, nil)
	return Check(o.logger, Status(status), "clEnqueueWriteBuffer")
}

func (o *OpenCLBackend) MemcpyD2H(dev DevMem, host []byte, count int, stream Stream) error {
	buf, s, err := o.transferArgs(dev, stream, "MemcpyD2H")
	if err != nil {
		return err
	}
	if count < 0 || count > len(host) || count > buf.size {
		return Check(o.logger, StatusInvalidValue, "MemcpyD2H")
	}
	if count == 0 {
		return nil
	}
	status := C.clEnqueueReadBuffer(s.queue, buf.mem, C.CL_TRUE, 0, C.size_t(count),
		unsafe.Pointer(&host[0]), 0, nil, nil)
	return Check(o.logger, Status(status), "clEnqueueReadBuffer")
}

func (o *OpenCLBackend) MemcpyD2D(src, dst DevMem, count int, stream Stream) error {
	from, s, err := o.transferArgs(src, stream, "MemcpyD2D")
	if err != nil {
		return err
	}
	to, err := o.buffer(dst, "MemcpyD2D")
	if err != nil {
		return err
	}
	if count < 0 || count > from.size || count > to.size {
		return Check(o.logger, StatusInvalidValue, "MemcpyD2D")
	}
	if count == 0 {
		return nil
	}
	status := C.clEnqueueCopyBuffer(s.queue, from.mem, to.mem, 0, 0, C.size_t(count), 0, nil, nil)
	return Check(o.logger, Status(status), "clEnqueueCopyBuffer")
}

func (o *OpenCLBackend) MemsetZero(dev DevMem, offset, length int, stream Stream) error {
	buf, s, err := o.transferArgs(dev, stream, "MemsetZero")
	if err != nil {
		return err
	}
	if length < 0 || !inRange(offset, length, buf.size) {
		return Check(o.logger, StatusInvalidValue, "MemsetZero")
	}
	if length == 0 {
		return nil
	}
	var zero C.cl_uchar
	status := C.clEnqueueFillBuffer(s.queue, buf.mem, unsafe.Pointer(&zero), 1,
		C.size_t(offset), C.size_t(length), 0, nil, nil)
	return Check(o.logger, Status(status), "clEnqueueFillBuffer")
}

// DevMemInfo derives free memory from tracked allocations; OpenCL 1.x has no
// query for it.
func (o *OpenCLBackend) DevMemInfo() (free, total int64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkInitialized("DevMemInfo"); err != nil {
		return 0, 0, err
	}
	total = o.deviceInfo.TotalMemory
	return total - o.inUse, total, nil
}

// Streams

// StreamPriorityRange reports that OpenCL queues have no priorities.
func (o *OpenCLBackend) StreamPriorityRange() (least, greatest int) {
	return -1, -1
}

func (o *OpenCLBackend) StreamCreate(name string, priority int) (Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkInitialized("StreamCreate"); err != nil {
		return nil, err
	}
	var status C.cl_int
	queue := C.clCreateCommandQueue(o.ctx, o.device, C.CL_QUEUE_PROFILING_ENABLE, &status)
	if err := Check(o.logger, Status(status), "clCreateCommandQueue"); err != nil {
		return nil, err
	}
	s := &clStream{name: name, queue: queue}
	o.streams[s] = struct{}{}
	o.logger.Debug("stream created", zap.String("stream", name), zap.Int("priority", priority))
	return s, nil
}

func (o *OpenCLBackend) StreamDestroy(stream Stream) error {
	if stream == nil {
		return Check(o.logger, StatusInvalidCommandQueue, "StreamDestroy")
	}
	s, err := o.stream(stream, "StreamDestroy")
	if err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.streams, s)
	o.mu.Unlock()

	err = Check(o.logger, Status(C.clFinish(s.queue)), "clFinish")
	o.observeLaunches(s)
	if err != nil {
		C.clReleaseCommandQueue(s.queue)
		return err
	}
	return Check(o.logger, Status(C.clReleaseCommandQueue(s.queue)), "clReleaseCommandQueue")
}

// StreamSync waits for completion; a flush alone would not guarantee it.
func (o *OpenCLBackend) StreamSync(stream Stream) error {
	s, err := o.stream(stream, "StreamSync")
	if err != nil {
		return err
	}
	err = Check(o.logger, Status(C.clFinish(s.queue)), "clFinish")
	o.observeLaunches(s)
	return err
}

// observeLaunches records the device time of every finished kernel launched
// on s and releases the launch events. Call after clFinish.
func (o *OpenCLBackend) observeLaunches(s *clStream) {
	s.mu.Lock()
	launches := s.launches
	s.launches = nil
	s.mu.Unlock()

	for _, l := range launches {
		var start, end C.cl_ulong
		size := C.size_t(unsafe.Sizeof(start))
		if C.clGetEventProfilingInfo(l.ev, C.CL_PROFILING_COMMAND_START, size, unsafe.Pointer(&start), nil) == C.CL_SUCCESS &&
			C.clGetEventProfilingInfo(l.ev, C.CL_PROFILING_COMMAND_END, size, unsafe.Pointer(&end), nil) == C.CL_SUCCESS &&
			end >= start {
			metrics.KernelDuration.WithLabelValues(l.kernel).Observe(float64(end-start) / 1e6)
		}
		C.clReleaseEvent(l.ev)
	}
}

// Events

func (o *OpenCLBackend) EventCreate() (Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkInitialized("EventCreate"); err != nil {
		return nil, err
	}
	e := &clEvent{}
	o.events[e] = struct{}{}
	return e, nil
}

func (o *OpenCLBackend) EventDestroy(event Event) error {
	e, err := o.event(event, "EventDestroy")
	if err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.events, e)
	o.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ev != nil {
		status := C.clReleaseEvent(e.ev)
		e.ev = nil
		return Check(o.logger, Status(status), "clReleaseEvent")
	}
	return nil
}

func (o *OpenCLBackend) EventRecord(event Event, stream Stream) error {
	e, err := o.event(event, "EventRecord")
	if err != nil {
		return err
	}
	s, err := o.stream(stream, "EventRecord")
	if err != nil {
		return err
	}

	var marker C.cl_event
	status := C.clEnqueueMarkerWithWaitList(s.queue, 0, nil, &marker)
	if err := Check(o.logger, Status(status), "clEnqueueMarkerWithWaitList"); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ev != nil {
		C.clReleaseEvent(e.ev)
	}
	e.ev = marker
	return nil
}

func (o *OpenCLBackend) EventQuery(event Event) (bool, error) {
	e, err := o.event(event, "EventQuery")
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ev == nil {
		return true, nil
	}
	var state C.cl_int
	status := C.clGetEventInfo(e.ev, C.CL_EVENT_COMMAND_EXECUTION_STATUS,
		C.size_t(unsafe.Sizeof(state)), unsafe.Pointer(&state), nil)
	if err := Check(o.logger, Status(status), "clGetEventInfo"); err != nil {
		return false, err
	}
	if state < 0 {
		return false, Check(o.logger, Status(state), "event execution")
	}
	return state == C.CL_COMPLETE, nil
}

func (o *OpenCLBackend) StreamWaitEvent(stream Stream, event Event) error {
	e, err := o.event(event, "StreamWaitEvent")
	if err != nil {
		return err
	}
	s, err := o.stream(stream, "StreamWaitEvent")
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ev == nil {
		return nil
	}
	status := C.clEnqueueBarrierWithWaitList(s.queue, 1, &e.ev, nil)
	return Check(o.logger, Status(status), "clEnqueueBarrierWithWaitList")
}

// EventSynchronize blocks on the marker; the event and the waiting queue share
// the backend's single context.
func (o *OpenCLBackend) EventSynchronize(event Event) error {
	e, err := o.event(event, "EventSynchronize")
	if err != nil {
		return err
	}
	e.mu.Lock()
	ev := e.ev
	if ev != nil {
		C.clRetainEvent(ev)
	}
	e.mu.Unlock()
	if ev == nil {
		return nil
	}
	defer C.clReleaseEvent(ev)
	return Check(o.logger, Status(C.clWaitForEvents(1, &ev)), "clWaitForEvents")
}

// Kernels

// program returns the cached kernel for key, building it on first use.
// Caller holds kernelMu.
func (o *OpenCLBackend) program(key, file, entry string, defines ...kernels.Define) (C.cl_kernel, error) {
	if p, ok := o.programs[key]; ok {
		return p.kernel, nil
	}

	source, err := kernels.Program(o.cfg.KernelDir, file)
	if err != nil {
		return nil, err
	}
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))
	length := C.size_t(len(source))

	var status C.cl_int
	prog := C.clCreateProgramWithSource(o.ctx, 1, &csrc, &length, &status)
	if err := Check(o.logger, Status(status), "clCreateProgramWithSource"); err != nil {
		return nil, err
	}

	opts := C.CString(kernels.BuildOptions(defines...))
	defer C.free(unsafe.Pointer(opts))
	status = C.clBuildProgram(prog, 1, &o.device, opts, nil, nil)
	if Status(status) != StatusSuccess {
		o.logger.Error("kernel build failed", zap.String("kernel", key), zap.String("log", o.buildLog(prog)))
		C.clReleaseProgram(prog)
		return nil, Check(o.logger, Status(status), "clBuildProgram")
	}

	centry := C.CString(entry)
	defer C.free(unsafe.Pointer(centry))
	kernel := C.clCreateKernel(prog, centry, &status)
	if err := Check(o.logger, Status(status), "clCreateKernel"); err != nil {
		C.clReleaseProgram(prog)
		return nil, err
	}

	o.programs[key] = &clProgram{program: prog, kernel: kernel}
	o.logger.Debug("kernel built", zap.String("kernel", key))
	return kernel, nil
}

func (o *OpenCLBackend) buildLog(prog C.cl_program) string {
	var size C.size_t
	if C.clGetProgramBuildInfo(prog, o.device, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := C.malloc(size)
	defer C.free(buf)
	if C.clGetProgramBuildInfo(prog, o.device, C.CL_PROGRAM_BUILD_LOG, size, buf, nil) != C.CL_SUCCESS {
		return ""
	}
	return C.GoStringN((*C.char)(buf), C.int(size))
}

func setArg(kernel C.cl_kernel, index int, size uintptr, value unsafe.Pointer) C.cl_int {
	return C.clSetKernelArg(kernel, C.cl_uint(index), C.size_t(size), value)
}

func (o *OpenCLBackend) LaunchMultiply(stream Stream, kernel MultiplyKernel, stack DevMem, stackSize int, a, b, c DevMem) error {
	s, err := o.stream(stream, "LaunchMultiply")
	if err != nil {
		return err
	}
	bufs := make([]*clBuffer, 0, 4)
	for _, m := range []DevMem{stack, a, b, c} {
		buf, err := o.buffer(m, "LaunchMultiply")
		if err != nil {
			return err
		}
		bufs = append(bufs, buf)
	}
	if stackSize < 0 || stackSize > bufs[0].size/(StackEntryParams*4) {
		return Check(o.logger, StatusInvalidValue, "LaunchMultiply")
	}
	if kernel.M < 1 || kernel.N < 1 || kernel.K < 1 || kernel.Grouping < 1 || kernel.Threads < 1 {
		return Check(o.logger, StatusInvalidKernelArgs, "LaunchMultiply")
	}
	if stackSize == 0 {
		return nil
	}

	o.kernelMu.Lock()
	defer o.kernelMu.Unlock()
	k, err := o.program(kernel.Name(), kernels.MultiplyFile, kernels.MultiplyEntry,
		kernels.Define{Name: "SMM_M", Value: kernel.M},
		kernels.Define{Name: "SMM_N", Value: kernel.N},
		kernels.Define{Name: "SMM_K", Value: kernel.K},
		kernels.Define{Name: "SMM_GROUPING", Value: kernel.Grouping},
	)
	if err != nil {
		return err
	}

	size := C.cl_int(stackSize)
	memSize := unsafe.Sizeof(bufs[0].mem)
	for i, arg := range []struct {
		size  uintptr
		value unsafe.Pointer
	}{
		{memSize, unsafe.Pointer(&bufs[0].mem)},
		{unsafe.Sizeof(size), unsafe.Pointer(&size)},
		{memSize, unsafe.Pointer(&bufs[1].mem)},
		{memSize, unsafe.Pointer(&bufs[2].mem)},
		{memSize, unsafe.Pointer(&bufs[3].mem)},
	} {
		if err := Check(o.logger, Status(setArg(k, i, arg.size, arg.value)), fmt.Sprintf("clSetKernelArg(%d)", i)); err != nil {
			return err
		}
	}

	groups := (stackSize + kernel.Grouping - 1) / kernel.Grouping
	local := C.size_t(kernel.Threads)
	global := C.size_t(groups) * local
	var ev C.cl_event
	status := C.clEnqueueNDRangeKernel(s.queue, k, 1, nil, &global, &local, 0, nil, &ev)
	if err := Check(o.logger, Status(status), "clEnqueueNDRangeKernel"); err != nil {
		return err
	}
	s.track(kernel.Name(), ev)
	return nil
}

func (o *OpenCLBackend) LaunchTranspose(stream Stream, kernel TransposeKernel, stack DevMem, offset, nblks int, buffer DevMem) error {
	s, err := o.stream(stream, "LaunchTranspose")
	if err != nil {
		return err
	}
	stackBuf, err := o.buffer(stack, "LaunchTranspose")
	if err != nil {
		return err
	}
	buf, err := o.buffer(buffer, "LaunchTranspose")
	if err != nil {
		return err
	}
	if offset < 0 || nblks < 0 || !inRange(offset, nblks, stackBuf.size/4) {
		return Check(o.logger, StatusInvalidValue, "LaunchTranspose")
	}
	if kernel.M < 1 || kernel.N < 1 {
		return Check(o.logger, StatusInvalidKernelArgs, "LaunchTranspose")
	}
	if nblks == 0 {
		return nil
	}

	o.kernelMu.Lock()
	defer o.kernelMu.Unlock()
	k, err := o.program(kernel.Name(), kernels.TransposeFile, kernels.TransposeEntry,
		kernels.Define{Name: "SMM_M", Value: kernel.M},
		kernels.Define{Name: "SMM_N", Value: kernel.N},
	)
	if err != nil {
		return err
	}

	off := C.cl_int(offset)
	memSize := unsafe.Sizeof(stackBuf.mem)
	if err := Check(o.logger, Status(setArg(k, 0, memSize, unsafe.Pointer(&stackBuf.mem))), "clSetKernelArg(0)"); err != nil {
		return err
	}
	if err := Check(o.logger, Status(setArg(k, 1, unsafe.Sizeof(off), unsafe.Pointer(&off))), "clSetKernelArg(1)"); err != nil {
		return err
	}
	if err := Check(o.logger, Status(setArg(k, 2, memSize, unsafe.Pointer(&buf.mem))), "clSetKernelArg(2)"); err != nil {
		return err
	}
	// one block of local memory per work group
	if err := Check(o.logger, Status(setArg(k, 3, uintptr(kernel.M*kernel.N*8), nil)), "clSetKernelArg(3)"); err != nil {
		return err
	}

	local := C.size_t(kernel.M)
	global := C.size_t(nblks) * local
	var ev C.cl_event
	status := C.clEnqueueNDRangeKernel(s.queue, k, 1, nil, &global, &local, 0, nil, &ev)
	if err := Check(o.logger, Status(status), "clEnqueueNDRangeKernel"); err != nil {
		return err
	}
	s.track(kernel.Name(), ev)
	return nil
}
