package acc

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Status is a vendor runtime status code. Zero means success, negative values
// follow the OpenCL numbering.
type Status int32

const (
	StatusSuccess                  Status = 0
	StatusDeviceNotFound           Status = -1
	StatusDeviceNotAvailable       Status = -2
	StatusCompilerNotAvailable     Status = -3
	StatusMemAllocFailure          Status = -4
	StatusOutOfResources           Status = -5
	StatusOutOfHostMemory          Status = -6
	StatusMemCopyOverlap           Status = -8
	StatusBuildProgramFailure      Status = -11
	StatusInvalidValue             Status = -30
	StatusInvalidDevice            Status = -33
	StatusInvalidContext           Status = -34
	StatusInvalidCommandQueue      Status = -36
	StatusInvalidHostPtr           Status = -37
	StatusInvalidMemObject         Status = -38
	StatusInvalidProgramExecutable Status = -45
	StatusInvalidKernelName        Status = -46
	StatusInvalidKernelArgs        Status = -52
	StatusInvalidWorkGroupSize     Status = -54
	StatusInvalidEvent             Status = -58
	StatusInvalidOperation         Status = -59
	StatusInvalidBufferSize        Status = -61
)

var statusNames = map[Status]string{
	StatusSuccess:                  "SUCCESS",
	StatusDeviceNotFound:           "DEVICE_NOT_FOUND",
	StatusDeviceNotAvailable:       "DEVICE_NOT_AVAILABLE",
	StatusCompilerNotAvailable:     "COMPILER_NOT_AVAILABLE",
	StatusMemAllocFailure:          "MEM_OBJECT_ALLOCATION_FAILURE",
	StatusOutOfResources:           "OUT_OF_RESOURCES",
	StatusOutOfHostMemory:          "OUT_OF_HOST_MEMORY",
	StatusMemCopyOverlap:           "MEM_COPY_OVERLAP",
	StatusBuildProgramFailure:      "BUILD_PROGRAM_FAILURE",
	StatusInvalidValue:             "INVALID_VALUE",
	StatusInvalidDevice:            "INVALID_DEVICE",
	StatusInvalidContext:           "INVALID_CONTEXT",
	StatusInvalidCommandQueue:      "INVALID_COMMAND_QUEUE",
	StatusInvalidHostPtr:           "INVALID_HOST_PTR",
	StatusInvalidMemObject:         "INVALID_MEM_OBJECT",
	StatusInvalidProgramExecutable: "INVALID_PROGRAM_EXECUTABLE",
	StatusInvalidKernelName:        "INVALID_KERNEL_NAME",
	StatusInvalidKernelArgs:        "INVALID_KERNEL_ARGS",
	StatusInvalidWorkGroupSize:     "INVALID_WORK_GROUP_SIZE",
	StatusInvalidEvent:             "INVALID_EVENT",
	StatusInvalidOperation:         "INVALID_OPERATION",
	StatusInvalidBufferSize:        "INVALID_BUFFER_SIZE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_STATUS(%d)", int32(s))
}

// Sentinel errors matched by StatusError through errors.Is.
var (
	ErrOutOfMemory        = errors.New("acc: out of device memory")
	ErrInvalidHandle      = errors.New("acc: invalid handle")
	ErrInvalidValue       = errors.New("acc: invalid value")
	ErrNotSupported       = errors.New("acc: not supported")
	ErrBackendUnavailable = errors.New("acc: backend unavailable")
	ErrDevice             = errors.New("acc: device error")
)

// StatusError reports a failed runtime call.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("acc: %s failed: %s (%d)", e.Op, e.Status, int32(e.Status))
}

// Is maps status codes onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrOutOfMemory:
		return e.Status == StatusMemAllocFailure || e.Status == StatusOutOfResources || e.Status == StatusOutOfHostMemory
	case ErrInvalidHandle:
		return e.Status == StatusInvalidMemObject || e.Status == StatusInvalidCommandQueue || e.Status == StatusInvalidEvent
	case ErrInvalidValue:
		return e.Status == StatusInvalidValue || e.Status == StatusInvalidBufferSize || e.Status == StatusInvalidHostPtr
	case ErrNotSupported:
		return e.Status == StatusInvalidOperation
	case ErrBackendUnavailable:
		return e.Status == StatusDeviceNotFound || e.Status == StatusDeviceNotAvailable
	case ErrDevice:
		return true
	}
	return false
}

// Check turns a runtime status into an error. Failures are logged once here so
// callers only need to propagate the result.
func Check(log *zap.Logger, status Status, op string) error {
	if status == StatusSuccess {
		return nil
	}
	if log != nil {
		log.Error("runtime error",
			zap.Int("pid", os.Getpid()),
			zap.String("op", op),
			zap.Int32("status", int32(status)),
			zap.Stringer("name", status),
		)
	}
	return &StatusError{Op: op, Status: status}
}
