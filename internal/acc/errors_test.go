package acc

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCheck(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	t.Run("success passes", func(t *testing.T) {
		assert.NoError(t, Check(log, StatusSuccess, "clFinish"))
		assert.Zero(t, logs.Len())
	})

	t.Run("failure is logged and returned", func(t *testing.T) {
		err := Check(log, StatusInvalidCommandQueue, "clFinish")
		require.Error(t, err)

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, "clFinish", statusErr.Op)
		assert.Equal(t, StatusInvalidCommandQueue, statusErr.Status)
		assert.Contains(t, err.Error(), "INVALID_COMMAND_QUEUE")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(os.Getpid()), fields["pid"])
		assert.Equal(t, "clFinish", fields["op"])
	})

	t.Run("nil logger", func(t *testing.T) {
		assert.Error(t, Check(nil, StatusInvalidValue, "clSetKernelArg"))
	})
}

func TestStatusErrorIs(t *testing.T) {
	tests := []struct {
		status Status
		target error
	}{
		{StatusMemAllocFailure, ErrOutOfMemory},
		{StatusOutOfResources, ErrOutOfMemory},
		{StatusInvalidMemObject, ErrInvalidHandle},
		{StatusInvalidCommandQueue, ErrInvalidHandle},
		{StatusInvalidEvent, ErrInvalidHandle},
		{StatusInvalidValue, ErrInvalidValue},
		{StatusInvalidBufferSize, ErrInvalidValue},
		{StatusInvalidOperation, ErrNotSupported},
		{StatusDeviceNotFound, ErrBackendUnavailable},
		{StatusBuildProgramFailure, ErrDevice},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &StatusError{Op: "op", Status: tt.status})
			assert.ErrorIs(t, err, tt.target)
		})
	}

	assert.NotErrorIs(t, &StatusError{Op: "op", Status: StatusInvalidValue}, ErrOutOfMemory)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "SUCCESS", StatusSuccess.String())
	assert.Equal(t, "MEM_OBJECT_ALLOCATION_FAILURE", StatusMemAllocFailure.String())
	assert.Equal(t, "UNKNOWN_STATUS(-9999)", Status(-9999).String())
}
