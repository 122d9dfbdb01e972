package acc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostBackend_EventNeverRecorded(t *testing.T) {
	backend := newTestBackend(t, 1024)
	event, err := backend.EventCreate()
	require.NoError(t, err)
	assert.False(t, event.Recorded())

	occurred, err := backend.EventQuery(event)
	require.NoError(t, err)
	assert.True(t, occurred)
	assert.NoError(t, backend.EventSynchronize(event))
	assert.NoError(t, backend.StreamWaitEvent(nil, event))
}

func TestHostBackend_EventRecordQuery(t *testing.T) {
	backend := newTestBackend(t, 1024)
	stream, err := backend.StreamCreate("events", 0)
	require.NoError(t, err)
	event, err := backend.EventCreate()
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, stream.(*hostStream).enqueue(func() error {
		<-release
		return nil
	}))
	require.NoError(t, backend.EventRecord(event, stream))
	assert.True(t, event.Recorded())

	occurred, err := backend.EventQuery(event)
	require.NoError(t, err)
	assert.False(t, occurred, "event recorded behind a blocked command")

	close(release)
	require.NoError(t, backend.EventSynchronize(event))
	occurred, err = backend.EventQuery(event)
	require.NoError(t, err)
	assert.True(t, occurred)
}

func TestHostBackend_StreamWaitEvent(t *testing.T) {
	backend := newTestBackend(t, 1024)
	producer, err := backend.StreamCreate("producer", 0)
	require.NoError(t, err)
	consumer, err := backend.StreamCreate("consumer", 0)
	require.NoError(t, err)
	event, err := backend.EventCreate()
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, producer.(*hostStream).enqueue(func() error {
		<-release
		return nil
	}))
	require.NoError(t, backend.EventRecord(event, producer))
	require.NoError(t, backend.StreamWaitEvent(consumer, event))

	synced := make(chan error, 1)
	go func() { synced <- backend.StreamSync(consumer) }()

	select {
	case <-synced:
		t.Fatal("consumer finished before the producer's event")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-synced:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never released")
	}
}

func TestHostBackend_EventRerecord(t *testing.T) {
	backend := newTestBackend(t, 1024)
	event, err := backend.EventCreate()
	require.NoError(t, err)

	require.NoError(t, backend.EventRecord(event, nil))
	require.NoError(t, backend.EventSynchronize(event))

	stream, err := backend.StreamCreate("late", 0)
	require.NoError(t, err)
	release := make(chan struct{})
	require.NoError(t, stream.(*hostStream).enqueue(func() error {
		<-release
		return nil
	}))
	require.NoError(t, backend.EventRecord(event, stream))

	occurred, err := backend.EventQuery(event)
	require.NoError(t, err)
	assert.False(t, occurred, "re-record replaces the completed marker")
	close(release)
	require.NoError(t, backend.EventSynchronize(event))
}

func TestHostBackend_EventDestroy(t *testing.T) {
	backend := newTestBackend(t, 1024)
	event, err := backend.EventCreate()
	require.NoError(t, err)
	require.NoError(t, backend.EventDestroy(event))

	assert.ErrorIs(t, backend.EventDestroy(event), ErrInvalidHandle)
	_, err = backend.EventQuery(event)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, backend.EventRecord(event, nil), ErrInvalidHandle)
}
