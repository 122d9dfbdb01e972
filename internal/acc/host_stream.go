package acc

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type hostStream struct {
	name string
	cmds chan func() error
	done chan struct{}

	// closeMu guards closed against concurrent enqueue/close.
	closeMu sync.RWMutex
	closed  bool

	errMu sync.Mutex
	err   error
}

func newHostStream(name string, depth int) *hostStream {
	s := &hostStream{
		name: name,
		cmds: make(chan func() error, depth),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *hostStream) Name() string { return s.name }

func (s *hostStream) loop() {
	defer close(s.done)
	for cmd := range s.cmds {
		if err := s.exec(cmd); err != nil {
			s.errMu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.errMu.Unlock()
		}
	}
}

// exec runs one command, turning a panic (for example a buffer released while
// still referenced by queued work) into the stream's error.
func (s *hostStream) exec(cmd func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("acc: stream %q: command panicked: %v: %w", s.name, r, ErrDevice)
		}
	}()
	return cmd()
}

// enqueue appends a command; it blocks while the queue is full.
func (s *hostStream) enqueue(cmd func() error) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return &StatusError{Op: "enqueue", Status: StatusInvalidCommandQueue}
	}
	s.cmds <- cmd
	return nil
}

// run enqueues fn and waits for its result, bypassing the sticky error.
func (s *hostStream) run(fn func() error) error {
	res := make(chan error, 1)
	err := s.enqueue(func() error {
		res <- s.exec(fn)
		return nil
	})
	if err != nil {
		return err
	}
	return <-res
}

// sync waits for everything queued so far and returns the sticky error.
func (s *hostStream) sync() error {
	barrier := make(chan struct{})
	if err := s.enqueue(func() error {
		close(barrier)
		return nil
	}); err != nil {
		return err
	}
	<-barrier

	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.err
	s.err = nil
	return err
}

// close drains the queue and stops the worker. Safe to call twice.
func (s *hostStream) close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.cmds)
	s.closeMu.Unlock()
	<-s.done
}

// StreamPriorityRange reports that priorities are not supported.
func (h *HostBackend) StreamPriorityRange() (least, greatest int) {
	return -1, -1
}

// StreamCreate opens a new stream. The priority is ignored.
func (h *HostBackend) StreamCreate(name string, priority int) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized("StreamCreate"); err != nil {
		return nil, err
	}
	s := newHostStream(name, h.cfg.StreamDepth)
	h.streams[s] = struct{}{}
	h.logger.Debug("stream created", zap.String("stream", name), zap.Int("priority", priority))
	return s, nil
}

// StreamDestroy waits for outstanding commands and releases the stream.
func (h *HostBackend) StreamDestroy(stream Stream) error {
	if stream == nil {
		return Check(h.logger, StatusInvalidCommandQueue, "StreamDestroy")
	}
	s, err := h.stream(stream, "StreamDestroy")
	if err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.streams, s)
	h.mu.Unlock()

	s.close()
	h.logger.Debug("stream destroyed", zap.String("stream", s.name))
	return nil
}

// StreamSync blocks until the stream is idle.
func (h *HostBackend) StreamSync(stream Stream) error {
	s, err := h.stream(stream, "StreamSync")
	if err != nil {
		return err
	}
	return s.sync()
}
