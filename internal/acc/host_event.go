package acc

import "sync"

type hostEvent struct {
	mu sync.Mutex
	// done is closed when the stream reaches the latest record point; nil
	// until the first EventRecord.
	done chan struct{}
}

func (e *hostEvent) Recorded() bool {
	return e.marker() != nil
}

func (e *hostEvent) marker() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (h *HostBackend) EventCreate() (Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized("EventCreate"); err != nil {
		return nil, err
	}
	e := &hostEvent{}
	h.events[e] = struct{}{}
	return e, nil
}

func (h *HostBackend) EventDestroy(event Event) error {
	e, err := h.event(event, "EventDestroy")
	if err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.events, e)
	h.mu.Unlock()
	return nil
}

// EventRecord places a new marker at the current end of the stream.
func (h *HostBackend) EventRecord(event Event, stream Stream) error {
	e, err := h.event(event, "EventRecord")
	if err != nil {
		return err
	}
	s, err := h.stream(stream, "EventRecord")
	if err != nil {
		return err
	}

	marker := make(chan struct{})
	e.mu.Lock()
	e.done = marker
	e.mu.Unlock()

	if err := s.enqueue(func() error {
		close(marker)
		return nil
	}); err != nil {
		// never reachable; don't leave waiters hanging
		close(marker)
		return err
	}
	return nil
}

func (h *HostBackend) EventQuery(event Event) (bool, error) {
	e, err := h.event(event, "EventQuery")
	if err != nil {
		return false, err
	}
	marker := e.marker()
	if marker == nil {
		return true, nil
	}
	select {
	case <-marker:
		return true, nil
	default:
		return false, nil
	}
}

// StreamWaitEvent holds back later commands on stream until the event's
// current marker has been reached.
func (h *HostBackend) StreamWaitEvent(stream Stream, event Event) error {
	e, err := h.event(event, "StreamWaitEvent")
	if err != nil {
		return err
	}
	s, err := h.stream(stream, "StreamWaitEvent")
	if err != nil {
		return err
	}
	marker := e.marker()
	if marker == nil {
		return nil
	}
	return s.enqueue(func() error {
		<-marker
		return nil
	})
}

func (h *HostBackend) EventSynchronize(event Event) error {
	e, err := h.event(event, "EventSynchronize")
	if err != nil {
		return err
	}
	if marker := e.marker(); marker != nil {
		<-marker
	}
	return nil
}
