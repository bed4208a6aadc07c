package workerpool

// Handle is the future for one submitted task. A handle resolves exactly
// once, with the task's returned error or with a captured panic.
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Wait blocks until the task has run and returns its result. Waiting on an
// already-resolved handle returns immediately, and Wait may be called any
// number of times.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done exposes resolution as a channel for select-based callers. The channel
// is closed when the handle resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) resolve(err error) {
	h.err = err
	close(h.done)
}
