package ratelimit

// ConnSemaphore enforces config.LimitsConfig.MaxConnections: a simple
// counting semaphore acquired at accept time (right after the IP ACL
// check) and released when the connection closes. A
// limit <= 0 disables the cap entirely.
type ConnSemaphore struct {
	slots chan struct{}
}

// NewConnSemaphore creates a semaphore allowing at most max concurrent
// connections. max <= 0 means unbounded (TryAcquire always succeeds).
func NewConnSemaphore(max int) *ConnSemaphore {
	if max <= 0 {
		return &ConnSemaphore{}
	}
	return &ConnSemaphore{slots: make(chan struct{}, max)}
}

// TryAcquire reports whether a slot was available and, if so, takes it.
// The caller must call Release exactly once for every successful
// TryAcquire.
func (s *ConnSemaphore) TryAcquire() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a previously acquired slot.
func (s *ConnSemaphore) Release() {
	if s.slots == nil {
		return
	}
	<-s.slots
}
