package semaphore

import (
	"container/list"
	"context"
	"sync"
)

// Semaphore is a counting admission primitive with capacity N. Acquire
// suspends the caller once N holders are admitted and wakes waiters in strict
// FIFO order as slots free. It is non-reentrant: a holder must Release before
// acquiring again.
type Semaphore struct {
	mu      sync.Mutex
	free    int
	waiters list.List
}

type waiter struct {
	ready chan struct{}
}

// New constructs a semaphore admitting at most capacity concurrent holders.
// Capacity values below one are treated as one.
func New(capacity int) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{free: capacity}
}

// Acquire obtains a slot, blocking while none is free. It returns the context
// error if ctx ends before a slot is granted.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.free > 0 && s.waiters.Len() == 0 {
		s.free--
		s.mu.Unlock()
		return nil
	}

	w := waiter{ready: make(chan struct{})}
	elem := s.waiters.PushBack(w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-w.ready:
			// The slot was granted while we were cancelling. Pass it on so
			// the count stays consistent.
			s.mu.Unlock()
			s.Release()
			return ctx.Err()
		default:
		}
		s.waiters.Remove(elem)
		s.mu.Unlock()
		return ctx.Err()
	}
}

// TryAcquire obtains a slot without blocking, respecting queued waiters.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.free > 0 && s.waiters.Len() == 0 {
		s.free--
		return true
	}
	return false
}

// Release frees a slot, waking the longest-waiting acquirer if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if front := s.waiters.Front(); front != nil {
		w := s.waiters.Remove(front).(waiter)
		close(w.ready)
		return
	}
	s.free++
}
