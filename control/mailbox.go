package control

import "sync/atomic"

// Mailbox holds at most one pending value. A Post overwrites whatever has not been taken
// yet, so the consumer always sees the latest value.
type Mailbox[T any] struct {
	slot atomic.Pointer[T]
}

// Post replaces the pending value.
func (m *Mailbox[T]) Post(v T) {
	m.slot.Store(&v)
}

// Take removes and returns the pending value, if any.
func (m *Mailbox[T]) Take() (T, bool) {
	p := m.slot.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Pending reports whether a value is waiting.
func (m *Mailbox[T]) Pending() bool {
	return m.slot.Load() != nil
}
