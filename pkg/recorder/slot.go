package recorder

import "sync/atomic"

// Slot is a binary exclusive claim on the camera device. Acquisition never
// blocks: a caller that loses the race simply does not get the device.
type Slot struct {
	owner atomic.Pointer[string]
}

// TryAcquire claims the slot for owner. It returns false if the slot is held.
func (s *Slot) TryAcquire(owner string) bool {
	return s.owner.CompareAndSwap(nil, &owner)
}

// Release frees the slot. Releasing a free slot is a no-op.
func (s *Slot) Release() {
	s.owner.Store(nil)
}

// Holder returns the current owner, or "" when free.
func (s *Slot) Holder() string {
	if p := s.owner.Load(); p != nil {
		return *p
	}
	return ""
}

// Busy reports whether the slot is held.
func (s *Slot) Busy() bool {
	return s.owner.Load() != nil
}
