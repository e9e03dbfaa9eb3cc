package mutex

import (
	"sync"
	"sync/atomic"
)

// InitialMutex guards a structure that is mutable only during its
// assembly phase. Once DisableLock is called, Lock and Unlock become
// no-ops and readers proceed without contention for the rest of the
// structure's life
type InitialMutex struct {
	mu    sync.Mutex
	state int32
}

// Lock states
const (
	Disabled int32 = iota - 1
	Unlocked
	Locked
)

// DisableLock instructs the InitialMutex to ignore all subsequent calls
// to Lock and Unlock. A held lock is released in the process
func (m *InitialMutex) DisableLock() {
	switch atomic.LoadInt32(&m.state) {
	case Disabled:
		return
	case Locked:
		atomic.StoreInt32(&m.state, Disabled)
		m.mu.Unlock()
	case Unlocked:
		m.mu.Lock()
		atomic.StoreInt32(&m.state, Disabled)
		m.mu.Unlock()
	}
}

// IsLockDisabled returns whether locking has been disabled
func (m *InitialMutex) IsLockDisabled() bool {
	return atomic.LoadInt32(&m.state) == Disabled
}

// Lock acquires the InitialMutex unless locking has been disabled
func (m *InitialMutex) Lock() {
	if atomic.LoadInt32(&m.state) == Disabled {
		return
	}
	m.mu.Lock()
	if atomic.LoadInt32(&m.state) == Disabled {
		m.mu.Unlock()
		return
	}
	atomic.StoreInt32(&m.state, Locked)
}

// Unlock releases the InitialMutex unless locking has been disabled
func (m *InitialMutex) Unlock() {
	if atomic.LoadInt32(&m.state) == Locked {
		atomic.StoreInt32(&m.state, Unlocked)
		m.mu.Unlock()
	}
}

// Reset places the InitialMutex back in its unlocked, enabled state
func (m *InitialMutex) Reset() {
	if atomic.LoadInt32(&m.state) == Disabled {
		atomic.StoreInt32(&m.state, Unlocked)
	}
}
