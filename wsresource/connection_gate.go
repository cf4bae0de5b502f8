package wsresource

import "sync"

// One-shot gate which defers operations until the connection attempt has resolved.
//
// The gate is armed once by Connect and released once by the connect driver, whatever the
// outcome of the attempt. It cannot be re-armed: a resource supports a single connection.
type connectionGate struct {
	// Protects requested and armed
	mu sync.Mutex
	// True while a connection attempt is outstanding
	requested bool
	// True once the gate has been armed
	armed bool
	// Closed when the gate is released
	released chan struct{}
	// Ensures released is closed once
	releaseOnce sync.Once
}

func newConnectionGate() *connectionGate {
	return &connectionGate{
		released: make(chan struct{}),
	}
}

// Record a connection attempt is outstanding. Return false if the gate has already been armed.
func (gate *connectionGate) Arm() bool {
	gate.mu.Lock()
	defer gate.mu.Unlock()
	if gate.armed {
		return false
	}
	gate.armed = true
	gate.requested = true
	return true
}

// Release the gate and all operations waiting on it. Subsequent calls do nothing.
func (gate *connectionGate) Release() {
	gate.releaseOnce.Do(func() {
		close(gate.released)
		gate.mu.Lock()
		gate.requested = false
		gate.mu.Unlock()
	})
}

// Return true while a connection attempt is outstanding.
func (gate *connectionGate) Requested() bool {
	gate.mu.Lock()
	defer gate.mu.Unlock()
	return gate.requested
}

// Block the calling goroutine until the outstanding connection attempt, if any, has resolved.
func (gate *connectionGate) Synchronize() {
	if gate.Requested() {
		<-gate.released
	}
}
