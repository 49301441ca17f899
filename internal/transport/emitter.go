package transport

import "sync"

// Emitter guards an adapter's Delegate. Once Close returns, Emit is a no-op,
// which is how adapters guarantee that no callback reaches a torn-down
// coordinator.
type Emitter struct {
	mu       sync.RWMutex
	delegate Delegate
	closed   bool
}

// Set installs d. A nil d restores the no-op delegate.
func (e *Emitter) Set(d Delegate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delegate = d
}

// Emit runs fn with the current delegate unless the emitter is closed.
func (e *Emitter) Emit(fn func(Delegate)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	d := e.delegate
	if d == nil {
		d = Nop{}
	}
	fn(d)
}

// Close waits for in-flight callbacks and disables further ones.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}
