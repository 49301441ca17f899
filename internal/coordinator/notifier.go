package coordinator

import (
	"sync"
	"sync/atomic"
)

// notifier runs queued callbacks in order on one goroutine. push never
// blocks, so adapters and the coordinator can enqueue while holding locks.
type notifier struct {
	mu      sync.Mutex
	pending []func()

	closed atomic.Bool
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) push(fn func()) {
	n.mu.Lock()
	if n.closed.Load() {
		n.mu.Unlock()
		return
	}
	n.pending = append(n.pending, fn)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		select {
		case <-n.stop:
			return
		case <-n.wake:
		}

		for {
			n.mu.Lock()
			batch := n.pending
			n.pending = nil
			n.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				if n.closed.Load() {
					return
				}
				fn()
			}
		}
	}
}

// flush blocks until everything queued before it has run. It returns
// immediately once the notifier is closed.
func (n *notifier) flush() {
	ch := make(chan struct{})
	n.push(func() { close(ch) })
	select {
	case <-ch:
	case <-n.done:
	}
}

// close drops pending callbacks and waits for the one in progress. It must
// not be called from a callback.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed.Swap(true) {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.pending = nil
	n.mu.Unlock()
	close(n.stop)
	<-n.done
}
