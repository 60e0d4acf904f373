package session

import (
	"sync"
	"sync/atomic"
)

// LogoutNotifier fans a forced-logout signal out to subscribers.
//
// Callbacks run synchronously on the broadcasting goroutine, in subscription
// order, without the internal lock held.
type LogoutNotifier struct {
	mu         sync.Mutex
	nextID     uint64
	listeners  map[uint64]func()
	order      []uint64
	broadcasts atomic.Uint64
}

// NewLogoutNotifier returns a notifier with no subscribers.
func NewLogoutNotifier() *LogoutNotifier {
	return &LogoutNotifier{listeners: make(map[uint64]func())}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (n *LogoutNotifier) Subscribe(fn func()) (unsubscribe func()) {
	if n == nil || fn == nil {
		return func() {}
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners[id] = fn
	n.order = append(n.order, id)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.listeners, id)
			for i, v := range n.order {
				if v == id {
					n.order = append(n.order[:i], n.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Broadcast notifies every current subscriber once.
func (n *LogoutNotifier) Broadcast() {
	if n == nil {
		return
	}
	n.broadcasts.Add(1)

	n.mu.Lock()
	fns := make([]func(), 0, len(n.order))
	for _, id := range n.order {
		fns = append(fns, n.listeners[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Broadcasts returns how many times Broadcast has been called.
func (n *LogoutNotifier) Broadcasts() uint64 {
	if n == nil {
		return 0
	}
	return n.broadcasts.Load()
}

// Subscribers returns the number of registered callbacks.
func (n *LogoutNotifier) Subscribers() int {
	if n == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.order)
}
