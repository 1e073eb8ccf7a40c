// Package notifier provides a small event bus for registry and selection
// changes. Views subscribe and re-read the application state when an event
// arrives; publishers never need to know who is listening.
package notifier

import "sync"

// Event identifies what changed.
type Event int

const (
	// LinesChanged is published after the line registry was modified or reloaded.
	LinesChanged Event = iota + 1
	// ProductsChanged is published after the product registry was modified or reloaded.
	ProductsChanged
	// SelectionChanged is published when the selected line or product changes.
	SelectionChanged
)

func (e Event) String() string {
	switch e {
	case LinesChanged:
		return "lines_changed"
	case ProductsChanged:
		return "products_changed"
	case SelectionChanged:
		return "selection_changed"
	default:
		return "unknown"
	}
}

// listenerBuffer bounds how many events a slow listener may lag behind.
const listenerBuffer = 8

// Notifier broadcasts events to all subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives published events.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan Event {
	ch := make(chan Event, listenerBuffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan Event) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish sends ev to all listeners.
// Non-blocking: if a listener's channel is full, the event is dropped for it.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
			// Listener is behind; it re-reads the whole state on the next event anyway.
		}
	}
}
