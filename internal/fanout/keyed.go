package fanout

import "github.com/netstrand/p2pnode/pkg/neterr"

// Keyed is the desubscriber flavor: a map from a caller-supplied key K to
// a handler, broadcasting to all remaining handlers in registration
// order.
type Keyed[K comparable, T any] struct {
	order    []K
	handlers map[K]Handler[T]
	stopped  bool
}

// NewKeyed creates an empty Keyed group.
func NewKeyed[K comparable, T any]() *Keyed[K, T] {
	return &Keyed[K, T]{handlers: make(map[K]Handler[T])}
}

// Subscribe registers handler under key, replacing any existing handler
// for that key.
func (g *Keyed[K, T]) Subscribe(key K, handler Handler[T]) {
	if g.stopped {
		return
	}
	if _, exists := g.handlers[key]; !exists {
		g.order = append(g.order, key)
	}
	g.handlers[key] = handler
}

// Unsubscribe removes the handler registered under key.
func (g *Keyed[K, T]) Unsubscribe(key K) {
	if _, ok := g.handlers[key]; !ok {
		return
	}
	delete(g.handlers, key)
	for i, k := range g.order {
		if k == key {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Notify broadcasts (code, message) to every handler in registration
// order. As with Group, a stop notification is always last.
func (g *Keyed[K, T]) Notify(code neterr.Code, message T) {
	if g.stopped {
		return
	}
	order := append([]K(nil), g.order...)
	for _, k := range order {
		handler, ok := g.handlers[k]
		if !ok {
			continue
		}
		handler(code, message)
	}
	if code.IsStop() {
		g.stopped = true
		g.handlers = make(map[K]Handler[T])
		g.order = nil
	}
}

// Len reports the number of currently registered handlers.
func (g *Keyed[K, T]) Len() int {
	return len(g.handlers)
}
