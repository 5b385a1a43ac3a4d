// Package fanout implements the subscriber family of spec.md section 4.5:
// one generic broadcast group parameterized by whether handlers can
// self-remove and whether the last notification is retained for late
// subscribers, plus a keyed variant for desubscriber.
//
// Every exported method must only be called from the owning strand; these
// types do not lock for concurrency, only to keep internal bookkeeping
// consistent for the intra-strand helpers that touch them (spec.md
// section 5, "no recursive locking... exclusive to intra-strand helpers
// that never await").
package fanout

import "github.com/netstrand/p2pnode/pkg/neterr"

// Handler is notified with the completion code and message. For a
// self-removing group (Unsubscriber), returning false removes the
// handler after this invocation; for all other flavors the return value
// is ignored.
type Handler[T any] func(code neterr.Code, message T) bool

type entry[T any] struct {
	key     uint64
	handler Handler[T]
}

// Group is a FIFO, auto-keyed broadcast group. Subscriber, Unsubscriber,
// and Resubscriber are all this type, differing only in the two flags
// passed to their constructors.
type Group[T any] struct {
	selfRemoving bool
	retain       bool

	next     uint64
	handlers []entry[T]
	hasLast  bool
	lastCode neterr.Code
	lastMsg  T
	stopped  bool
}

// NewSubscriber creates a plain FIFO broadcast group.
func NewSubscriber[T any]() *Group[T] {
	return &Group[T]{}
}

// NewUnsubscriber creates a FIFO broadcast group whose handlers remove
// themselves by returning false.
func NewUnsubscriber[T any]() *Group[T] {
	return &Group[T]{selfRemoving: true}
}

// NewResubscriber creates a FIFO broadcast group that replays the most
// recent notification immediately to any newly added handler.
func NewResubscriber[T any]() *Group[T] {
	return &Group[T]{retain: true}
}

// Subscribe registers handler and returns a key usable with Unsubscribe.
// If the group has a retained notification (Resubscriber) and handler is
// still current, the retained value is replayed immediately.
func (g *Group[T]) Subscribe(handler Handler[T]) uint64 {
	g.next++
	key := g.next
	if g.stopped {
		return key
	}
	g.handlers = append(g.handlers, entry[T]{key: key, handler: handler})
	if g.retain && g.hasLast {
		handler(g.lastCode, g.lastMsg)
	}
	return key
}

// Unsubscribe removes the handler registered under key, if present.
func (g *Group[T]) Unsubscribe(key uint64) {
	for i, e := range g.handlers {
		if e.key == key {
			g.handlers = append(g.handlers[:i], g.handlers[i+1:]...)
			return
		}
	}
}

// Notify broadcasts (code, message) to every handler in registration
// order. A stop notification (code.IsStop()) is always the last
// notification this group delivers: subsequent Notify calls are no-ops.
func (g *Group[T]) Notify(code neterr.Code, message T) {
	if g.stopped {
		return
	}
	if g.retain {
		g.hasLast = true
		g.lastCode = code
		g.lastMsg = message
	}
	snapshot := append([]entry[T](nil), g.handlers...)
	var removeKeys []uint64
	for _, e := range snapshot {
		keep := e.handler(code, message)
		if g.selfRemoving && !keep {
			removeKeys = append(removeKeys, e.key)
		}
	}
	for _, k := range removeKeys {
		g.Unsubscribe(k)
	}
	if code.IsStop() {
		g.stopped = true
		g.handlers = nil
	}
}

// Len reports the number of currently registered handlers.
func (g *Group[T]) Len() int {
	return len(g.handlers)
}
