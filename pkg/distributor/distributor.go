// Package distributor routes decoded wire messages, by identifier, to
// the protocols subscribed on a channel.
package distributor

import (
	"sync"

	"github.com/netstrand/p2pnode/internal/fanout"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/wire"
)

// Distributor owns one fanout.Group per message identifier a channel
// has seen a subscriber for. All methods are expected to run on the
// owning channel's strand; Distributor itself does not lock for
// concurrency, only to keep its identifier map consistent.
type Distributor struct {
	mu     sync.Mutex
	groups map[wire.Identifier]*fanout.Group[wire.Message]
	stopped bool
}

// New creates an empty distributor.
func New() *Distributor {
	return &Distributor{groups: make(map[wire.Identifier]*fanout.Group[wire.Message])}
}

func (d *Distributor) groupFor(id wire.Identifier) *fanout.Group[wire.Message] {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[id]
	if !ok {
		g = fanout.NewUnsubscriber[wire.Message]()
		d.groups[id] = g
	}
	return g
}

// Subscribe registers handler for messages carrying identifier id,
// returning a key usable with Unsubscribe. A handler returning false is
// not invoked again (desubscriber semantics).
func (d *Distributor) Subscribe(id wire.Identifier, handler fanout.Handler[wire.Message]) uint64 {
	return d.groupFor(id).Subscribe(handler)
}

// Unsubscribe removes the handler registered under key for identifier
// id.
func (d *Distributor) Unsubscribe(id wire.Identifier, key uint64) {
	d.mu.Lock()
	g, ok := d.groups[id]
	d.mu.Unlock()
	if ok {
		g.Unsubscribe(key)
	}
}

// Notify delivers msg to every handler subscribed on msg.Heading's
// identifier.
func (d *Distributor) Notify(msg wire.Message) {
	d.groupFor(msg.Heading.Identifier()).Notify(neterr.Success, msg)
}

// Stop delivers a stop notification, with code, to every identifier's
// subscribers and prevents further subscriptions from receiving
// anything but the retained stop (handlers subscribing after Stop get
// nothing: there is nothing left to deliver).
func (d *Distributor) Stop(code neterr.Code) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	groups := make([]*fanout.Group[wire.Message], 0, len(d.groups))
	for _, g := range d.groups {
		groups = append(groups, g)
	}
	d.mu.Unlock()

	for _, g := range groups {
		g.Notify(code, wire.Message{})
	}
}
