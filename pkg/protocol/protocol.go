// Package protocol implements the protocol attachment base of spec.md
// section 4.8: a strand-bound participant that holds a reference to its
// channel, tracks the distributor subscriptions it owns, and releases
// them when the channel stops. protocol_timer's "deep protocol
// inheritance chain" (spec.md section 9) is modeled as composition here:
// Timed wraps Base and owns a deadline, rather than a further subtype.
package protocol

import (
	"sync"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/wire"
)

type subscriptionKey struct {
	id  wire.Identifier
	key uint64
}

// Base is the strand-bound attachment of spec.md section 3 "Protocol":
// constructed with a channel reference, providing subscribe/send
// helpers and a stopping hook invoked from channel stop.
type Base struct {
	Channel *channel.Channel

	mu   sync.Mutex
	keys []subscriptionKey
}

// NewBase attaches a new Base to ch. Every subscription made through
// the returned Base is tracked and released automatically when the
// channel stops.
func NewBase(ch *channel.Channel) *Base {
	return &Base{Channel: ch}
}

// Subscribe registers handler for messages carrying identifier id on
// the owning channel's distributor, tracking the returned key for
// release on stop.
func (b *Base) Subscribe(id wire.Identifier, handler func(code neterr.Code, msg wire.Message) bool) {
	key := b.Channel.Subscribe(id, handler)
	b.mu.Lock()
	b.keys = append(b.keys, subscriptionKey{id: id, key: key})
	b.mu.Unlock()
}

// Send serializes and writes a message on the owning channel.
func (b *Base) Send(id wire.Identifier, body []byte) neterr.Code {
	return b.Channel.Send(id, body)
}

// Attach registers stopping to run (after every subscription this
// protocol owns is released) the first time the channel stops. Call
// once, after every Subscribe call the protocol's Start performs.
func (b *Base) Attach(stopping func(neterr.Code)) {
	b.Channel.OnStop(func(code neterr.Code) {
		b.release()
		if stopping != nil {
			stopping(code)
		}
	})
}

func (b *Base) release() {
	b.mu.Lock()
	keys := b.keys
	b.keys = nil
	b.mu.Unlock()
	for _, k := range keys {
		b.Channel.Unsubscribe(k.id, k.key)
	}
}

// Timed extends Base with a strand-scoped one-shot deadline, for
// protocols that run on a timer (ping keepalive, handshake timeout).
type Timed struct {
	*Base
	Deadline *async.Deadline
}

// NewTimed attaches a new Timed protocol to ch.
func NewTimed(ch *channel.Channel) *Timed {
	return &Timed{Base: NewBase(ch), Deadline: async.NewDeadline(ch.Strand)}
}

// Attach additionally stops the deadline when the channel stops.
func (t *Timed) Attach(stopping func(neterr.Code)) {
	t.Base.Attach(func(code neterr.Code) {
		t.Deadline.Stop()
		if stopping != nil {
			stopping(code)
		}
	})
}
