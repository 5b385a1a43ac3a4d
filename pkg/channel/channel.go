// Package channel implements spec.md section 3 "Channel": a Proxy
// specialization that adds a loop-detection nonce, a caller-assigned
// identifier, expiration/inactivity deadlines, and negotiated handshake
// state, with the exactly-once stop discipline every layer above it
// depends on.
package channel

import (
	"net"
	"sync"
	"time"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/internal/fanout"
	"github.com/netstrand/p2pnode/internal/random"
	"github.com/netstrand/p2pnode/pkg/distributor"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/netio"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/proxy"
	"github.com/netstrand/p2pnode/pkg/wire"
)

// Negotiation holds the handshake state exchanged over one channel
// (spec.md sections 3 and 4.8.1).
type Negotiation struct {
	PeerVersion  uint32
	PeerServices p2paddr.Service
	PeerRelay    bool

	SendHeaders bool
	SendAddrV2  bool
	WtxidRelay  bool

	SentVersion bool
	GotVersion  bool
	SentVerAck  bool
	GotVerAck   bool
}

// Done reports whether both halves of the handshake have completed
// (spec.md invariant 8).
func (n Negotiation) Done() bool {
	return n.GotVersion && n.GotVerAck
}

// Config configures a new Channel.
type Config struct {
	Identifier uint64
	Outbound   bool
	Authority  p2paddr.Authority

	Magic      uint32
	MaxPayload uint32

	Pool *async.Pool

	// Expiration bounds the channel's total lifetime from Resume;
	// zero disables it. Inactivity bounds the time since the last
	// received frame; zero disables it.
	Expiration time.Duration
	Inactivity time.Duration
}

// Channel owns a Proxy (and transitively its Socket and Distributor)
// plus the per-connection identity of spec.md section 3.
type Channel struct {
	Strand *async.Strand

	socket *netio.Socket
	proxy  *proxy.Proxy
	dist   *distributor.Distributor

	Nonce      uint64
	Identifier uint64
	Outbound   bool
	Authority  p2paddr.Authority

	magic              uint32
	expirationDuration time.Duration
	inactivityDuration time.Duration
	expiration         *async.Deadline
	inactivity         *async.Deadline

	mu          sync.Mutex
	negotiation Negotiation
	stopped     bool
	stopCode    neterr.Code
	lifecycle   *fanout.Group[neterr.Code]
}

// New wraps conn into a Channel. The channel is not reading until
// Resume is called.
func New(conn net.Conn, cfg Config) *Channel {
	strand := async.NewStrand(cfg.Pool)
	socket := netio.New(conn, strand)
	dist := distributor.New()

	c := &Channel{
		Strand:             strand,
		socket:             socket,
		dist:               dist,
		Nonce:              random.Uint64(),
		Identifier:         cfg.Identifier,
		Outbound:           cfg.Outbound,
		Authority:          cfg.Authority,
		magic:              cfg.Magic,
		expirationDuration: cfg.Expiration,
		inactivityDuration: cfg.Inactivity,
		expiration:         async.NewDeadline(strand),
		inactivity:         async.NewDeadline(strand),
		lifecycle:          fanout.NewUnsubscriber[neterr.Code](),
	}
	c.proxy = proxy.New(strand, socket, dist, cfg.Magic, cfg.MaxPayload, c.handleProxyStop)
	c.proxy.OnFrame(func(wire.Message) { c.touchInactivity() })
	return c
}

// Resume arms the channel's deadlines and starts its read loop
// (spec.md section 3, lifecycle "construct -> resume (arm read)").
func (c *Channel) Resume() {
	if c.expirationDuration > 0 {
		c.expiration.Start(c.expirationDuration, func(code neterr.Code) {
			if code == neterr.Success {
				c.Stop(neterr.OperationTimeout)
			}
		})
	}
	c.touchInactivity()
	c.proxy.Resume()
}

func (c *Channel) touchInactivity() {
	if c.inactivityDuration <= 0 {
		return
	}
	c.inactivity.Start(c.inactivityDuration, func(code neterr.Code) {
		if code == neterr.Success {
			c.Stop(neterr.PeerTimeout)
		}
	})
}

// Magic returns the network magic this channel frames with.
func (c *Channel) Magic() uint32 { return c.magic }

// Send frames and enqueues (id, body) for write on the channel's proxy.
func (c *Channel) Send(id wire.Identifier, body []byte) neterr.Code {
	return c.proxy.Send(id, body)
}

// Subscribe registers handler for messages carrying identifier id on
// this channel's distributor.
func (c *Channel) Subscribe(id wire.Identifier, handler fanout.Handler[wire.Message]) uint64 {
	return c.dist.Subscribe(id, handler)
}

// Unsubscribe removes the handler registered under key for identifier
// id.
func (c *Channel) Unsubscribe(id wire.Identifier, key uint64) {
	c.dist.Unsubscribe(id, key)
}

// OnStop registers handler to be invoked once, with the stop code, when
// the channel stops -- regardless of whether handler is also subscribed
// to any message identifier. Protocols that do not subscribe to any
// wire message (protocol/events) use this to learn of channel stop.
func (c *Channel) OnStop(handler func(neterr.Code)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle.Subscribe(func(code neterr.Code, _ neterr.Code) bool {
		handler(code)
		return true
	})
}

// Negotiation returns a snapshot of the channel's current handshake
// state.
func (c *Channel) Negotiation() Negotiation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiation
}

// UpdateNegotiation atomically applies mutate to the channel's
// handshake state. Must only be called from the channel's strand.
func (c *Channel) UpdateNegotiation(mutate func(*Negotiation)) Negotiation {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.negotiation)
	return c.negotiation
}

// Stopped reports whether the channel has already transitioned to
// stopped.
func (c *Channel) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Stop tears the channel down exactly once: it cancels the expiration
// and inactivity deadlines, stops the proxy (which stops the socket and
// drains the distributor with code), and notifies every lifecycle
// subscriber. Subsequent calls are no-ops (spec.md section 3,
// "exactly-one-stop invariant").
func (c *Channel) Stop(code neterr.Code) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.stopCode = code
	c.mu.Unlock()

	c.expiration.Stop()
	c.inactivity.Stop()
	c.proxy.Stop(code)
	c.lifecycle.Notify(code, code)
}

// handleProxyStop is wired as the proxy's onStop callback so that a
// stop originating inside the proxy (a framing error, a socket
// failure) still drives the channel's own stop discipline.
func (c *Channel) handleProxyStop(code neterr.Code) {
	c.mu.Lock()
	already := c.stopped
	if !already {
		c.stopped = true
		c.stopCode = code
	}
	c.mu.Unlock()
	if already {
		return
	}
	c.expiration.Stop()
	c.inactivity.Stop()
	c.lifecycle.Notify(code, code)
}
