// Package session implements the four channel-owning loop variants of
// spec.md section 4.7: Base supplies the channel factory and handshake
// launch shared by every direction; Outbound, Inbound, Seed, and Manual
// override acceptance/connection and attach_protocols.
package session

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/internal/selfref"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/hosts"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/protocol/addrgossip"
	"github.com/netstrand/p2pnode/pkg/protocol/events"
	"github.com/netstrand/p2pnode/pkg/protocol/handshake"
	"github.com/netstrand/p2pnode/pkg/protocol/keepalive"
	"github.com/netstrand/p2pnode/pkg/protocol/reject"
	"github.com/netstrand/p2pnode/pkg/reporter"
)

// Session is the sibling-cast contract of spec.md section 9
// ("enable-shared-from-base... a safe variant should return null when
// the runtime type does not match"): every concrete variant attaches
// its own protocol set once a channel's handshake completes.
type Session interface {
	AttachProtocols(ch *channel.Channel)
}

// StopAware is the optional sibling a variant implements when it needs
// to react to one of its own channels stopping. Outbound implements it
// with a no-op; Inbound, Seed and Manual do not implement it.
type StopAware interface {
	onChannelStopped(ch *channel.Channel, code neterr.Code)
}

// Config carries every tunable a session variant needs to build
// channels and run their handshake (spec.md section 6's configuration
// enumeration, the subset shared by all four variants).
type Config struct {
	Magic      uint32
	MaxPayload uint32

	HandshakeTimeout  time.Duration
	ChannelInactivity time.Duration
	ChannelExpiration time.Duration

	ProtocolMinimum   uint32
	ProtocolMaximum   uint32
	ServicesMinimum   p2paddr.Service
	ServicesOffered   p2paddr.Service
	RelayTransactions bool
	UserAgent         string
	StartHeight       func() uint32

	PingInterval    time.Duration
	ResponseTimeout time.Duration

	Self p2paddr.Authority

	Pool   *async.Pool
	Hosts  *hosts.Hosts
	Bus    *addrgossip.Bus
	Report *reporter.Reporter
	Log    *zap.Logger
}

// withDefaults fills in the non-zero-value safe defaults (reporter,
// logger) a Config may omit.
func (c Config) withDefaults() Config {
	if c.Report == nil {
		c.Report = reporter.Noop
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	return c
}

// Base is embedded by every session variant. It owns the strand that
// serializes the session's own lifecycle bookkeeping (spec.md section
// 5, "Sessions and net use one strand each for lifecycle bookkeeping")
// and tracks every channel it has built so Stop can tear them all down.
type Base struct {
	selfref.Box[Session]

	Strand *async.Strand
	cfg    Config

	mu       sync.Mutex
	channels map[uint64]*channel.Channel
	stopped  bool
}

func newBase(cfg Config) Base {
	return Base{
		Strand:   async.NewStrand(cfg.Pool),
		cfg:      cfg.withDefaults(),
		channels: make(map[uint64]*channel.Channel),
	}
}

// nextIdentifier draws a fresh 8-byte channel identifier from a random
// UUID, grounded on goop2's internal/mq.Manager message-id issuance
// (uuid.NewString per message) adapted here to a uint64 so it drops
// straight into channel.Config.Identifier. Identifiers are random, not
// counted, and live only in memory: the persisted hosts file stores
// authorities, never channel identifiers.
func nextIdentifier() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

// createChannel wraps conn into a Channel using the session's shared
// wire parameters (spec.md section 4.7, "create_channel... factory
// returning a new channel with freshly-issued identifier").
func (b *Base) createChannel(conn net.Conn, outbound bool, authority p2paddr.Authority) *channel.Channel {
	ch := channel.New(conn, channel.Config{
		Identifier: nextIdentifier(),
		Outbound:   outbound,
		Authority:  authority,
		Magic:      b.cfg.Magic,
		MaxPayload: b.cfg.MaxPayload,
		Pool:       b.cfg.Pool,
		Expiration: b.cfg.ChannelExpiration,
		Inactivity: b.cfg.ChannelInactivity,
	})
	b.track(ch)
	return ch
}

func (b *Base) track(ch *channel.Channel) {
	b.mu.Lock()
	stopped := b.stopped
	if !stopped {
		b.channels[ch.Identifier] = ch
	}
	b.mu.Unlock()
	if stopped {
		ch.Stop(neterr.ChannelStopped)
		return
	}
	ch.OnStop(func(code neterr.Code) {
		b.mu.Lock()
		delete(b.channels, ch.Identifier)
		b.mu.Unlock()
		if aware, ok := selfref.As[Session, StopAware](&b.Box); ok {
			aware.onChannelStopped(ch, code)
		}
	})
}

// startHandshake resumes ch and runs the version/verack exchange,
// calling onComplete (attach_protocols) exactly once on success or
// onFail on any handshake failure (spec.md section 4.8.1).
func (b *Base) startHandshake(ch *channel.Channel, peer p2paddr.Authority, onComplete func(*channel.Channel), onFail func(neterr.Code)) {
	hs := handshake.New(ch, handshake.Config{
		ProtocolMinimum:   b.cfg.ProtocolMinimum,
		ProtocolMaximum:   b.cfg.ProtocolMaximum,
		ServicesMinimum:   b.cfg.ServicesMinimum,
		ServicesOffered:   b.cfg.ServicesOffered,
		RelayTransactions: b.cfg.RelayTransactions,
		UserAgent:         b.cfg.UserAgent,
		StartHeight:       b.cfg.StartHeight,
		Timeout:           b.cfg.HandshakeTimeout,
		Self:              b.cfg.Self,
		Peer:              peer,
		OnComplete:        onComplete,
		OnFail:            onFail,
	})
	ch.Resume()
	hs.Start()
}

// attachEvents attaches the one protocol every variant shares
// regardless of direction (spec.md section 4.7, "Default attaches
// nothing; variants add ping/address/reject as appropriate" --
// protocol/events is the supplemented exception documented in
// DESIGN.md, since every channel's lifecycle should reach the
// reporter).
func attachEvents(ch *channel.Channel, rep *reporter.Reporter) *events.Protocol {
	ev := events.New(ch, rep)
	ev.Start()
	return ev
}

// attachCommon wires the steady-state protocols that Inbound, Outbound
// and Manual attach once a channel's handshake completes (spec.md
// section 4.7's "attach_protocols... variants add ping/address/reject
// as appropriate"; Seed attaches its own set instead): events,
// keepalive keyed on the negotiated version, reject logging, addr_in
// ingest with relay publication, and the addr_out getaddr responder
// plus cross-peer relay subscription.
func (b *Base) attachCommon(ch *channel.Channel) {
	ev := attachEvents(ch, b.cfg.Report)
	ev.HandshakeComplete()

	keepalive.New(ch, keepalive.Config{
		PingInterval:    b.cfg.PingInterval,
		ResponseTimeout: b.cfg.ResponseTimeout,
	}).Start()

	reject.New(ch, b.cfg.Log).Start()

	addrgossip.NewIn(ch, b.cfg.Hosts, b.cfg.ServicesMinimum, func(item p2paddr.Item) {
		if b.cfg.Bus != nil {
			b.cfg.Bus.Publish(addrgossip.Announcement{SenderID: ch.Identifier, Item: item})
		}
	}).Start()
	addrgossip.NewOut(ch, b.cfg.Hosts, b.cfg.Bus, ch.Outbound).Start()
}

// Stop cancels every channel this session has built, releasing
// whatever each variant's own Stop override needs to release first
// (acceptor listeners, connector goroutines). Safe to call once;
// subsequent calls are no-ops.
func (b *Base) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	channels := make([]*channel.Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	b.Strand.Stop()
	for _, ch := range channels {
		ch.Stop(neterr.ChannelStopped)
	}
}

// Count reports how many channels this session currently owns.
func (b *Base) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}
