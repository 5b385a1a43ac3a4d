// Package keepalive implements the two ping/pong liveness variants of
// spec.md section 4.8.2, keyed on the negotiated protocol version: a
// pre-bip31 one-sided timer (V1) and a nonce round-trip with a
// response timeout (V2).
package keepalive

import (
	"time"

	"github.com/netstrand/p2pnode/internal/random"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/protocol"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wire/payload"
)

// Bip31Version is the lowest negotiated protocol version at which the
// nonce round-trip ping variant (ping_60001) applies; below it, peers
// speak the one-sided ping_31402 variant.
const Bip31Version = 60001

// Config carries the keepalive timer durations of spec.md section 6
// ("ping_interval", "response_timeout").
type Config struct {
	PingInterval    time.Duration
	ResponseTimeout time.Duration
}

// New attaches whichever ping variant ch's negotiated protocol version
// calls for. Call after the handshake has completed.
func New(ch *channel.Channel, cfg Config) interface{ Start() } {
	if ch.Negotiation().PeerVersion >= Bip31Version {
		return NewV2(ch, cfg)
	}
	return NewV1(ch, cfg)
}

// V1 implements ping_31402: an empty ping sent on every interval tick,
// with no reply and no round-trip tracking. Liveness is entirely the
// local side's timer continuing to fire, which it always does; this
// variant never stops its channel on its own.
type V1 struct {
	*protocol.Timed
	interval time.Duration
}

// NewV1 attaches a pre-bip31 keepalive to ch.
func NewV1(ch *channel.Channel, cfg Config) *V1 {
	return &V1{Timed: protocol.NewTimed(ch), interval: cfg.PingInterval}
}

// Start subscribes to inbound pings (answered with nothing) and arms
// the send timer.
func (v *V1) Start() {
	v.Subscribe(wire.Ping, v.onPing)
	v.Attach(nil)
	v.arm()
}

func (v *V1) onPing(code neterr.Code, _ wire.Message) bool {
	return !code.IsStop()
}

func (v *V1) arm() {
	if v.interval <= 0 {
		return
	}
	v.Deadline.Start(v.interval, v.onTick)
}

func (v *V1) onTick(code neterr.Code) {
	if code != neterr.Success {
		return
	}
	raw, _ := wire.EncodePayload(payload.PingEmpty{})
	v.Send(wire.Ping, raw)
	v.arm()
}

// V2 implements ping_60001: a nonce carried in each ping, matched
// against the peer's pong, with a response timeout that stops the
// channel with peer_timeout on mismatch or silence.
type V2 struct {
	*protocol.Timed
	interval time.Duration
	timeout  time.Duration

	outstanding bool
	nonce       uint64
}

// NewV2 attaches a bip31+ keepalive to ch.
func NewV2(ch *channel.Channel, cfg Config) *V2 {
	return &V2{Timed: protocol.NewTimed(ch), interval: cfg.PingInterval, timeout: cfg.ResponseTimeout}
}

// Start subscribes to ping (answered with a matching pong) and pong
// (matched against the outstanding nonce), and arms the first send.
func (v *V2) Start() {
	v.Subscribe(wire.Ping, v.onPing)
	v.Subscribe(wire.Pong, v.onPong)
	v.Attach(nil)
	v.armInterval()
}

func (v *V2) onPing(code neterr.Code, msg wire.Message) bool {
	if code.IsStop() {
		return false
	}
	var p payload.Ping
	if err := wire.DecodePayload(&p, msg.Payload); err != nil {
		v.Channel.Stop(neterr.InvalidMessage)
		return false
	}
	raw, _ := wire.EncodePayload(&payload.Pong{Nonce: p.Nonce})
	v.Send(wire.Pong, raw)
	return true
}

func (v *V2) onPong(code neterr.Code, msg wire.Message) bool {
	if code.IsStop() {
		return false
	}
	var p payload.Pong
	if err := wire.DecodePayload(&p, msg.Payload); err != nil {
		v.Channel.Stop(neterr.InvalidMessage)
		return false
	}
	if !v.outstanding || p.Nonce != v.nonce {
		return true // stray or mismatched pong, ignored per spec
	}
	v.outstanding = false
	v.armInterval()
	return true
}

func (v *V2) armInterval() {
	if v.interval <= 0 {
		return
	}
	v.Deadline.Start(v.interval, v.onIntervalFired)
}

func (v *V2) onIntervalFired(code neterr.Code) {
	if code != neterr.Success {
		return
	}
	v.nonce = random.Uint64()
	v.outstanding = true
	raw, _ := wire.EncodePayload(&payload.Ping{Nonce: v.nonce})
	v.Send(wire.Ping, raw)

	if v.timeout <= 0 {
		v.armInterval()
		return
	}
	v.Deadline.Start(v.timeout, v.onResponseTimeout)
}

func (v *V2) onResponseTimeout(code neterr.Code) {
	if code != neterr.Success {
		return
	}
	if !v.outstanding {
		return
	}
	v.Channel.Stop(neterr.PeerTimeout)
}
