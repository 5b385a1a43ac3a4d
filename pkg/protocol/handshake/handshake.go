// Package handshake implements the version/verack exchange of spec.md
// section 4.8.1: a two-sided per-channel state machine with capability
// negotiation (sendheaders, sendaddrv2, wtxidrelay) and self-connect
// detection, completing when both directions have observed the other's
// version and acknowledgement.
package handshake

import (
	"time"

	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/protocol"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wire/payload"
)

// Config carries the negotiation parameters of spec.md section 6
// ("protocol_minimum", "protocol_maximum", "services_minimum",
// "services_maximum", "relay_transactions") plus what this side
// advertises about itself.
type Config struct {
	ProtocolMinimum   uint32
	ProtocolMaximum   uint32
	ServicesMinimum   p2paddr.Service
	ServicesOffered   p2paddr.Service
	RelayTransactions bool
	UserAgent         string
	StartHeight       func() uint32

	Timeout time.Duration

	// Self is the address this side advertises as its own (version's
	// addr_from); Peer is the address this side believes it is
	// connecting to or accepting from (version's addr_recv).
	Self p2paddr.Authority
	Peer p2paddr.Authority

	// OnComplete runs exactly once, on the channel's strand, the first
	// time both GotVersion and GotVerAck become true (spec.md section
	// 4.7 "attach_protocols", invariant 8).
	OnComplete func(*channel.Channel)
	// OnFail runs if the handshake is abandoned before completion,
	// either by timeout or a validation failure; the channel has
	// already been stopped with code by the time this runs.
	OnFail func(code neterr.Code)
}

// Protocol drives one channel's handshake to completion or failure.
type Protocol struct {
	*protocol.Timed
	cfg       Config
	completed bool
}

// New attaches a handshake Protocol to ch. Call Start once the channel
// is resumed.
func New(ch *channel.Channel, cfg Config) *Protocol {
	return &Protocol{Timed: protocol.NewTimed(ch), cfg: cfg}
}

// Start subscribes to every handshake message, arms the handshake
// timeout, and sends this side's version (spec.md section 4.8.1: both
// sides may traverse sent/got in any order).
func (p *Protocol) Start() {
	p.Subscribe(wire.Version, p.onVersion)
	p.Subscribe(wire.VersionAcknowledge, p.onVerAck)
	p.Subscribe(wire.SendHeaders, p.onSendHeaders)
	p.Subscribe(wire.SendAddressV2, p.onSendAddrV2)
	p.Subscribe(wire.WitnessTxIDRelay, p.onWtxidRelay)
	p.Timed.Attach(p.stopping)

	if p.cfg.Timeout > 0 {
		p.Deadline.Start(p.cfg.Timeout, p.onTimeout)
	}
	p.sendVersion()
}

func (p *Protocol) stopping(code neterr.Code) {
	if p.completed || code == neterr.Success {
		return
	}
	if p.cfg.OnFail != nil {
		p.cfg.OnFail(code)
	}
}

func (p *Protocol) onTimeout(code neterr.Code) {
	if code != neterr.Success {
		return // cancelled: a re-arm or channel stop already superseded this
	}
	p.Channel.Stop(neterr.HandshakeTimeout)
}

func (p *Protocol) sendVersion() {
	startHeight := uint32(0)
	if p.cfg.StartHeight != nil {
		startHeight = p.cfg.StartHeight()
	}
	v := &payload.Version{
		ProtocolVersion: p.cfg.ProtocolMaximum,
		Services:        p.cfg.ServicesOffered,
		Timestamp:       time.Now().Unix(),
		AddrRecv:        payload.NewNetAddrFromItem(p2paddr.Item{Authority: p.cfg.Peer, Services: p2paddr.NodeNetwork}),
		AddrFrom:        payload.NewNetAddrFromItem(p2paddr.Item{Authority: p.cfg.Self, Services: p.cfg.ServicesOffered}),
		Nonce:           p.Channel.Nonce,
		UserAgent:       p.cfg.UserAgent,
		StartHeight:     startHeight,
		Relay:           p.cfg.RelayTransactions,
	}
	raw, err := wire.EncodePayload(v)
	if err != nil {
		p.Channel.Stop(neterr.BadStream)
		return
	}
	p.Send(wire.Version, raw)
	p.Channel.UpdateNegotiation(func(n *channel.Negotiation) { n.SentVersion = true })
}

func (p *Protocol) onVersion(code neterr.Code, msg wire.Message) bool {
	if code.IsStop() {
		return false
	}
	var v payload.Version
	if err := wire.DecodePayload(&v, msg.Payload); err != nil {
		p.Channel.Stop(neterr.InvalidMessage)
		return false
	}

	if v.Nonce == p.Channel.Nonce {
		p.Channel.Stop(neterr.SelfConnect)
		return false
	}
	if v.ProtocolVersion < p.cfg.ProtocolMinimum {
		p.Channel.Stop(neterr.InsufficientPeerVersion)
		return false
	}
	if p.cfg.ServicesMinimum != 0 && !v.Services.Has(p.cfg.ServicesMinimum) {
		p.Channel.Stop(neterr.InsufficientServices)
		return false
	}

	negotiated := v.ProtocolVersion
	if p.cfg.ProtocolMaximum < negotiated {
		negotiated = p.cfg.ProtocolMaximum
	}

	p.Channel.UpdateNegotiation(func(n *channel.Negotiation) {
		n.GotVersion = true
		n.PeerVersion = negotiated
		n.PeerServices = v.Services
		n.PeerRelay = v.Relay
	})

	raw, _ := wire.EncodePayload(payload.VerAck{})
	p.Send(wire.VersionAcknowledge, raw)
	p.Channel.UpdateNegotiation(func(n *channel.Negotiation) { n.SentVerAck = true })

	p.checkComplete()
	return true
}

func (p *Protocol) onVerAck(code neterr.Code, _ wire.Message) bool {
	if code.IsStop() {
		return false
	}
	p.Channel.UpdateNegotiation(func(n *channel.Negotiation) { n.GotVerAck = true })
	p.checkComplete()
	return true
}

func (p *Protocol) onSendHeaders(code neterr.Code, _ wire.Message) bool {
	if code.IsStop() {
		return false
	}
	p.Channel.UpdateNegotiation(func(n *channel.Negotiation) { n.SendHeaders = true })
	return true
}

func (p *Protocol) onSendAddrV2(code neterr.Code, _ wire.Message) bool {
	if code.IsStop() {
		return false
	}
	p.Channel.UpdateNegotiation(func(n *channel.Negotiation) { n.SendAddrV2 = true })
	return true
}

// onWtxidRelay is only honored between version and verack (spec.md
// section 4.8.1: "must arrive between version and verack per protocol
// rule, else ignored").
func (p *Protocol) onWtxidRelay(code neterr.Code, _ wire.Message) bool {
	if code.IsStop() {
		return false
	}
	n := p.Channel.Negotiation()
	if !n.GotVersion || n.GotVerAck {
		return true
	}
	p.Channel.UpdateNegotiation(func(n *channel.Negotiation) { n.WtxidRelay = true })
	return true
}

func (p *Protocol) checkComplete() {
	if p.completed {
		return
	}
	if !p.Channel.Negotiation().Done() {
		return
	}
	p.completed = true
	p.Deadline.Stop()
	if p.cfg.OnComplete != nil {
		p.cfg.OnComplete(p.Channel)
	}
}
