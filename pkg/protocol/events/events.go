// Package events implements protocol_events (supplemented from
// original_source, see DESIGN.md): a thin protocol, attached by every
// session alongside the rest of a channel's protocols, that forwards
// channel lifecycle transitions to the reporter event sink of
// spec.md section 6.
package events

import (
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/protocol"
	"github.com/netstrand/p2pnode/pkg/reporter"
)

// Protocol carries no subscriptions of its own; it only observes the
// channel lifecycle via Base.Attach and the explicit HandshakeComplete
// call a session makes once attach_protocols runs.
type Protocol struct {
	*protocol.Base
	rep *reporter.Reporter
}

// New attaches lifecycle reporting to ch. rep may be nil, in which
// case reporter.Noop is used.
func New(ch *channel.Channel, rep *reporter.Reporter) *Protocol {
	if rep == nil {
		rep = reporter.Noop
	}
	return &Protocol{Base: protocol.NewBase(ch), rep: rep}
}

// Start reports the channel coming up and arms the stop observer.
func (p *Protocol) Start() {
	p.rep.Report(reporter.Outbound1, 1)
	p.Attach(p.stopping)
}

// HandshakeComplete reports that this channel's handshake finished.
// Sessions call this from their attach_protocols hook.
func (p *Protocol) HandshakeComplete() {
	p.rep.Report(reporter.Outbound2, 1)
}

func (p *Protocol) stopping(neterr.Code) {
	p.rep.Report(reporter.Stop, 1)
}
