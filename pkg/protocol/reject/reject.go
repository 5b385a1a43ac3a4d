// Package reject implements the reject protocol of spec.md section
// 4.8.4: it logs reject payloads with hash context and never
// generates one itself in steady state, surfacing a rejection of our
// own version as a terminal handshake failure.
package reject

import (
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/protocol"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wire/payload"
)

// Protocol logs every inbound reject payload and reports rejections of
// our own version upward.
type Protocol struct {
	*protocol.Base
	log *zap.Logger

	// OnTerminalReject, if set, runs when the peer rejects our version
	// message -- a handshake failure rather than steady-state noise.
	OnTerminalReject func(payload.Reject)
}

// New attaches reject logging to ch. log may be nil, in which case a
// no-op logger is used.
func New(ch *channel.Channel, log *zap.Logger) *Protocol {
	if log == nil {
		log = zap.NewNop()
	}
	return &Protocol{Base: protocol.NewBase(ch), log: log}
}

// Start subscribes to reject messages.
func (p *Protocol) Start() {
	p.Subscribe(wire.Reject, p.onReject)
	p.Attach(nil)
}

func (p *Protocol) onReject(code neterr.Code, msg wire.Message) bool {
	if code.IsStop() {
		return false
	}
	var r payload.Reject
	if err := wire.DecodePayload(&r, msg.Payload); err != nil {
		p.log.Info("malformed reject payload", zap.Error(err))
		return true // malformed reject is logged, not fatal to the channel
	}

	fields := []zap.Field{
		zap.String("message", r.Message),
		zap.Uint8("code", uint8(r.Code)),
		zap.String("reason", r.Reason),
	}
	if len(r.Hash) > 0 {
		fields = append(fields, zap.String("hash", hex.EncodeToString(r.Hash)))
	}
	p.log.Info("peer rejected message", fields...)

	if r.Message == "version" && p.OnTerminalReject != nil {
		p.OnTerminalReject(r)
	}
	return true
}
