// Package proxy drives the frame-level read loop and the FIFO send
// path over a netio.Socket, pushing decoded messages into a
// distributor.Distributor and draining a pending-send queue on stop.
package proxy

import (
	"bytes"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/pkg/distributor"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/netio"
	"github.com/netstrand/p2pnode/pkg/wire"
)

// Proxy owns one socket's worth of frame parsing and FIFO writes. All
// exported methods must only be called from the owning strand.
type Proxy struct {
	strand     *async.Strand
	socket     *netio.Socket
	dist       *distributor.Distributor
	magic      uint32
	maxPayload uint32

	writing bool
	pending [][]byte

	stopped bool
	onStop  func(neterr.Code)
	onFrame func(wire.Message)
}

// New builds a Proxy over socket, delivering decoded messages to dist
// and invoking onStop (if non-nil) the first time the proxy stops.
func New(strand *async.Strand, socket *netio.Socket, dist *distributor.Distributor, magic uint32, maxPayload uint32, onStop func(neterr.Code)) *Proxy {
	return &Proxy{strand: strand, socket: socket, dist: dist, magic: magic, maxPayload: maxPayload, onStop: onStop}
}

// OnFrame registers a callback invoked with every successfully decoded
// frame, before it reaches the distributor. Channel uses this to reset
// its inactivity deadline on any traffic, not only traffic some
// protocol happens to be subscribed to.
func (p *Proxy) OnFrame(handler func(wire.Message)) {
	p.onFrame = handler
}

// Resume arms the first heading read, starting the proxy's read loop.
func (p *Proxy) Resume() {
	p.armHeadingRead()
}

func (p *Proxy) armHeadingRead() {
	buf := make([]byte, wire.HeadingSize)
	code := p.socket.ReadExactly(buf, func(code neterr.Code, data []byte) {
		if code != neterr.Success {
			p.Stop(code)
			return
		}
		h, err := wire.DecodeHeading(bytes.NewReader(data))
		if err != nil {
			p.Stop(neterr.BadStream)
			return
		}
		if h.Magic != p.magic {
			p.Stop(neterr.InvalidMagic)
			return
		}
		limit := p.maxPayload
		if limit == 0 {
			limit = wire.MaxPayloadSize
		}
		if h.PayloadLength > limit {
			p.Stop(neterr.OversizedPayload)
			return
		}
		p.armPayloadRead(h)
	})
	if code != neterr.Success {
		p.Stop(code)
	}
}

func (p *Proxy) armPayloadRead(h wire.Heading) {
	buf := make([]byte, h.PayloadLength)
	code := p.socket.ReadExactly(buf, func(code neterr.Code, data []byte) {
		if code != neterr.Success {
			p.Stop(code)
			return
		}
		if wire.Checksum(data) != h.Checksum {
			p.Stop(neterr.InvalidChecksum)
			return
		}
		msg := wire.Message{Heading: h, Payload: data}
		if p.onFrame != nil {
			p.onFrame(msg)
		}
		p.dist.Notify(msg)
		p.armHeadingRead()
	})
	if code != neterr.Success {
		p.Stop(code)
	}
}

// Send frames (id, body) and enqueues it for write. Frames queue in
// FIFO order; only one write is ever in flight on the underlying
// socket.
func (p *Proxy) Send(id wire.Identifier, body []byte) neterr.Code {
	if p.stopped {
		return neterr.ChannelStopped
	}
	h := wire.NewHeading(p.magic, id, body)
	frame := make([]byte, 0, wire.HeadingSize+len(body))
	buf := &byteBuffer{b: frame}
	if err := h.Encode(buf); err != nil {
		return neterr.BadStream
	}
	buf.b = append(buf.b, body...)

	p.pending = append(p.pending, buf.b)
	if !p.writing {
		p.writeNext()
	}
	return neterr.Success
}

func (p *Proxy) writeNext() {
	if len(p.pending) == 0 {
		p.writing = false
		return
	}
	p.writing = true
	frame := p.pending[0]
	p.pending = p.pending[1:]

	code := p.socket.WriteExactly(frame, func(code neterr.Code) {
		if code != neterr.Success {
			p.Stop(code)
			return
		}
		p.writeNext()
	})
	if code != neterr.Success {
		p.Stop(code)
	}
}

// Stop tears the proxy down: stops the socket, drains every pending
// write, and tells the distributor to deliver code to every subscriber.
// Idempotent; only the first call's code is delivered.
func (p *Proxy) Stop(code neterr.Code) {
	if p.stopped {
		return
	}
	p.stopped = true
	p.pending = nil
	p.socket.Stop()
	p.dist.Stop(code)
	if p.onStop != nil {
		p.onStop(code)
	}
}

// byteBuffer is a minimal io.Writer over a growable slice, avoiding a
// bytes.Buffer allocation for the common small-heading-plus-body case.
type byteBuffer struct{ b []byte }

func (w *byteBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}
