package payload

import (
	"io"

	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wireutil"
)

// PingEmpty is the pre-bip31 keepalive payload: no body at all.
// Liveness under this variant is a one-sided timer with no reply.
type PingEmpty struct{ emptyPayload }

// Command returns the identifier this payload is sent under.
func (PingEmpty) Command() wire.Identifier { return wire.Ping }

// Ping carries a freshly-drawn nonce for the bip31-and-later keepalive
// protocol, echoed back in the matching Pong.
type Ping struct {
	Nonce uint64
}

// Encode implements wire.Payload.
func (p *Ping) Encode(w io.Writer) error {
	bw := &wireutil.Writer{W: w}
	bw.Write(p.Nonce)
	return bw.Err
}

// Decode implements wire.Payload.
func (p *Ping) Decode(r io.Reader) error {
	br := &wireutil.Reader{R: r}
	br.Read(&p.Nonce)
	return br.Err
}

// Command returns the identifier this payload is sent under.
func (p *Ping) Command() wire.Identifier { return wire.Ping }

// Pong echoes the nonce of the ping it answers.
type Pong struct {
	Nonce uint64
}

// Encode implements wire.Payload.
func (p *Pong) Encode(w io.Writer) error {
	bw := &wireutil.Writer{W: w}
	bw.Write(p.Nonce)
	return bw.Err
}

// Decode implements wire.Payload.
func (p *Pong) Decode(r io.Reader) error {
	br := &wireutil.Reader{R: r}
	br.Read(&p.Nonce)
	return br.Err
}

// Command returns the identifier this payload is sent under.
func (p *Pong) Command() wire.Identifier { return wire.Pong }

var (
	_ wire.Payload = PingEmpty{}
	_ wire.Payload = (*Ping)(nil)
	_ wire.Payload = (*Pong)(nil)
)
