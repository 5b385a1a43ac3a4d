package payload

import (
	"io"

	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wireutil"
)

const maxUserAgentLength = 256

// Version is the peer-greeting payload: protocol version, service
// bits, the two addresses each side believes it is connecting over,
// the loop-detection nonce, a free-form user-agent string, the
// sender's chain height, and its relay preference.
type Version struct {
	ProtocolVersion uint32
	Services        p2paddr.Service
	Timestamp       int64
	AddrRecv        NetAddr
	AddrFrom        NetAddr
	Nonce           uint64
	UserAgent       string
	StartHeight     uint32
	Relay           bool
}

// Encode implements wire.Payload.
func (v *Version) Encode(w io.Writer) error {
	bw := &wireutil.Writer{W: w}
	bw.Write(v.ProtocolVersion)
	bw.Write(uint64(v.Services))
	bw.Write(v.Timestamp)
	if err := v.AddrRecv.Encode(w); err != nil {
		return err
	}
	if err := v.AddrFrom.Encode(w); err != nil {
		return err
	}
	bw.Write(v.Nonce)
	bw.VarString(v.UserAgent)
	bw.Write(v.StartHeight)
	bw.Write(v.Relay)
	return bw.Err
}

// Decode implements wire.Payload.
func (v *Version) Decode(r io.Reader) error {
	br := &wireutil.Reader{R: r}
	br.Read(&v.ProtocolVersion)
	var services uint64
	br.Read(&services)
	v.Services = p2paddr.Service(services)
	br.Read(&v.Timestamp)
	if err := v.AddrRecv.Decode(r); err != nil {
		return err
	}
	if err := v.AddrFrom.Decode(r); err != nil {
		return err
	}
	br.Read(&v.Nonce)
	v.UserAgent = br.VarString(maxUserAgentLength)
	br.Read(&v.StartHeight)
	br.Read(&v.Relay)
	return br.Err
}

// Command returns the version identifier this payload is sent under.
func (v *Version) Command() wire.Identifier { return wire.Version }

var _ wire.Payload = (*Version)(nil)
