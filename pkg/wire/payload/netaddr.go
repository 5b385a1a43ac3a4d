package payload

import (
	"io"

	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/wireutil"
)

// NetAddr is the wire form of a peer address record carried inside
// version and addr payloads.
type NetAddr struct {
	Timestamp uint32
	Services  p2paddr.Service
	IP        [16]byte
	Port      uint16
}

// NewNetAddrFromItem converts an address-book item to its wire form.
func NewNetAddrFromItem(item p2paddr.Item) NetAddr {
	return NetAddr{
		Timestamp: uint32(item.Timestamp),
		Services:  item.Services,
		IP:        item.Authority.Bytes(),
		Port:      item.Authority.Port,
	}
}

// ToItem converts the wire form back into an address-book item.
func (n NetAddr) ToItem() p2paddr.Item {
	return p2paddr.Item{
		Authority: p2paddr.NewAuthorityFromBytes(n.IP, n.Port),
		Timestamp: int64(n.Timestamp),
		Services:  n.Services,
	}
}

// Encode writes the net_addr record. IP and port are kept in network
// byte order, matching every other implementation of this wire format.
func (n NetAddr) Encode(w io.Writer) error {
	bw := &wireutil.Writer{W: w}
	bw.Write(n.Timestamp)
	bw.Write(uint64(n.Services))
	bw.WriteBigEndian(n.IP)
	bw.WriteBigEndian(n.Port)
	return bw.Err
}

// Decode reads a net_addr record.
func (n *NetAddr) Decode(r io.Reader) error {
	br := &wireutil.Reader{R: r}
	br.Read(&n.Timestamp)
	var services uint64
	br.Read(&services)
	n.Services = p2paddr.Service(services)
	br.ReadBigEndian(&n.IP)
	br.ReadBigEndian(&n.Port)
	return br.Err
}
