package payload

import (
	"io"

	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wireutil"
)

// maxAddrEntries bounds the number of records accepted in a single addr
// message, guarding against a peer claiming an unbounded count.
const maxAddrEntries = 1000

// Addr carries a batch of peer address records, each in the single
// NetAddr encoding. There is no separate v2 address encoding: the
// sendaddrv2 capability negotiated for the channel does not change how
// an Addr is written or read.
type Addr struct {
	Entries []NetAddr
}

// Encode implements wire.Payload.
func (a *Addr) Encode(w io.Writer) error {
	bw := &wireutil.Writer{W: w}
	bw.VarUint(uint64(len(a.Entries)))
	if bw.Err != nil {
		return bw.Err
	}
	for _, e := range a.Entries {
		if err := e.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// Decode implements wire.Payload.
func (a *Addr) Decode(r io.Reader) error {
	br := &wireutil.Reader{R: r}
	n := br.VarUint()
	if br.Err != nil {
		return br.Err
	}
	if n > maxAddrEntries {
		return wire.ErrOversizedPayload
	}
	a.Entries = make([]NetAddr, n)
	for i := range a.Entries {
		if err := a.Entries[i].Decode(r); err != nil {
			return err
		}
	}
	return nil
}

// Command returns the identifier this payload is sent under.
func (a *Addr) Command() wire.Identifier { return wire.Address }

var _ wire.Payload = (*Addr)(nil)
