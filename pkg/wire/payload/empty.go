package payload

import (
	"io"

	"github.com/netstrand/p2pnode/pkg/wire"
)

// emptyPayload is embedded by every payload with no body, so Encode and
// Decode are no-ops and only the Command method need be written out.
type emptyPayload struct{}

func (emptyPayload) Encode(io.Writer) error { return nil }
func (emptyPayload) Decode(io.Reader) error { return nil }

// VerAck completes the handshake: received once each direction's
// version has been accepted.
type VerAck struct{ emptyPayload }

// Command returns the identifier this payload is sent under.
func (VerAck) Command() wire.Identifier { return wire.VersionAcknowledge }

// GetAddr requests a sample of the peer's address book.
type GetAddr struct{ emptyPayload }

// Command returns the identifier this payload is sent under.
func (GetAddr) Command() wire.Identifier { return wire.GetAddress }

// SendHeaders is a sticky capability flag: the peer prefers header
// announcements over inv announcements.
type SendHeaders struct{ emptyPayload }

// Command returns the identifier this payload is sent under.
func (SendHeaders) Command() wire.Identifier { return wire.SendHeaders }

// SendAddrV2 is a sticky capability flag: the peer understands the v2
// address encoding and addr payloads may be sent in that form.
type SendAddrV2 struct{ emptyPayload }

// Command returns the identifier this payload is sent under.
func (SendAddrV2) Command() wire.Identifier { return wire.SendAddressV2 }

// WtxidRelay is a sticky capability flag: the peer relays transactions
// by witness txid. Only meaningful between version and verack; a peer
// sending it after verack is ignored.
type WtxidRelay struct{ emptyPayload }

// Command returns the identifier this payload is sent under.
func (WtxidRelay) Command() wire.Identifier { return wire.WitnessTxIDRelay }

var (
	_ wire.Payload = VerAck{}
	_ wire.Payload = GetAddr{}
	_ wire.Payload = SendHeaders{}
	_ wire.Payload = SendAddrV2{}
	_ wire.Payload = WtxidRelay{}
)
