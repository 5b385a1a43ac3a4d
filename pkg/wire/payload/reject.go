package payload

import (
	"io"

	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wireutil"
)

// RejectCode mirrors the peer's reason for refusing a message.
type RejectCode uint8

// The closed set of reject codes this implementation understands; any
// other byte on the wire decodes fine and round-trips, it simply has no
// name.
const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonStandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

const (
	maxRejectMessageLength = commandMaxLength
	maxRejectReasonLength  = 256
)

// commandMaxLength matches the heading's command field width; Reject
// quotes the rejected message's command text, which cannot exceed it.
const commandMaxLength = 12

// Reject reports that a previously sent message was refused, with an
// optional hash (present for tx/block rejections).
type Reject struct {
	Message string
	Code    RejectCode
	Reason  string
	Hash    []byte
}

// Encode implements wire.Payload.
func (r *Reject) Encode(w io.Writer) error {
	bw := &wireutil.Writer{W: w}
	bw.VarString(r.Message)
	bw.Write(uint8(r.Code))
	bw.VarString(r.Reason)
	if len(r.Hash) > 0 {
		bw.Write(r.Hash)
	}
	return bw.Err
}

// Decode implements wire.Payload. Hash is read as whatever remains
// after reason, mirroring the original format's lack of an explicit
// hash-presence flag: callers that know the rejected command carries a
// hash (tx, block) treat a non-empty remainder as one.
func (r *Reject) Decode(re io.Reader) error {
	br := &wireutil.Reader{R: re}
	r.Message = br.VarString(maxRejectMessageLength)
	var code uint8
	br.Read(&code)
	r.Code = RejectCode(code)
	r.Reason = br.VarString(maxRejectReasonLength)
	if br.Err != nil {
		return br.Err
	}
	hash, err := io.ReadAll(re)
	if err != nil {
		return err
	}
	if len(hash) > 0 {
		r.Hash = hash
	}
	return nil
}

// Command returns the identifier this payload is sent under.
func (r *Reject) Command() wire.Identifier { return wire.Reject }

var _ wire.Payload = (*Reject)(nil)
