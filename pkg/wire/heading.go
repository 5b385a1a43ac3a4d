package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
)

// HeadingSize is the fixed, on-wire size of a Heading in bytes.
const HeadingSize = 4 + commandWidth + 4 + 4

// Heading is the fixed-size frame prefix described in spec.md section 6:
// magic, NUL-padded command, payload length, and a truncated
// double-SHA256 checksum of the payload.
type Heading struct {
	Magic         uint32
	Command       string
	PayloadLength uint32
	Checksum      [4]byte
}

// Checksum computes the heading checksum field for payload: the first 4
// bytes of SHA256(SHA256(payload)).
func Checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

// NewHeading builds the heading for a (magic, identifier, payload) triple,
// computing payload length and checksum.
func NewHeading(magic uint32, id Identifier, payload []byte) Heading {
	return Heading{
		Magic:         magic,
		Command:       id.Command(),
		PayloadLength: uint32(len(payload)),
		Checksum:      Checksum(payload),
	}
}

// Encode writes the 24-byte heading to w.
func (h Heading) Encode(w io.Writer) error {
	var buf [HeadingSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	copy(buf[4:4+commandWidth], []byte(h.Command))
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLength)
	copy(buf[20:24], h.Checksum[:])
	_, err := w.Write(buf[:])
	return err
}

// DecodeHeading reads and parses a 24-byte heading from r.
func DecodeHeading(r io.Reader) (Heading, error) {
	var buf [HeadingSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Heading{}, err
	}
	var h Heading
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	raw := buf[4 : 4+commandWidth]
	h.Command = string(bytes.TrimRight(raw, "\x00"))
	h.PayloadLength = binary.LittleEndian.Uint32(buf[16:20])
	copy(h.Checksum[:], buf[20:24])
	return h, nil
}

// Identifier maps the heading's command to the closed catalog.
func (h Heading) Identifier() Identifier {
	return IdentifierForCommand(h.Command)
}

// ErrCommandTooLong names a command that does not fit the fixed 12-byte
// field. No function in this package returns it: Heading.Encode copies
// at most 12 bytes of the command and drops the rest.
var ErrCommandTooLong = errors.New("wire: command exceeds 12 bytes")
