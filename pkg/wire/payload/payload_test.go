package payload

import (
	"bytes"
	"testing"

	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wireutil"
)

func roundTrip(t *testing.T, p wire.Payload, decoded wire.Payload) {
	t.Helper()
	raw, err := wire.EncodePayload(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := wire.DecodePayload(decoded, raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestVersionRoundTrip(t *testing.T) {
	authRecv, _ := p2paddr.NewAuthority("203.0.113.5", 8333)
	authFrom, _ := p2paddr.NewAuthority("198.51.100.9", 8333)

	v := &Version{
		ProtocolVersion: 70015,
		Services:        p2paddr.NodeNetwork,
		Timestamp:       1700000000,
		AddrRecv:        NewNetAddrFromItem(p2paddr.Item{Authority: authRecv, Services: p2paddr.NodeNetwork}),
		AddrFrom:        NewNetAddrFromItem(p2paddr.Item{Authority: authFrom, Services: p2paddr.NodeNetwork}),
		Nonce:           0x0102030405060708,
		UserAgent:       "/netstrand:0.1.0/",
		StartHeight:     123456,
		Relay:           true,
	}

	var got Version
	roundTrip(t, v, &got)

	if got.ProtocolVersion != v.ProtocolVersion || got.Nonce != v.Nonce || got.UserAgent != v.UserAgent {
		t.Fatalf("got = %+v, want %+v", got, v)
	}
	if got.AddrRecv.Port != authRecv.Port {
		t.Errorf("AddrRecv.Port = %d, want %d", got.AddrRecv.Port, authRecv.Port)
	}
	if !got.Relay {
		t.Error("Relay did not round trip")
	}
}

func TestPingScenarioS1Bytes(t *testing.T) {
	p := &Ping{Nonce: 0x0102030405060708}
	raw, err := wire.EncodePayload(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var buf bytes.Buffer
	if err := wire.Encode(&buf, wire.MagicMainNet, wire.Ping, raw); err != nil {
		t.Fatalf("frame encode: %v", err)
	}

	want := []byte{
		0xf9, 0xbe, 0xb4, 0xd9, // magic
		'p', 'i', 'n', 'g', 0, 0, 0, 0, 0, 0, 0, 0, // command, NUL padded
		0x08, 0x00, 0x00, 0x00, // payload length
	}
	got := buf.Bytes()
	if len(got) < len(want) {
		t.Fatalf("frame too short: %d bytes", len(got))
	}
	if !bytes.Equal(got[:4], want[:4]) {
		t.Errorf("magic = % x, want % x", got[:4], want[:4])
	}
	if !bytes.Equal(got[4:16], want[4:16]) {
		t.Errorf("command = % x, want % x", got[4:16], want[4:16])
	}
	if !bytes.Equal(got[16:20], want[16:20]) {
		t.Errorf("length = % x, want % x", got[16:20], want[16:20])
	}
	payload := got[len(got)-8:]
	wantPayload := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(payload, wantPayload) {
		t.Errorf("payload = % x, want % x", payload, wantPayload)
	}
}

func TestPongEchoesNonce(t *testing.T) {
	p := &Pong{Nonce: 0xdeadbeefcafebabe}
	var got Pong
	roundTrip(t, p, &got)
	if got.Nonce != p.Nonce {
		t.Errorf("Nonce = %#x, want %#x", got.Nonce, p.Nonce)
	}
}

func TestEmptyPayloadsRoundTripToNothing(t *testing.T) {
	raw, err := wire.EncodePayload(VerAck{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("VerAck encoded to %d bytes, want 0", len(raw))
	}
	if err := wire.DecodePayload(&struct{ VerAck }{}, raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestAddrRoundTrip(t *testing.T) {
	a1, _ := p2paddr.NewAuthority("192.0.2.1", 8333)
	a2, _ := p2paddr.NewAuthority("192.0.2.2", 8334)

	addr := &Addr{Entries: []NetAddr{
		NewNetAddrFromItem(p2paddr.Item{Authority: a1, Services: p2paddr.NodeNetwork, Timestamp: 100}),
		NewNetAddrFromItem(p2paddr.Item{Authority: a2, Services: p2paddr.NodeNetwork, Timestamp: 200}),
	}}

	var got Addr
	roundTrip(t, addr, &got)

	if len(got.Entries) != 2 {
		t.Fatalf("Entries = %d, want 2", len(got.Entries))
	}
	if got.Entries[0].Port != 8333 || got.Entries[1].Port != 8334 {
		t.Errorf("ports did not round trip: %+v", got.Entries)
	}
}

func TestAddrRejectsOversizedCount(t *testing.T) {
	var buf bytes.Buffer
	bw := &wireutil.Writer{W: &buf}
	bw.VarUint(maxAddrEntries + 1)

	var got Addr
	if err := got.Decode(&buf); err == nil {
		t.Fatal("expected error decoding oversized addr count")
	}
}

func TestRejectRoundTripWithHash(t *testing.T) {
	r := &Reject{
		Message: "tx",
		Code:    RejectDust,
		Reason:  "dust",
		Hash:    bytes.Repeat([]byte{0xab}, 32),
	}
	var got Reject
	roundTrip(t, r, &got)

	if got.Message != r.Message || got.Code != r.Code || got.Reason != r.Reason {
		t.Fatalf("got = %+v, want %+v", got, r)
	}
	if !bytes.Equal(got.Hash, r.Hash) {
		t.Errorf("Hash = % x, want % x", got.Hash, r.Hash)
	}
}

func TestRejectRoundTripWithoutHash(t *testing.T) {
	r := &Reject{Message: "version", Code: RejectObsolete, Reason: "obsolete"}
	var got Reject
	roundTrip(t, r, &got)
	if got.Hash != nil {
		t.Errorf("Hash = % x, want nil", got.Hash)
	}
}
