package addrgossip

import (
	"net"
	"testing"
	"time"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/hosts"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wire/payload"
)

func newPair(t *testing.T, pool *async.Pool) (*channel.Channel, *channel.Channel) {
	t.Helper()
	a, b := net.Pipe()
	client := channel.New(a, channel.Config{Identifier: 1, Outbound: true, Magic: wire.MagicMainNet, Pool: pool})
	server := channel.New(b, channel.Config{Identifier: 2, Outbound: false, Magic: wire.MagicMainNet, Pool: pool})
	client.Resume()
	server.Resume()
	return client, server
}

func TestInStoresRoutableEntriesAndDropsSelf(t *testing.T) {
	pool := async.NewPool(8)
	client, server := newPair(t, pool)
	defer client.Stop(neterr.Success)
	defer server.Stop(neterr.Success)

	self, _ := p2paddr.NewAuthority("203.0.113.9", 8333)
	client.Authority = self
	h := hosts.New(hosts.Config{Capacity: 8, Self: self})

	in := NewIn(client, h, 0, nil)
	in.Start()

	good, _ := p2paddr.NewAuthority("198.51.100.5", 8333)
	loopback, _ := p2paddr.NewAuthority("127.0.0.1", 8333)

	addr := &payload.Addr{Entries: []payload.NetAddr{
		payload.NewNetAddrFromItem(p2paddr.Item{Authority: good, Timestamp: 1000}),
		payload.NewNetAddrFromItem(p2paddr.Item{Authority: self, Timestamp: 1000}),
		payload.NewNetAddrFromItem(p2paddr.Item{Authority: loopback, Timestamp: 1000}),
	}}
	raw, err := wire.EncodePayload(addr)
	if err != nil {
		t.Fatalf("encode addr: %v", err)
	}
	if code := server.Send(wire.Address, raw); code != neterr.Success {
		t.Fatalf("send code = %v", code)
	}

	deadline := time.Now().Add(time.Second)
	for h.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Count() != 1 {
		t.Fatalf("hosts count = %d, want 1 (self and loopback dropped)", h.Count())
	}
}

func TestInDropsBannedAndUnderservicedEntries(t *testing.T) {
	pool := async.NewPool(8)
	client, server := newPair(t, pool)
	defer client.Stop(neterr.Success)
	defer server.Stop(neterr.Success)

	banned, _ := p2paddr.NewAuthority("203.0.113.50", 8333)
	h := hosts.New(hosts.Config{Capacity: 8, Banned: []p2paddr.Authority{banned}})

	in := NewIn(client, h, p2paddr.NodeNetwork, nil)
	in.Start()

	good, _ := p2paddr.NewAuthority("198.51.100.5", 8333)
	noServices, _ := p2paddr.NewAuthority("198.51.100.6", 8333)

	addr := &payload.Addr{Entries: []payload.NetAddr{
		payload.NewNetAddrFromItem(p2paddr.Item{Authority: good, Timestamp: 1000, Services: p2paddr.NodeNetwork}),
		payload.NewNetAddrFromItem(p2paddr.Item{Authority: banned, Timestamp: 1000, Services: p2paddr.NodeNetwork}),
		payload.NewNetAddrFromItem(p2paddr.Item{Authority: noServices, Timestamp: 1000}),
	}}
	raw, err := wire.EncodePayload(addr)
	if err != nil {
		t.Fatalf("encode addr: %v", err)
	}
	if code := server.Send(wire.Address, raw); code != neterr.Success {
		t.Fatalf("send code = %v", code)
	}

	deadline := time.Now().Add(time.Second)
	for h.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Count() != 1 {
		t.Fatalf("hosts count = %d, want 1 (banned and under-serviced entries dropped)", h.Count())
	}
}

func TestOutRespondsToGetAddrOnceAndSampleIsBounded(t *testing.T) {
	pool := async.NewPool(8)
	client, server := newPair(t, pool)
	defer client.Stop(neterr.Success)
	defer server.Stop(neterr.Success)

	h := hosts.New(hosts.Config{Capacity: 64})
	for i := 0; i < 30; i++ {
		a, _ := p2paddr.NewAuthority("198.51.100.1", uint16(1024+i))
		h.Add(p2paddr.Item{Authority: a, Timestamp: int64(i)})
	}

	out := NewOut(server, h, nil, false)
	out.Start()

	got := make(chan payload.Addr, 4)
	client.Subscribe(wire.Address, func(code neterr.Code, msg wire.Message) bool {
		if code == neterr.Success {
			var a payload.Addr
			if err := wire.DecodePayload(&a, msg.Payload); err == nil {
				got <- a
			}
		}
		return true
	})

	raw, _ := wire.EncodePayload(payload.GetAddr{})
	client.Send(wire.GetAddress, raw)
	client.Send(wire.GetAddress, raw) // second request must be ignored

	select {
	case a := <-got:
		if len(a.Entries) != addrSampleSize {
			t.Errorf("sample size = %d, want %d", len(a.Entries), addrSampleSize)
		}
	case <-time.After(time.Second):
		t.Fatal("no addr response arrived")
	}

	select {
	case <-got:
		t.Fatal("second getaddr produced a second response")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusRelaysToOutboundPeersExcludingSenderWithinQuota(t *testing.T) {
	pool := async.NewPool(16)
	busStrand := async.NewStrand(pool)
	bus := NewBus(busStrand)
	h := hosts.New(hosts.Config{Capacity: 8})

	var peers []*channel.Channel
	var socks []net.Conn
	received := make(chan struct{}, relayQuota+2)

	for i := 0; i < relayQuota+1; i++ {
		a, b := net.Pipe()
		socks = append(socks, b)
		ch := channel.New(a, channel.Config{Identifier: uint64(10 + i), Outbound: true, Magic: wire.MagicMainNet, Pool: pool})
		ch.Resume()
		defer ch.Stop(neterr.Success)
		peers = append(peers, ch)

		out := NewOut(ch, h, bus, true)
		out.Start()

		server := channel.New(b, channel.Config{Identifier: uint64(100 + i), Magic: wire.MagicMainNet, Pool: pool})
		server.Resume()
		defer server.Stop(neterr.Success)
		server.Subscribe(wire.Address, func(code neterr.Code, _ wire.Message) bool {
			if code == neterr.Success {
				received <- struct{}{}
			}
			return true
		})
	}

	sender, _ := p2paddr.NewAuthority("198.51.100.9", 8333)
	bus.Publish(Announcement{SenderID: peers[0].Identifier, Item: p2paddr.Item{Authority: sender}})

	count := 0
	timeout := time.After(time.Second)
loop:
	for {
		select {
		case <-received:
			count++
		case <-timeout:
			break loop
		}
		if count >= relayQuota {
			// give any extra (quota-violating) relay a moment to arrive
			select {
			case <-received:
				count++
			case <-time.After(100 * time.Millisecond):
				break loop
			}
		}
	}
	if count != relayQuota {
		t.Errorf("relayed to %d peers, want exactly the quota %d (sender excluded from %d total)", count, relayQuota, relayQuota+1)
	}
}
