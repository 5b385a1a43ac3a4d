// Package addrgossip implements address discovery, spec.md section
// 4.8.3: ingestion of unsolicited addr announcements into hosts
// (In), and the getaddr responder plus cross-peer relay (Out),
// grounded on the teacher's Addrmgr OnAddr/OnGetAddr handlers.
package addrgossip

import (
	"net"

	lru "github.com/hashicorp/golang-lru"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/internal/fanout"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/hosts"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/protocol"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wire/payload"
)

// relaySeenCapacity bounds the size of the per-channel cache of
// recently-relayed authorities (see In.relaySeen below).
const relaySeenCapacity = 4096

// initialDumpLimit bounds the first addr message a channel is allowed
// to deliver ("initial dump" of spec.md section 4.8.3); subsequent
// messages are capped by unsolicitedLimit.
const initialDumpLimit = 1000

// unsolicitedLimit bounds every addr message after the first.
const unsolicitedLimit = 100

// addrSampleSize bounds how many entries address_out returns for a
// getaddr request.
const addrSampleSize = 23

// relayQuota bounds how many outbound peers a single freshly-announced
// address is relayed to.
const relayQuota = 2

// Announcement is one relay event on the network-wide broadcast bus:
// a freshly-accepted address plus the identifier of the channel that
// reported it, so relay handlers can exclude the sender (spec.md
// section 5, "resubscriber: senders include their sender-id, handlers
// filter their own").
type Announcement struct {
	SenderID uint64
	Item     p2paddr.Item
}

// Bus is the net-wide address-relay broadcast channel. One Bus is
// constructed by net and shared across every Out instance. Out
// instances are keyed by their owning channel's identifier, which
// both doubles as the desubscribe key and avoids a synchronous
// round-trip back from the bus's own strand at subscribe time.
// Publish, subscribe, and unsubscribe all serialize onto the bus's
// own strand internally, so every one of them is safe to call from
// any channel's strand (spec.md section 5, "net-level broadcast...
// is a resubscriber").
type Bus struct {
	strand  *async.Strand
	group   *fanout.Keyed[uint64, Announcement]
	relayed int
}

// NewBus creates an empty relay bus bound to strand.
func NewBus(strand *async.Strand) *Bus {
	return &Bus{strand: strand, group: fanout.NewKeyed[uint64, Announcement]()}
}

// Publish broadcasts ann to every subscribed Out, resetting the
// per-announcement relay quota.
func (b *Bus) Publish(ann Announcement) {
	b.strand.Post(func() {
		b.relayed = 0
		b.group.Notify(neterr.Success, ann)
	})
}

// reserveSlot consumes one unit of the in-flight announcement's relay
// quota, reporting whether a slot was available (spec.md section
// 4.8.3, "relay up to a small quota"). Only called from the bus's own
// strand, from within a Notify dispatched by Publish.
func (b *Bus) reserveSlot() bool {
	if b.relayed >= relayQuota {
		return false
	}
	b.relayed++
	return true
}

func (b *Bus) subscribe(key uint64, handler func(Announcement)) {
	b.strand.Post(func() {
		b.group.Subscribe(key, func(code neterr.Code, ann Announcement) bool {
			if !code.IsStop() {
				handler(ann)
			}
			return true
		})
	})
}

func (b *Bus) unsubscribe(key uint64) {
	b.strand.Post(func() {
		b.group.Unsubscribe(key)
	})
}

// In ingests incoming addr payloads into hosts, filtering self,
// banned, non-routable, and under-serviced entries, rate limiting
// after the first message per channel.
type In struct {
	*protocol.Base
	hosts           *hosts.Hosts
	servicesMinimum p2paddr.Service
	dumped          bool
	relayHandler    func(p2paddr.Item)

	// relaySeen dedups repeatedly-announced authorities so a peer that
	// re-broadcasts the same stale entry every addr message doesn't
	// re-trigger a relay publish each time, grounded on go-probe's
	// pob.Snapshot ARC caches (consensus/pob/pob.go) repurposed here
	// from block-header dedup to address-gossip dedup.
	relaySeen *lru.ARCCache
}

// NewIn attaches address ingestion to ch. relay, if non-nil, is called
// once per freshly-accepted item (net wires this to Bus.Publish).
// servicesMinimum gates ingestion the same way it gates the version
// handshake (spec.md section 4.8.3, "wrong service bits"): zero means
// no requirement.
func NewIn(ch *channel.Channel, h *hosts.Hosts, servicesMinimum p2paddr.Service, relay func(p2paddr.Item)) *In {
	seen, _ := lru.NewARC(relaySeenCapacity)
	return &In{Base: protocol.NewBase(ch), hosts: h, servicesMinimum: servicesMinimum, relayHandler: relay, relaySeen: seen}
}

// Start subscribes to address announcements.
func (in *In) Start() {
	in.Subscribe(wire.Address, in.onAddr)
	in.Attach(nil)
}

func (in *In) onAddr(code neterr.Code, msg wire.Message) bool {
	if code.IsStop() {
		return false
	}
	var addr payload.Addr
	if err := wire.DecodePayload(&addr, msg.Payload); err != nil {
		in.Channel.Stop(neterr.InvalidMessage)
		return false
	}

	limit := unsolicitedLimit
	if !in.dumped {
		limit = initialDumpLimit
	}
	in.dumped = true
	if len(addr.Entries) > limit {
		addr.Entries = addr.Entries[:limit]
	}

	for _, entry := range addr.Entries {
		item := entry.ToItem()
		if !acceptable(item, in.hosts, in.servicesMinimum) {
			continue
		}
		in.hosts.Add(item)
		if in.relayHandler != nil && !in.recentlyRelayed(item.Authority) {
			in.relayHandler(item)
		}
	}
	return true
}

// recentlyRelayed reports whether a was already relayed on this
// channel's behalf recently, marking it seen if not. This runs on the
// channel's own strand (onAddr's caller), so the cache needs no lock
// of its own beyond what lru.ARCCache already provides internally.
func (in *In) recentlyRelayed(a p2paddr.Authority) bool {
	if in.relaySeen == nil {
		return false
	}
	key := a.String()
	if in.relaySeen.Contains(key) {
		return true
	}
	in.relaySeen.Add(key, struct{}{})
	return false
}

// acceptable implements the address_in filter of spec.md section
// 4.8.3: drop self, drop banned, drop non-routable, drop entries
// lacking the required service bits.
func acceptable(item p2paddr.Item, h *hosts.Hosts, servicesMinimum p2paddr.Service) bool {
	if h.Blocked(item.Authority) {
		return false
	}
	if !isRoutable(item.Authority.IP()) {
		return false
	}
	return servicesMinimum == 0 || item.Services.Has(servicesMinimum)
}

func isRoutable(ip net.IP) bool {
	return !ip.IsUnspecified() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() && !ip.IsMulticast()
}

// Out answers getaddr requests from hosts and relays freshly-accepted
// addresses announced by other channels, excluding the announcer.
type Out struct {
	*protocol.Base
	hosts *hosts.Hosts
	bus   *Bus
	sent  bool
}

// NewOut attaches the getaddr responder and relay subscriber to ch.
// outbound should be true only for outbound peer channels, matching
// spec.md section 4.8.3's "relay... to other outbound peers".
func NewOut(ch *channel.Channel, h *hosts.Hosts, bus *Bus, outbound bool) *Out {
	out := &Out{Base: protocol.NewBase(ch), hosts: h}
	if outbound {
		out.bus = bus
	}
	return out
}

// Start subscribes to getaddr and, for outbound channels, the relay
// bus.
func (out *Out) Start() {
	out.Subscribe(wire.GetAddress, out.onGetAddr)
	if out.bus != nil {
		out.bus.subscribe(out.Channel.Identifier, out.onAnnouncement)
	}
	out.Attach(out.stopping)
}

func (out *Out) stopping(neterr.Code) {
	if out.bus != nil {
		out.bus.unsubscribe(out.Channel.Identifier)
	}
}

func (out *Out) onGetAddr(code neterr.Code, _ wire.Message) bool {
	if code.IsStop() {
		return false
	}
	if out.sent {
		return true
	}
	out.sent = true

	sample := out.hosts.Snapshot()
	if len(sample) > addrSampleSize {
		sample = sample[len(sample)-addrSampleSize:]
	}
	entries := make([]payload.NetAddr, len(sample))
	for i, item := range sample {
		entries[i] = payload.NewNetAddrFromItem(item)
	}
	raw, _ := wire.EncodePayload(&payload.Addr{Entries: entries})
	out.Send(wire.Address, raw)
	return true
}

// onAnnouncement runs on the bus's own strand, matching spec.md
// section 5's "resubscriber" broadcast model; only the eventual Send
// is deferred onto this Out's own channel strand, since proxy/channel
// state may only be touched there.
func (out *Out) onAnnouncement(ann Announcement) {
	if ann.SenderID == out.Channel.Identifier {
		return
	}
	if !out.bus.reserveSlot() {
		return
	}
	item := ann.Item
	out.Channel.Strand.Post(func() {
		raw, err := wire.EncodePayload(&payload.Addr{Entries: []payload.NetAddr{payload.NewNetAddrFromItem(item)}})
		if err != nil {
			return
		}
		out.Send(wire.Address, raw)
	})
}
