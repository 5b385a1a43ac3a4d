package session

import (
	"net"
	"sync"
	"time"

	"github.com/netstrand/p2pnode/internal/race"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/wire"
	"github.com/netstrand/p2pnode/pkg/wire/payload"
)

// SeedConfig carries the one-shot bootstrap dial list of spec.md
// section 4.7's "seed session", extended (session_batch, see
// DESIGN.md) to connect to every configured seed concurrently rather
// than just one.
type SeedConfig struct {
	Config
	Seeds       []p2paddr.Authority
	DialTimeout time.Duration
	// AddrTimeout bounds how long a seed dial waits for the peer's
	// address payload before giving up on that one seed.
	AddrTimeout time.Duration
	// OnDone runs exactly once, after every seed dial has finished
	// (address received, rejected, or timed out).
	OnDone func()
}

// Seed is a one-shot outbound session: it connects to every configured
// seed address, requests and ingests one address dump from each, then
// disconnects. Unlike Outbound it never retries or keeps channels
// alive past that single exchange.
type Seed struct {
	Base
	cfg SeedConfig

	mu   sync.Mutex
	done map[uint64]chan neterr.Code
}

// NewSeed builds a Seed session. Call Start to begin dialing.
func NewSeed(cfg SeedConfig) *Seed {
	s := &Seed{Base: newBase(cfg.Config), cfg: cfg, done: make(map[uint64]chan neterr.Code)}
	s.Box.Set(s)
	return s
}

// Start dials every seed concurrently. race.Unity, configured with
// failFast false, waits for every seed's outcome (success or failure)
// before declaring the bootstrap finished and invoking OnDone exactly
// once (spec.md section 4.5, "race_unity... all must complete").
func (s *Seed) Start() {
	if len(s.cfg.Seeds) == 0 {
		if s.cfg.OnDone != nil {
			s.cfg.OnDone()
		}
		return
	}
	unity := race.NewUnity(len(s.cfg.Seeds), false, func(neterr.Code) {
		if s.cfg.OnDone != nil {
			s.cfg.OnDone()
		}
	})
	for _, addr := range s.cfg.Seeds {
		go s.run(addr, unity)
	}
}

func (s *Seed) run(addr p2paddr.Authority, unity *race.Unity) {
	conn, err := net.DialTimeout("tcp", addr.String(), s.cfg.DialTimeout)
	if err != nil {
		unity.Complete(neterr.ConnectFailed)
		return
	}

	ch := s.createChannel(conn, true, addr)
	outcome := make(chan neterr.Code, 1)
	s.mu.Lock()
	s.done[ch.Identifier] = outcome
	s.mu.Unlock()

	s.startHandshake(ch, addr, s.AttachProtocols, func(code neterr.Code) {
		select {
		case outcome <- code:
		default:
		}
	})

	var result neterr.Code
	select {
	case result = <-outcome:
	case <-time.After(s.cfg.AddrTimeout):
		result = neterr.OperationTimeout
	}

	s.mu.Lock()
	delete(s.done, ch.Identifier)
	s.mu.Unlock()

	ch.Stop(neterr.ChannelStopped)
	unity.Complete(result)
}

// AttachProtocols satisfies Session: a seed channel asks for addresses
// immediately and reports the outcome on the pending channel run
// created for it, instead of attaching the steady-state protocol set
// Outbound/Inbound use.
func (s *Seed) AttachProtocols(ch *channel.Channel) {
	s.mu.Lock()
	outcome := s.done[ch.Identifier]
	s.mu.Unlock()

	ch.Subscribe(wire.Address, func(code neterr.Code, msg wire.Message) bool {
		if code.IsStop() {
			return false
		}
		var addr payload.Addr
		if err := wire.DecodePayload(&addr, msg.Payload); err == nil {
			items := make([]p2paddr.Item, len(addr.Entries))
			for i, e := range addr.Entries {
				items[i] = e.ToItem()
			}
			s.cfg.Hosts.Store(items)
		}
		if outcome != nil {
			select {
			case outcome <- neterr.Success:
			default:
			}
		}
		return true
	})

	raw, _ := wire.EncodePayload(payload.GetAddr{})
	ch.Send(wire.GetAddress, raw)
}
