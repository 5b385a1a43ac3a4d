package session

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netstrand/p2pnode/internal/race"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
)

// ManualConfig carries the fixed peer list of spec.md section 4.7's
// closed-list "session_manual" variant: addresses the operator named
// explicitly, outside the hosts pool, that the session keeps
// connected indefinitely with its own retry loop.
type ManualConfig struct {
	Config
	Peers         []p2paddr.Authority
	DialTimeout   time.Duration
	RetryInterval time.Duration
}

// manualFirstConnect is the per-peer outcome fed into the Quality race
// that picks which configured peer answered with the most capable
// negotiated protocol version on its first connection attempt.
type manualFirstConnect struct {
	addr    p2paddr.Authority
	version uint32
}

// Manual maintains a persistent connection to a fixed set of
// operator-specified authorities, bypassing hosts reservation
// entirely: these addresses are never taken from or returned to the
// pool, since spec.md section 4.6's reservation semantics only govern
// candidates hosts itself offers up.
type Manual struct {
	Base
	cfg  ManualConfig
	done chan struct{}
	once sync.Once
}

// NewManual builds a Manual session. Call Start to begin connecting.
func NewManual(cfg ManualConfig) *Manual {
	m := &Manual{Base: newBase(cfg.Config), cfg: cfg, done: make(chan struct{})}
	m.Box.Set(m)
	return m
}

// Start launches one maintenance goroutine per configured peer.
// race.Quality observes each peer's first connection outcome and
// logs whichever negotiated the highest protocol version, once all
// configured peers have resolved their first attempt (spec.md section
// 4.5, "race_quality... keeps the best completion").
func (m *Manual) Start() {
	if len(m.cfg.Peers) == 0 {
		return
	}
	quality := race.NewQuality[manualFirstConnect](len(m.cfg.Peers),
		func(a, b manualFirstConnect) bool { return a.version > b.version },
		func(best manualFirstConnect) {
			m.cfg.Log.Info("manual peers established",
				zap.String("best_peer", best.addr.String()),
				zap.Uint32("negotiated_version", best.version))
		},
	)
	for _, addr := range m.cfg.Peers {
		go m.maintain(addr, quality)
	}
}

func (m *Manual) maintain(addr p2paddr.Authority, quality *race.Quality[manualFirstConnect]) {
	var reportOnce sync.Once
	report := func(version uint32) { reportOnce.Do(func() { quality.Complete(manualFirstConnect{addr: addr, version: version}) }) }

	for {
		select {
		case <-m.done:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", addr.String(), m.cfg.DialTimeout)
		if err != nil {
			report(0)
			if !m.sleep() {
				return
			}
			continue
		}

		ch := m.createChannel(conn, true, addr)
		stopped := make(chan struct{})
		ch.OnStop(func(neterr.Code) { close(stopped) })

		m.startHandshake(ch, addr, func(ch *channel.Channel) {
			m.AttachProtocols(ch)
			report(ch.Negotiation().PeerVersion)
		}, func(neterr.Code) {
			report(0)
		})

		select {
		case <-stopped:
		case <-m.done:
			return
		}
		if !m.sleep() {
			return
		}
	}
}

// sleep waits RetryInterval before the next dial attempt, returning
// false if the session was stopped first.
func (m *Manual) sleep() bool {
	select {
	case <-m.done:
		return false
	case <-time.After(m.cfg.RetryInterval):
		return true
	}
}

// AttachProtocols satisfies Session.
func (m *Manual) AttachProtocols(ch *channel.Channel) {
	m.attachCommon(ch)
}

// Stop halts every maintenance loop and tears down every channel.
func (m *Manual) Stop() {
	m.once.Do(func() { close(m.done) })
	m.Base.Stop()
}
