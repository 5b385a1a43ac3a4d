package session

import (
	"net"
	"sync"
	"time"

	"github.com/netstrand/p2pnode/internal/race"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/reporter"
)

// OutboundConfig carries the outreach tunables of spec.md section 6:
// the number of connector slots to keep filled and, per slot, the
// number of candidates dialed in parallel (connect_batch_size).
type OutboundConfig struct {
	Config
	Slots       int
	BatchSize   int
	DialTimeout time.Duration
}

// Outbound drives a fixed pool of connector slots (spec.md section
// 4.7's "outbound session"). Each slot reserves an authority from
// hosts, dials it -- racing BatchSize candidates against each other
// with race.Speed so the slot fills with whichever answers first --
// runs the handshake, and on failure releases the reservation with a
// taint before looping.
type Outbound struct {
	Base
	cfg  OutboundConfig
	done chan struct{}
	once sync.Once
}

// NewOutbound builds an Outbound session. Call Start to begin filling
// slots.
func NewOutbound(cfg OutboundConfig) *Outbound {
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	o := &Outbound{Base: newBase(cfg.Config), cfg: cfg, done: make(chan struct{})}
	o.Box.Set(o)
	return o
}

// Start launches one goroutine per connector slot; each runs until
// Stop is called, continuously reserving, dialing, and handshaking a
// replacement peer whenever its current channel goes away.
func (o *Outbound) Start() {
	for i := 0; i < o.cfg.Slots; i++ {
		go o.fillSlot()
	}
}

func (o *Outbound) fillSlot() {
	for {
		select {
		case <-o.done:
			return
		default:
		}

		conn, item, ok := o.dialBatch()
		if !ok {
			select {
			case <-o.done:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		o.cfg.Report.Report(reporter.Outbound3, 1)
		ch := o.createChannel(conn, true, item.Authority)
		stopped := make(chan struct{})
		ch.OnStop(func(neterr.Code) { close(stopped) })

		o.startHandshake(ch, item.Authority, func(ch *channel.Channel) {
			o.cfg.Hosts.Restore(item)
			o.AttachProtocols(ch)
		}, func(code neterr.Code) {
			o.cfg.Hosts.Release(item.Authority)
		})

		select {
		case <-stopped:
		case <-o.done:
			return
		}
	}
}

// dialResult is one candidate's outcome inside a dial batch.
type dialResult struct {
	item p2paddr.Item
	conn net.Conn
}

// dialBatch reserves up to BatchSize candidates from hosts and dials
// them concurrently, using race.Speed<1, N> to take whichever connects
// first; every other successful dial is closed and its reservation
// released, matching spec.md section 6's connect_batch_size contract
// ("parallel dial attempts per outbound slot").
func (o *Outbound) dialBatch() (net.Conn, p2paddr.Item, bool) {
	var items []p2paddr.Item
	for i := 0; i < o.cfg.BatchSize; i++ {
		item, code := o.cfg.Hosts.Take()
		if code != neterr.Success {
			break
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, p2paddr.Item{}, false
	}

	var mu sync.Mutex
	var results []dialResult
	var winner *dialResult
	finished := make(chan struct{})

	speed := race.NewSpeed[dialResult](len(items), 1,
		func(r dialResult) {
			mu.Lock()
			w := r
			winner = &w
			mu.Unlock()
		},
		func(neterr.Code) { close(finished) },
	)

	for _, item := range items {
		go func(item p2paddr.Item) {
			conn, err := net.DialTimeout("tcp", item.Authority.String(), o.cfg.DialTimeout)
			if err != nil {
				o.cfg.Hosts.Release(item.Authority)
				speed.Complete(neterr.ConnectFailed, dialResult{item: item})
				return
			}
			mu.Lock()
			results = append(results, dialResult{item: item, conn: conn})
			mu.Unlock()
			speed.Complete(neterr.Success, dialResult{item: item, conn: conn})
		}(item)
	}

	<-finished

	mu.Lock()
	defer mu.Unlock()
	for _, r := range results {
		if winner != nil && r.conn == winner.conn {
			continue
		}
		r.conn.Close()
		o.cfg.Hosts.Release(r.item.Authority)
	}
	if winner == nil {
		return nil, p2paddr.Item{}, false
	}
	return winner.conn, winner.item, true
}

// AttachProtocols satisfies Session: an outbound channel gets the
// shared steady-state set (ping, reject, address in/out).
func (o *Outbound) AttachProtocols(ch *channel.Channel) {
	o.attachCommon(ch)
}

// onChannelStopped satisfies StopAware: nothing further to release
// here, since dialBatch's winning reservation is already restored
// before AttachProtocols runs and fillSlot's loop naturally reopens
// the slot once stopped fires.
func (o *Outbound) onChannelStopped(*channel.Channel, neterr.Code) {}

// Stop halts every slot's retry loop and tears down every channel the
// session owns.
func (o *Outbound) Stop() {
	o.once.Do(func() { close(o.done) })
	o.Base.Stop()
}
