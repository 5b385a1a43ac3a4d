package session

import (
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/netstrand/p2pnode/internal/race"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/reporter"
)

// InboundConfig carries the listener tunables of spec.md section 4.7's
// "inbound session": one acceptor per configured bind, plus the cap
// on simultaneously accepted channels.
type InboundConfig struct {
	Config
	Binds      []string
	MaxInbound int
}

// Inbound drives one acceptor per configured bind address, handing
// each accepted socket through the same create-channel/handshake path
// Outbound uses, rejecting self-connects and over-capacity accepts.
type Inbound struct {
	Base
	cfg InboundConfig

	mu        sync.Mutex
	listeners []net.Listener
}

// NewInbound builds an Inbound session. Call Start to begin listening.
func NewInbound(cfg InboundConfig) *Inbound {
	in := &Inbound{Base: newBase(cfg.Config), cfg: cfg}
	in.Box.Set(in)
	return in
}

// Start binds every configured address concurrently. race.Volume
// tracks the bind attempts: sufficient fires once the first listener
// is up (so a caller can treat the session as "live" without waiting
// for every bind to resolve), complete fires once every bind has been
// attempted. Returns neterr.BindFailed only if every bind failed.
func (in *Inbound) Start() neterr.Code {
	if len(in.cfg.Binds) == 0 {
		return neterr.Success
	}

	done := make(chan struct{})
	vol := race.NewVolume(len(in.cfg.Binds), 1,
		func(int) { in.cfg.Log.Info("inbound session ready", zap.Int("live_binds", 1)) },
		func(int) { close(done) },
	)

	for _, addr := range in.cfg.Binds {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			in.cfg.Log.Warn("inbound bind failed", zap.String("addr", addr), zap.Error(err))
			vol.Complete()
			continue
		}
		in.mu.Lock()
		in.listeners = append(in.listeners, ln)
		in.mu.Unlock()
		vol.Complete()
		go in.acceptLoop(ln)
	}

	<-done
	in.mu.Lock()
	ok := len(in.listeners) > 0
	in.mu.Unlock()
	if !ok {
		return neterr.BindFailed
	}
	return neterr.Success
}

func (in *Inbound) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if in.Count() >= in.cfg.MaxInbound {
			conn.Close()
			continue
		}

		authority := authorityFromConn(conn)
		in.cfg.Report.Report(reporter.Outbound3, 1)
		ch := in.createChannel(conn, false, authority)
		in.startHandshake(ch, authority, in.AttachProtocols, func(neterr.Code) {})
	}
}

// AttachProtocols satisfies Session.
func (in *Inbound) AttachProtocols(ch *channel.Channel) {
	in.attachCommon(ch)
}

// Addrs reports the bound address of every listener that came up,
// mainly useful for "listen on :0" tests and operator introspection.
func (in *Inbound) Addrs() []net.Addr {
	in.mu.Lock()
	defer in.mu.Unlock()
	addrs := make([]net.Addr, len(in.listeners))
	for i, ln := range in.listeners {
		addrs[i] = ln.Addr()
	}
	return addrs
}

// Stop closes every listener and tears down every accepted channel.
func (in *Inbound) Stop() {
	in.mu.Lock()
	listeners := in.listeners
	in.listeners = nil
	in.mu.Unlock()
	for _, ln := range listeners {
		ln.Close()
	}
	in.Base.Stop()
}

// authorityFromConn extracts the peer authority from an accepted
// connection's remote address.
func authorityFromConn(conn net.Conn) p2paddr.Authority {
	host, port, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return p2paddr.Authority{}
	}
	var p uint16
	for _, c := range port {
		if c < '0' || c > '9' {
			p = 0
			break
		}
		p = p*10 + uint16(c-'0')
	}
	a, err := p2paddr.NewAuthority(host, p)
	if err != nil {
		return p2paddr.Authority{}
	}
	return a
}
