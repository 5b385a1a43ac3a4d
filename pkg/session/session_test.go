package session

import (
	"net"
	"time"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/pkg/channel"
	"github.com/netstrand/p2pnode/pkg/hosts"
	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
	"github.com/netstrand/p2pnode/pkg/protocol/handshake"
	"github.com/netstrand/p2pnode/pkg/wire"
)

// testSessionConfig builds a minimal, fast-timing Config shared by every
// session variant's tests.
func testSessionConfig(pool *async.Pool, h *hosts.Hosts) Config {
	return Config{
		Magic:             wire.MagicMainNet,
		HandshakeTimeout:  time.Second,
		ChannelInactivity: time.Hour,
		ChannelExpiration: time.Hour,
		ProtocolMinimum:   70001,
		ProtocolMaximum:   70016,
		ServicesOffered:   p2paddr.NodeNetwork,
		RelayTransactions: true,
		UserAgent:         "/p2pnode:test/",
		StartHeight:       func() uint32 { return 0 },
		PingInterval:      time.Hour,
		ResponseTimeout:   time.Hour,
		Pool:              pool,
		Hosts:             h,
	}
}

func peerHandshakeConfig() handshake.Config {
	return handshake.Config{
		ProtocolMinimum:   70001,
		ProtocolMaximum:   70016,
		ServicesOffered:   p2paddr.NodeNetwork,
		RelayTransactions: true,
		UserAgent:         "/peer:test/",
		Timeout:           time.Second,
	}
}

// serveHandshake accepts one connection on ln, completes the server side
// of a handshake over it, and reports the outcome on result.
func serveHandshake(ln net.Listener, pool *async.Pool, result chan<- error) {
	conn, err := ln.Accept()
	if err != nil {
		result <- err
		return
	}
	ch := channel.New(conn, channel.Config{Identifier: 9001, Outbound: false, Magic: wire.MagicMainNet, Pool: pool})
	ch.Resume()

	cfg := peerHandshakeConfig()
	cfg.OnComplete = func(*channel.Channel) { result <- nil }
	cfg.OnFail = func(code neterr.Code) { result <- code }
	handshake.New(ch, cfg).Start()
}

// dialHandshake dials addr, completes the client side of a handshake
// over the new connection, and reports the outcome on result.
func dialHandshake(addr string, pool *async.Pool, result chan<- error) {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		result <- err
		return
	}
	ch := channel.New(conn, channel.Config{Identifier: 9002, Outbound: true, Magic: wire.MagicMainNet, Pool: pool})
	ch.Resume()

	cfg := peerHandshakeConfig()
	cfg.OnComplete = func(*channel.Channel) { result <- nil }
	cfg.OnFail = func(code neterr.Code) { result <- code }
	handshake.New(ch, cfg).Start()
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
