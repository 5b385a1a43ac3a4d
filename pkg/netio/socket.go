// Package netio wraps a raw TCP connection with the at-most-one-in-flight
// read/write discipline the rest of the networking core depends on, and
// completions delivered back onto a caller-owned strand.
package netio

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/pkg/neterr"
)

// Socket owns one net.Conn. Every ReadExactly/WriteExactly completion is
// posted onto strand, so callers never need their own locking around a
// socket's callbacks.
type Socket struct {
	conn   net.Conn
	strand *async.Strand

	reading int32
	writing int32
	stopped int32
}

// New wraps an already-established connection.
func New(conn net.Conn, strand *async.Strand) *Socket {
	return &Socket{conn: conn, strand: strand}
}

// Dial opens a new outbound connection to addr and wraps it.
func Dial(ctx context.Context, addr string, strand *async.Strand) (*Socket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn, strand), nil
}

// RemoteAddr returns the peer's address, or nil if the socket has no
// live connection.
func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// ReadExactly reads exactly len(buf) bytes, invoking done on the owning
// strand with neterr.Success and buf filled, or a failure code. Returns
// neterr.ResourceExhausted immediately (no goroutine spawned, done not
// called) if a read is already in flight, preserving invariant 1.
func (s *Socket) ReadExactly(buf []byte, done func(neterr.Code, []byte)) neterr.Code {
	if atomic.LoadInt32(&s.stopped) != 0 {
		return neterr.ChannelStopped
	}
	if !atomic.CompareAndSwapInt32(&s.reading, 0, 1) {
		return neterr.ResourceExhausted
	}
	go func() {
		defer atomic.StoreInt32(&s.reading, 0)
		_, err := io.ReadFull(s.conn, buf)
		code := classify(err)
		s.strand.Post(func() { done(code, buf) })
	}()
	return neterr.Success
}

// WriteExactly writes all of buf, invoking done on the owning strand
// with the outcome. Returns neterr.ResourceExhausted immediately if a
// write is already in flight.
func (s *Socket) WriteExactly(buf []byte, done func(neterr.Code)) neterr.Code {
	if atomic.LoadInt32(&s.stopped) != 0 {
		return neterr.ChannelStopped
	}
	if !atomic.CompareAndSwapInt32(&s.writing, 0, 1) {
		return neterr.ResourceExhausted
	}
	go func() {
		defer atomic.StoreInt32(&s.writing, 0)
		_, err := s.conn.Write(buf)
		code := classify(err)
		s.strand.Post(func() { done(code) })
	}()
	return neterr.Success
}

// Stop closes the underlying connection, unblocking any in-flight read
// or write with an I/O error that classify maps to a stop code.
// Idempotent.
func (s *Socket) Stop() {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}
	_ = s.conn.Close()
}

func classify(err error) neterr.Code {
	if err == nil {
		return neterr.Success
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return neterr.OperationTimeout
	}
	return neterr.BadStream
}

// SetDeadline forwards to the underlying connection's deadline, used by
// callers that want the kernel itself to bound a read or write.
func (s *Socket) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}
