package netio

import (
	"net"
	"testing"
	"time"

	"github.com/netstrand/p2pnode/internal/async"
	"github.com/netstrand/p2pnode/pkg/neterr"
)

func newPair(t *testing.T) (*Socket, *Socket) {
	t.Helper()
	a, b := net.Pipe()
	pool := async.NewPool(4)
	return New(a, async.NewStrand(pool)), New(b, async.NewStrand(pool))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	client, server := newPair(t)
	defer client.Stop()
	defer server.Stop()

	done := make(chan neterr.Code, 1)
	if code := client.WriteExactly([]byte("hello"), func(c neterr.Code) { done <- c }); code != neterr.Success {
		t.Fatalf("WriteExactly returned %v", code)
	}

	buf := make([]byte, 5)
	readDone := make(chan string, 1)
	server.ReadExactly(buf, func(c neterr.Code, b []byte) {
		if c != neterr.Success {
			t.Errorf("read code = %v", c)
		}
		readDone <- string(b)
	})

	select {
	case got := <-readDone:
		if got != "hello" {
			t.Errorf("got %q, want hello", got)
		}
	case <-time.After(time.Second):
		t.Fatal("read never completed")
	}
	<-done
}

func TestSecondReadWhileInFlightIsRejected(t *testing.T) {
	client, server := newPair(t)
	defer client.Stop()
	defer server.Stop()

	buf1 := make([]byte, 5)
	server.ReadExactly(buf1, func(neterr.Code, []byte) {})

	buf2 := make([]byte, 5)
	code := server.ReadExactly(buf2, func(neterr.Code, []byte) {})
	if code != neterr.ResourceExhausted {
		t.Errorf("code = %v, want ResourceExhausted", code)
	}
}

func TestStopUnblocksInFlightRead(t *testing.T) {
	client, server := newPair(t)
	defer client.Stop()

	done := make(chan neterr.Code, 1)
	buf := make([]byte, 5)
	server.ReadExactly(buf, func(c neterr.Code, _ []byte) { done <- c })

	server.Stop()

	select {
	case c := <-done:
		if c == neterr.Success {
			t.Error("expected a failure code after Stop, got Success")
		}
	case <-time.After(time.Second):
		t.Fatal("stop never unblocked the read")
	}
}
