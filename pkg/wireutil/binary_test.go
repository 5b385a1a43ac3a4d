package wireutil

import (
	"bytes"
	"testing"
)

func TestVarUintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000}
	for _, want := range cases {
		buf := &bytes.Buffer{}
		w := &Writer{W: buf}
		w.VarUint(want)
		if w.Err != nil {
			t.Fatalf("encode %d: %v", want, w.Err)
		}

		r := &Reader{R: buf}
		have := r.VarUint()
		if r.Err != nil {
			t.Fatalf("decode %d: %v", want, r.Err)
		}
		if have != want {
			t.Errorf("want %d have %d", want, have)
		}
	}
}

func TestVarBytesRoundTrip(t *testing.T) {
	want := []byte("the quick brown fox")

	buf := &bytes.Buffer{}
	w := &Writer{W: buf}
	w.VarBytes(want)
	if w.Err != nil {
		t.Fatal(w.Err)
	}

	r := &Reader{R: buf}
	have := r.VarBytes(0)
	if r.Err != nil {
		t.Fatal(r.Err)
	}
	if !bytes.Equal(have, want) {
		t.Errorf("want %q have %q", want, have)
	}
}

func TestVarBytesExceedsMaximum(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{W: buf}
	w.VarBytes(make([]byte, 10))

	r := &Reader{R: buf}
	r.VarBytes(5)
	if r.Err == nil {
		t.Error("expected error for over-maximum VarBytes")
	}
}

func TestWriterSticksToFirstError(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{W: buf}
	w.Err = bytes.ErrTooLarge
	w.Write(uint32(1))
	if w.Err != bytes.ErrTooLarge {
		t.Errorf("expected first error preserved, got %v", w.Err)
	}
}
