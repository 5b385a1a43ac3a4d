package hosts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
)

func addr(t *testing.T, s string) p2paddr.Authority {
	t.Helper()
	a, err := p2paddr.ParseAuthority(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return a
}

// TestEvictionScenarioS5 follows spec.md scenario S5: capacity 3, add A,
// B, C with increasing timestamps, then D with a timestamp newer than
// all three. Expected contents: {B, C, D}; Take returns D.
func TestEvictionScenarioS5(t *testing.T) {
	h := New(Config{Capacity: 3})

	h.Add(p2paddr.Item{Authority: addr(t, "10.0.0.1:8333"), Timestamp: 100})
	h.Add(p2paddr.Item{Authority: addr(t, "10.0.0.2:8333"), Timestamp: 200})
	h.Add(p2paddr.Item{Authority: addr(t, "10.0.0.3:8333"), Timestamp: 300})
	h.Add(p2paddr.Item{Authority: addr(t, "10.0.0.4:8333"), Timestamp: 400})

	if got := h.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	item, code := h.Take()
	if code != neterr.Success {
		t.Fatalf("Take() code = %v", code)
	}
	if item.Authority.String() != "10.0.0.4:8333" {
		t.Errorf("Take() = %s, want 10.0.0.4:8333", item.Authority.String())
	}

	for _, want := range []string{"10.0.0.2:8333", "10.0.0.3:8333"} {
		found := false
		for _, it := range h.Snapshot() {
			if it.Authority.String() == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing expected survivor %s", want)
		}
	}
	for _, it := range h.Snapshot() {
		if it.Authority.String() == "10.0.0.1:8333" {
			t.Error("evicted entry 10.0.0.1:8333 still present")
		}
	}
}

func TestTakeReservesAndExcludesUntilRestored(t *testing.T) {
	h := New(Config{Capacity: 4})
	a := addr(t, "10.0.0.1:8333")
	h.Add(p2paddr.Item{Authority: a, Timestamp: 1})

	item, code := h.Take()
	if code != neterr.Success {
		t.Fatalf("first Take() code = %v", code)
	}
	if h.Reserved() != 1 {
		t.Fatalf("Reserved() = %d, want 1", h.Reserved())
	}

	if _, code := h.Take(); code != neterr.AddressPoolEmpty {
		t.Fatalf("second Take() code = %v, want AddressPoolEmpty", code)
	}

	h.Restore(item)
	if h.Reserved() != 0 {
		t.Fatalf("Reserved() after Restore = %d, want 0", h.Reserved())
	}
	if _, code := h.Take(); code != neterr.Success {
		t.Fatalf("Take() after Restore code = %v", code)
	}
}

func TestAddUpdatesExistingAuthorityInPlace(t *testing.T) {
	h := New(Config{Capacity: 4})
	a := addr(t, "10.0.0.1:8333")
	h.Add(p2paddr.Item{Authority: a, Timestamp: 1, Services: p2paddr.NodeNetwork})
	h.Add(p2paddr.Item{Authority: a, Timestamp: 2, Services: p2paddr.NodeNetwork | p2paddr.NodeWitness})

	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (duplicate authority must not create a second entry)", h.Count())
	}
	snap := h.Snapshot()
	if snap[0].Timestamp != 2 || snap[0].Services != p2paddr.NodeNetwork|p2paddr.NodeWitness {
		t.Errorf("entry not updated: %+v", snap[0])
	}
}

func TestStoreDropsSelfAndBanned(t *testing.T) {
	self := addr(t, "127.0.0.1:8333")
	banned := addr(t, "192.0.2.1:8333")
	h := New(Config{Capacity: 4, Self: self, Banned: []p2paddr.Authority{banned}})

	h.Store([]p2paddr.Item{
		{Authority: self, Timestamp: 1},
		{Authority: banned, Timestamp: 1},
		{Authority: addr(t, "203.0.113.5:8333"), Timestamp: 1},
	})

	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", h.Count())
	}
}

func TestSaveAndLoadFileRoundTrip(t *testing.T) {
	h := New(Config{Capacity: 4})
	h.Add(p2paddr.Item{Authority: addr(t, "10.0.0.1:8333"), Timestamp: 1})
	h.Add(p2paddr.Item{Authority: addr(t, "10.0.0.2:8333"), Timestamp: 2})

	path := filepath.Join(t.TempDir(), "hosts.dat")
	if err := h.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	h2 := New(Config{Capacity: 4})
	if err := h2.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if h2.Count() != 2 {
		t.Fatalf("Count() after LoadFile = %d, want 2", h2.Count())
	}
}

func TestLoadFileSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.dat")
	content := "10.0.0.1:8333\nnot-an-authority\n10.0.0.2:8333\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h := New(Config{Capacity: 4})
	if err := h.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (malformed line should be skipped)", h.Count())
	}
}

func TestSaveFileExcludesReservedEntries(t *testing.T) {
	h := New(Config{Capacity: 4})
	h.Add(p2paddr.Item{Authority: addr(t, "10.0.0.1:8333"), Timestamp: 1})
	if _, code := h.Take(); code != neterr.Success {
		t.Fatalf("Take() code = %v", code)
	}

	path := filepath.Join(t.TempDir(), "hosts.dat")
	if err := h.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	h2 := New(Config{Capacity: 4})
	if err := h2.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if h2.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 (reserved entry should not persist)", h2.Count())
	}
}
