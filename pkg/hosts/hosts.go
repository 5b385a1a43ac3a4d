// Package hosts implements the address book of spec.md section 4.6: a
// fixed-capacity, disk-persistent pool of candidate peer addresses with
// reservation semantics. Grounded on the teacher's Addrmgr
// (add/connected/failed bookkeeping keyed by address, a mutex-guarded
// map) generalized from its three-bucket good/new/bad split to the
// spec's single bounded-pool-plus-reservation model; the API shape
// (Add/Take/Restore/Store) mirrors the teacher's AddAddrs/
// ConnectionComplete/Failed.
package hosts

import (
	"bufio"
	"os"
	"sort"
	"sync"

	"github.com/netstrand/p2pnode/pkg/neterr"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
)

// Hosts is a fixed-capacity circular buffer of p2paddr.Item plus a set of
// currently-reserved authorities. All mutators are expected to run on the
// strand net owns for hosts (spec.md section 5); Hosts itself only locks
// to keep its internal bookkeeping consistent, matching the "no
// recursive locking... exclusive to intra-strand helpers" contract.
type Hosts struct {
	mu       sync.Mutex
	capacity int
	self     p2paddr.Authority
	banned   []p2paddr.Authority

	order []p2paddr.Authority // FIFO eviction order, oldest first
	items map[[16]byte]p2paddr.Item
	keyOf map[[16]byte]p2paddr.Authority // items key -> authority used as key (ip+port folded)

	reserved map[[16]byte]bool
}

// Config configures a new Hosts pool.
type Config struct {
	Capacity int
	Self     p2paddr.Authority
	Banned   []p2paddr.Authority
}

func key(a p2paddr.Authority) [16]byte {
	b := a.Bytes()
	// Fold the port into the low two bytes of the key so two authorities
	// that differ only by port are distinct pool entries; CIDR is not
	// part of identity (spec.md section 3 treats it as a match
	// qualifier, not an identity component for exact pool membership).
	b[14] ^= byte(a.Port >> 8)
	b[15] ^= byte(a.Port)
	return b
}

// New creates an empty pool.
func New(cfg Config) *Hosts {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	return &Hosts{
		capacity: cfg.Capacity,
		self:     cfg.Self,
		banned:   cfg.Banned,
		items:    make(map[[16]byte]p2paddr.Item),
		reserved: make(map[[16]byte]bool),
	}
}

func (h *Hosts) blocked(a p2paddr.Authority) bool {
	if h.self != (p2paddr.Authority{}) && a.Equal(h.self) {
		return true
	}
	for _, b := range h.banned {
		if a.Equal(b) {
			return true
		}
	}
	return false
}

// Blocked reports whether a matches this node's own address or a
// configured ban entry. Exported so ingest-side filters (address
// gossip) can drop a candidate before it ever reaches Add, not only
// silently skip it once it is already there.
func (h *Hosts) Blocked(a p2paddr.Authority) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blocked(a)
}

// Add inserts item, or updates the timestamp and services of an existing
// entry with the same authority. Inserting past capacity evicts the
// oldest entry (spec.md section 4.6, FIFO-modulo-freshness: eviction
// only ever removes the longest-resident entry, never a reserved one
// unless it is the only candidate).
func (h *Hosts) Add(item p2paddr.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(item)
}

func (h *Hosts) addLocked(item p2paddr.Item) {
	if h.blocked(item.Authority) {
		return
	}
	k := key(item.Authority)
	if existing, ok := h.items[k]; ok {
		if item.Timestamp > existing.Timestamp {
			existing.Timestamp = item.Timestamp
			existing.Services = item.Services
			h.items[k] = existing
		}
		return
	}
	for len(h.order) >= h.capacity {
		h.evictOldestLocked()
	}
	h.items[k] = item
	h.order = append(h.order, item.Authority)
}

func (h *Hosts) evictOldestLocked() {
	for i, a := range h.order {
		k := key(a)
		if h.reserved[k] {
			continue
		}
		h.order = append(h.order[:i], h.order[i+1:]...)
		delete(h.items, k)
		return
	}
	// Every entry is reserved; drop the oldest anyway rather than grow
	// unboundedly past capacity.
	if len(h.order) > 0 {
		a := h.order[0]
		h.order = h.order[1:]
		delete(h.items, key(a))
	}
}

// Store bulk-adds items, dropping any whose authority matches self or a
// banned entry. Used by address-gossip ingestion (spec.md section
// 4.8.3).
func (h *Hosts) Store(items []p2paddr.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, item := range items {
		h.addLocked(item)
	}
}

// Take returns an unreserved, most-recently-active entry and marks it
// reserved. Ties broken lexicographically on authority bytes (spec.md
// section 4.6).
func (h *Hosts) Take() (p2paddr.Item, neterr.Code) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var candidates []p2paddr.Item
	for k, item := range h.items {
		if h.reserved[k] {
			continue
		}
		candidates = append(candidates, item)
	}
	if len(candidates) == 0 {
		return p2paddr.Item{}, neterr.AddressPoolEmpty
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Timestamp != candidates[j].Timestamp {
			return candidates[i].Timestamp > candidates[j].Timestamp
		}
		bi, bj := candidates[i].Authority.Bytes(), candidates[j].Authority.Bytes()
		for n := range bi {
			if bi[n] != bj[n] {
				return bi[n] < bj[n]
			}
		}
		return false
	})
	chosen := candidates[0]
	h.reserved[key(chosen.Authority)] = true
	return chosen, neterr.Success
}

// Restore releases item's reservation and bumps its timestamp, as after
// a successful dial.
func (h *Hosts) Restore(item p2paddr.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := key(item.Authority)
	delete(h.reserved, k)
	if existing, ok := h.items[k]; ok {
		if item.Timestamp > existing.Timestamp {
			existing.Timestamp = item.Timestamp
		}
		existing.Services = item.Services
		h.items[k] = existing
	}
}

// Release drops a's reservation without touching its timestamp, used
// when a dial attempt fails and the entry should be free for another
// session to try (spec.md section 4.7, "release the reservation with a
// taint").
func (h *Hosts) Release(a p2paddr.Authority) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.reserved, key(a))
}

// Count reports the number of entries currently in the pool.
func (h *Hosts) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Reserved reports the number of entries currently reserved.
func (h *Hosts) Reserved() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reserved)
}

// Snapshot returns every entry currently in the pool, reserved or not,
// for read-only use (address-out sampling, persistence).
func (h *Hosts) Snapshot() []p2paddr.Item {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]p2paddr.Item, 0, len(h.items))
	for _, a := range h.order {
		if item, ok := h.items[key(a)]; ok {
			out = append(out, item)
		}
	}
	return out
}

// SaveFile persists every unreserved entry to path, one authority per
// line in textual form, LF-separated (spec.md section 6), overwriting
// any existing file atomically via a temp-file rename.
func (h *Hosts) SaveFile(path string) error {
	h.mu.Lock()
	lines := make([]string, 0, len(h.order))
	for _, a := range h.order {
		k := key(a)
		if h.reserved[k] {
			continue
		}
		lines = append(lines, a.String())
	}
	h.mu.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile reads authorities from path, one per line, skipping lines
// that fail to parse (spec.md section 6). Entries are inserted with a
// zero timestamp and NodeNone services; Take's freshness tie-break
// still functions, it simply treats every loaded entry as equally
// stale until refreshed.
func (h *Hosts) LoadFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		a, err := p2paddr.ParseAuthority(line)
		if err != nil {
			continue
		}
		h.Add(p2paddr.Item{Authority: a})
	}
	return scanner.Err()
}
