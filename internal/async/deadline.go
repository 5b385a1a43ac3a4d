package async

import (
	"sync"
	"time"

	"github.com/netstrand/p2pnode/pkg/neterr"
)

// Deadline is a one-shot, strand-scoped cancellable timer (spec.md
// section 4.2). Starting a Deadline while a previous arm is still
// pending cancels the previous arm (its handler runs with
// OperationCancelled) before the new one is armed.
type Deadline struct {
	strand *Strand

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	pending func(neterr.Code)
}

// NewDeadline creates a Deadline whose handlers are always invoked on strand.
func NewDeadline(strand *Strand) *Deadline {
	return &Deadline{strand: strand}
}

// Start arms the deadline for duration. handler runs on the owning strand
// with Success on natural expiry, or with OperationCancelled if Stop is
// called, or if Start is called again, before it fires.
func (d *Deadline) Start(duration time.Duration, handler func(neterr.Code)) {
	d.mu.Lock()
	d.cancelPendingLocked()
	d.gen++
	gen := d.gen
	d.pending = handler
	d.timer = time.AfterFunc(duration, func() { d.fire(gen) })
	d.mu.Unlock()
}

func (d *Deadline) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	handler := d.pending
	d.pending = nil
	d.mu.Unlock()
	if handler != nil {
		d.strand.Post(func() { handler(neterr.Success) })
	}
}

// Stop cancels any pending arm; its handler, if any, runs with
// OperationCancelled. Stop is idempotent.
func (d *Deadline) Stop() {
	d.mu.Lock()
	d.cancelPendingLocked()
	d.gen++
	d.mu.Unlock()
}

// cancelPendingLocked must be called with d.mu held.
func (d *Deadline) cancelPendingLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.pending != nil {
		handler := d.pending
		d.pending = nil
		d.strand.Post(func() { handler(neterr.OperationCancelled) })
	}
}
