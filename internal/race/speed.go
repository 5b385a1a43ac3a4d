// Package race implements the completion-coordination primitives of
// spec.md section 4.5: speed (first K of N), quality (best valued
// result), volume (count threshold), unity (all must succeed), and all
// (invoke on close). Every race type is strand-bound and single-use:
// each bound callback fires at most once, and finish fires exactly once.
package race

import (
	"sync"

	"github.com/netstrand/p2pnode/pkg/neterr"
)

// Speed invokes success with the payload of each of the first Required
// (of Total) completions that carry neterr.Success, in completion order;
// the Total-th completion invokes finish with an aggregate code: Success
// if any completion succeeded, else the first non-success code observed.
type Speed[T any] struct {
	total    int
	required int
	success  func(T)
	finish   func(neterr.Code)

	mu          sync.Mutex
	succeeded   int
	done        int
	firstErr    neterr.Code
	firstErrSet bool
	finished    bool
}

// NewSpeed configures a race_speed<required, total> per spec.md section 4.5.
func NewSpeed[T any](total, required int, success func(T), finish func(neterr.Code)) *Speed[T] {
	return &Speed[T]{total: total, required: required, success: success, finish: finish}
}

// Complete records one of the Total expected completions.
func (r *Speed[T]) Complete(code neterr.Code, value T) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.done++

	var invokeSuccess bool
	if code == neterr.Success && r.succeeded < r.required {
		r.succeeded++
		invokeSuccess = true
	} else if code != neterr.Success && !r.firstErrSet {
		r.firstErrSet = true
		r.firstErr = code
	}

	finishNow := r.done >= r.total
	var finishCode neterr.Code
	if finishNow {
		r.finished = true
		if r.succeeded > 0 || !r.firstErrSet {
			finishCode = neterr.Success
		} else {
			finishCode = r.firstErr
		}
	}
	r.mu.Unlock()

	if invokeSuccess {
		r.success(value)
	}
	if finishNow {
		r.finish(finishCode)
	}
}
