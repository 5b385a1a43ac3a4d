package race

import (
	"sync"

	"github.com/netstrand/p2pnode/pkg/neterr"
)

// Unity requires all Total completions to carry neterr.Success; finish
// fires exactly once, with the first non-success code observed or
// Success if every completion succeeded. Unlike Speed, a single failure
// does not short-circuit delivery of the remaining completions, only
// the finish verdict: finish still waits for all Total arrivals unless
// failFast is set.
type Unity struct {
	total    int
	failFast bool
	finish   func(neterr.Code)

	mu       sync.Mutex
	done     int
	code     neterr.Code
	codeSet  bool
	finished bool
}

// NewUnity configures a race_unity<Total> race. When failFast is true,
// finish fires immediately on the first failure rather than waiting for
// the remaining completions.
func NewUnity(total int, failFast bool, finish func(neterr.Code)) *Unity {
	return &Unity{total: total, failFast: failFast, finish: finish}
}

// Complete records one of the Total expected completions.
func (r *Unity) Complete(code neterr.Code) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.done++
	if !r.codeSet || (code != neterr.Success && r.code == neterr.Success) {
		r.code = code
		r.codeSet = true
	}

	finishNow := r.done >= r.total
	if r.failFast && code != neterr.Success {
		finishNow = true
	}
	var result neterr.Code
	if finishNow {
		r.finished = true
		if r.codeSet {
			result = r.code
		} else {
			result = neterr.Success
		}
	}
	r.mu.Unlock()

	if finishNow {
		r.finish(result)
	}
}
