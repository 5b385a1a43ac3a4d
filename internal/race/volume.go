package race

import "sync"

// Volume tallies completions against two thresholds: sufficient fires
// once when the running count first reaches required, complete fires
// once when the running count reaches total (required <= total).
// Either callback may be nil.
type Volume struct {
	total      int
	required   int
	sufficient func(int)
	complete   func(int)

	mu   sync.Mutex
	done int
}

// NewVolume configures a race_volume<required, total> race.
func NewVolume(total, required int, sufficient, complete func(int)) *Volume {
	return &Volume{total: total, required: required, sufficient: sufficient, complete: complete}
}

// Complete records one arrival.
func (r *Volume) Complete() {
	r.mu.Lock()
	r.done++
	count := r.done
	fireSufficient := count == r.required && r.sufficient != nil
	fireComplete := count == r.total && r.complete != nil
	r.mu.Unlock()

	if fireSufficient {
		r.sufficient(count)
	}
	if fireComplete {
		r.complete(count)
	}
}
