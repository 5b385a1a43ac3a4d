package async

import "sync"

// Strand is a serializing overlay over a Pool: tasks posted to a strand
// never run concurrently with each other, though consecutive tasks may
// execute on different pool workers. It is the Go-native stand-in for the
// asio strand referenced throughout spec.md section 9 ("Strand as a
// language-native concept") — the contract that matters is serialization
// with async capability, not the specific primitive.
type Strand struct {
	pool *Pool

	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool
}

// NewStrand creates a strand that schedules its drain loop onto pool.
func NewStrand(pool *Pool) *Strand {
	return &Strand{pool: pool}
}

// Post enqueues task for serialized execution on the strand. Post is a
// no-op once the strand has been stopped.
//
// Dispatch is intentionally identical to Post in this port: Go has no
// cheap, portable way for a function to learn which goroutine last drained
// a given strand's queue, so "run inline if already on the strand" is
// collapsed to "always post". This preserves every ordering and
// at-most-one-concurrent-execution guarantee spec.md section 5 requires;
// it only ever adds one extra scheduling hop, never reorders or drops work.
func (s *Strand) Post(task func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, task)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.pool.run(s.drain)
}

// Dispatch posts task to the strand. See Post's doc comment for why this
// is not distinguished from Post in the Go port.
func (s *Strand) Dispatch(task func()) {
	s.Post(task)
}

func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}

// Stop prevents further tasks from being posted. Tasks already queued
// continue to drain in order; Stop does not wait for that drain to
// finish (callers that need the strand quiescent should post a final
// task and wait on a channel it closes).
func (s *Strand) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
