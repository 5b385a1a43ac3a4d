// Package async implements the executor/strand and deadline primitives of
// spec.md section 4.1 and 4.2: a fixed-size worker pool, and strands that
// serialize work over it without pinning a strand to any one goroutine.
package async

// Pool is a fixed-size worker group. It bounds the number of strand
// drain-loops running concurrently at any instant; individual tasks may
// still run on any of its worker goroutines over time, matching the
// "workers freely move between strands" contract of spec.md section 5.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool with the given number of workers. workers must
// be at least 1.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: make(chan struct{}, workers)}
}

// run acquires a worker slot and executes f on a fresh goroutine, freeing
// the slot when f returns.
func (p *Pool) run(f func()) {
	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem }()
		f()
	}()
}
