package diag

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Outcome is one work item's delivery: either a result or a rejection.
// A rejected item is fatal for that item only; a deterministic seed+config
// should never fail non-deterministically, so the pool never retries.
type Outcome struct {
	Item   WorkItem
	Tag    int
	Result *DiagnoseResult
	Err    error
}

type poolJob struct {
	item WorkItem
	tag  int
	out  chan<- Outcome
}

// Pool is a fixed-size set of execution units draining a shared job queue.
//
// Isolation invariant: a run's world, agent state, analyzers, and every
// cache they own are constructed inside the unit per item and discarded with
// it. Nothing in this package (or in sim) holds run state at package scope,
// so parallel runs stay reproducible per seed.
type Pool struct {
	size int
	jobs chan poolJob
	g    *errgroup.Group

	mu     sync.Mutex
	closed bool
}

var (
	activeMu   sync.Mutex
	activePool *Pool
)

// GetOrCreatePool returns the process-wide pool, creating it on first use.
// Requesting a different concurrency tears the old pool down and builds a
// fresh one rather than resizing in place: a brief cost that avoids
// partially-drained-pool races.
func GetOrCreatePool(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	activeMu.Lock()
	defer activeMu.Unlock()
	if activePool != nil {
		if activePool.size == concurrency {
			return activePool
		}
		activePool.shutdown()
	}
	activePool = newPool(concurrency)
	return activePool
}

// DestroyPool tears down the process-wide pool if one exists. Safe to call
// on every exit path.
func DestroyPool() {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activePool != nil {
		activePool.shutdown()
		activePool = nil
	}
}

func newPool(size int) *Pool {
	p := &Pool{
		size: size,
		jobs: make(chan poolJob),
		g:    &errgroup.Group{},
	}
	for i := 0; i < size; i++ {
		p.g.Go(p.worker)
	}
	return p
}

func (p *Pool) worker() error {
	for jb := range p.jobs {
		jb.out <- execute(jb.item, jb.tag)
	}
	return nil
}

// execute runs one item, converting a panic anywhere inside the run into a
// rejection so one broken run cannot take down its worker or the batch.
func execute(item WorkItem, tag int) (out Outcome) {
	out = Outcome{Item: item, Tag: tag}
	defer func() {
		if r := recover(); r != nil {
			out.Result = nil
			out.Err = fmt.Errorf("run seed=%d panicked: %v", item.Seed, r)
		}
	}()
	res, err := Run(item.Config, item.Seed, DefaultAnalyzers())
	out.Result = res
	out.Err = err
	return out
}

// Size returns the pool's concurrency.
func (p *Pool) Size() int { return p.size }

// Submit queues one work item and returns a buffered channel that will
// deliver exactly one Outcome. The channel never blocks the worker.
func (p *Pool) Submit(item WorkItem) <-chan Outcome {
	out := make(chan Outcome, 1)
	p.SubmitTo(item, 0, out)
	return out
}

// SubmitTo queues one work item with a caller tag, delivering to a shared
// channel. The channel must have capacity for every outstanding item so
// workers never block on delivery.
func (p *Pool) SubmitTo(item WorkItem, tag int, out chan<- Outcome) {
	// The lock is held across the send so shutdown cannot close the queue
	// underneath an in-flight submission.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		out <- Outcome{Item: item, Tag: tag, Err: fmt.Errorf("pool is shut down")}
		return
	}
	p.jobs <- poolJob{item: item, tag: tag, out: out}
}

// shutdown closes the queue and waits for in-flight runs to finish.
func (p *Pool) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.jobs)
	_ = p.g.Wait() // workers only return nil; run failures travel in Outcomes
}
