package smp

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/taigrr/tessel/internal/logging"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("smp: pool closed")

// Pool is a fixed group of workers. The goroutine calling Run takes part
// as worker 0; workers 1..n-1 are long-lived goroutines locked to their OS
// threads.
type Pool struct {
	n       int
	jobs    []chan func(int)
	barrier *Barrier

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	closed bool
}

// NewPool starts a pool of n workers including the caller. n <= 0 selects
// runtime.NumCPU. With pin set, worker i is bound to CPU i mod NumCPU.
func NewPool(n int, pin bool) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	p := &Pool{
		n:       n,
		jobs:    make([]chan func(int), n),
		barrier: NewBarrier(n),
		ctx:     ctx,
		cancel:  cancel,
		group:   g,
	}
	for i := 1; i < n; i++ {
		p.jobs[i] = make(chan func(int), 1)
		g.Go(func() error {
			return p.worker(i, pin)
		})
	}
	return p
}

// Size returns the number of workers, counting the caller.
func (p *Pool) Size() int { return p.n }

// Run executes fn on every worker, with the calling goroutine acting as
// worker 0, and returns once all of them have finished. Run must not be
// called concurrently.
func (p *Pool) Run(fn func(worker int)) error {
	if p.closed {
		return ErrClosed
	}
	for i := 1; i < p.n; i++ {
		p.jobs[i] <- fn
	}
	fn(0)
	p.barrier.Wait()
	return nil
}

// Close stops the workers and waits for them to exit.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	return p.group.Wait()
}

func (p *Pool) worker(id int, pin bool) error {
	// The thread is discarded when this goroutine returns without
	// unlocking, so the affinity mask never leaks to other goroutines.
	runtime.LockOSThread()
	if pin {
		cpu := id % runtime.NumCPU()
		if err := pinToCPU(cpu); err != nil {
			logging.Get().Warn("smp: pin worker", "worker", id, "cpu", cpu, "error", err)
		}
	}
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case fn := <-p.jobs[id]:
			fn(id)
			p.barrier.Wait()
		}
	}
}
