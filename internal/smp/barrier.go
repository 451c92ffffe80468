// Package smp runs frame work on a fixed set of goroutines, each locked to
// its own OS thread and, where the platform allows, pinned to one CPU.
package smp

import "sync"

// Barrier is a reusable rendezvous for a fixed number of parties. The last
// party to arrive resets the count and advances the generation, releasing
// the others. Wait has no timeout.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	count   int
	gen     uint64
}

// NewBarrier returns a barrier for n parties.
func NewBarrier(n int) *Barrier {
	b := &Barrier{parties: max(n, 1)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Parties returns the number of parties the barrier waits for.
func (b *Barrier) Parties() int { return b.parties }

// Wait blocks until all parties have called Wait for the current
// generation.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.count++
	if b.count == b.parties {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}

// Generation returns how many times the barrier has released.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}
