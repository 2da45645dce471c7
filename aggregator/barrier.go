package aggregator

import "sync"

// KBarrier is a reusable barrier whose participant count is supplied at
// call time rather than fixed at construction: the same KBarrier can gate
// a round of N local workers one superstep and a different N the next,
// which a fixed-capacity primitive (sync.WaitGroup, a pre-sized semaphore)
// cannot do without being rebuilt every round. Generation-counted in the
// same shape as combiner.ShuffleCombiner's rendezvous: the first N-1
// callers of a generation block on a condition variable until the Nth
// arrival flips the generation and wakes everyone at once.
type KBarrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	count      int
	generation int
}

// NewKBarrier returns a barrier ready for its first generation.
func NewKBarrier() *KBarrier {
	b := &KBarrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until n calls to Wait (with this same n) have arrived, then
// releases all of them together and advances to the next generation.
func (b *KBarrier) Wait(n int) {
	b.mu.Lock()
	gen := b.generation
	b.count++
	if b.count == n {
		b.count = 0
		b.generation++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for b.generation == gen {
		b.cond.Wait()
	}
	b.mu.Unlock()
}
