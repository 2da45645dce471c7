package mailbox

import (
	"sync"
	"time"

	"github.com/bspgraph/bspgraph/wire"
)

// cell is one (channel_id, progress) FIFO: written by the event loop
// goroutine, read by exactly one worker goroutine (its owning LocalMailbox).
// Independence (I3) falls out of giving every tag its own mutex/cond pair --
// a slow consumer on one tag never takes the lock another tag needs.
type cell struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue []*wire.BinStream

	// expectSenders is the number of distinct sending processes the tag
	// must hear InboundComplete from before it is considered drained;
	// -1 means not yet known (no completion seen yet).
	expectSenders int
	gotSenders    int
	complete      bool
}

func newCell() *cell {
	c := &cell{expectSenders: -1}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *cell) pushPayload(bin *wire.BinStream) {
	c.mu.Lock()
	c.queue = append(c.queue, bin)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// queueLen reports how many payloads are pending right now, for the
// mailbox queue depth gauge.
func (c *cell) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *cell) pushComplete(numSenderProcesses int) {
	c.mu.Lock()
	c.expectSenders = numSenderProcesses
	c.gotSenders++
	if c.gotSenders >= c.expectSenders {
		c.complete = true
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// ready reports whether a payload is queued right now.
func (c *cell) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// done reports whether the tag is fully drained: complete and empty.
func (c *cell) done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete && len(c.queue) == 0
}

// poll blocks until a payload is available or the tag is drained; returns
// true iff a payload is available (call recv next).
func (c *cell) poll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.complete {
		c.cond.Wait()
	}
	return len(c.queue) > 0
}

// pollWithTimeout bounds the wait; returns false if the deadline passes
// with no payload.
func (c *cell) pollWithTimeout(d time.Duration) bool {
	var timedOut bool

	timer := time.AfterFunc(d, func() {
		c.mu.Lock()
		timedOut = true
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.complete && !timedOut {
		c.cond.Wait()
	}
	return len(c.queue) > 0
}

// recv dequeues the next payload; must only be called after poll (or a
// timed/non-blocking variant) returned true.
func (c *cell) recv() *wire.BinStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	bin := c.queue[0]
	c.queue = c.queue[1:]
	return bin
}
