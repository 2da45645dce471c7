// Package mailbox is the synchronization core of the engine: per-worker
// inbound queues keyed by (channel_id, progress), a single event-loop
// goroutine multiplexing them against one TCP endpoint per process, and the
// cluster-wide send_complete gather that tells a receiver "nothing more is
// coming" for a tag.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package mailbox

import (
	"sync"
	"time"

	"github.com/bspgraph/bspgraph/cmn/debug"
	"github.com/bspgraph/bspgraph/wire"
)

// LocalMailbox is owned by exactly one worker goroutine: it is written by
// the event loop (enqueue inbound payloads, record completions) and read
// by its owner only. One mutex+cond per tag, so a slow consumer on one
// (channel_id, progress) never blocks another (I3).
type LocalMailbox struct {
	tid  uint32
	loop *EventLoop

	mu    sync.Mutex
	cells map[Tag]*cell
}

func newLocalMailbox(tid uint32, loop *EventLoop) *LocalMailbox {
	return &LocalMailbox{tid: tid, loop: loop, cells: map[Tag]*cell{}}
}

func (m *LocalMailbox) cellFor(tag Tag) *cell {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[tag]
	if !ok {
		c = newCell()
		m.cells[tag] = c
	}
	return c
}

// PruneDone discards every cell that is fully drained (done): a tag is
// never revisited once its progress number has passed, so a drained cell
// only ever occupies memory afterward. Meant to be called periodically by
// a housekeeping job rather than after every recv, since a cell can go
// from not-done to done behind its owner's back (a late SendComplete) at
// any time.
func (m *LocalMailbox) PruneDone() (pruned int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tag, c := range m.cells {
		if c.done() {
			delete(m.cells, tag)
			pruned++
		}
	}
	return pruned
}

// Poll blocks until (cid, p) has a payload ready or is fully drained;
// returns true iff a payload is available.
func (m *LocalMailbox) Poll(cid, progress uint32) bool {
	return m.cellFor(Tag{cid, progress}).poll()
}

// PollSet blocks until any of tags has a payload, or all of them are
// drained; returns the index of a ready tag and true, or (-1, false). Each
// tag is watched by its own goroutine blocked in that tag's poll() -- the
// per-tag cond var already gives independence (I3), this just fans the
// first wakeup back to the caller. Watchers for tags that lose the race
// exit on their own once their cell resolves; they touch no shared state
// besides the result channel.
func (m *LocalMailbox) PollSet(tags []Tag) (int, bool) {
	debug.Assert(len(tags) > 0, "mailbox: empty poll set")
	type result struct {
		i  int
		ok bool
	}
	results := make(chan result, len(tags))
	for i, tag := range tags {
		i, c := i, m.cellFor(tag)
		go func() { results <- result{i, c.poll()} }()
	}

	remaining := len(tags)
	for remaining > 0 {
		r := <-results
		remaining--
		if r.ok {
			return r.i, true
		}
	}
	return -1, false
}

// PollNonBlock never blocks; true iff a payload is queued right now.
func (m *LocalMailbox) PollNonBlock(cid, progress uint32) bool {
	return m.cellFor(Tag{cid, progress}).ready()
}

// PollWithTimeout bounds the wait by d.
func (m *LocalMailbox) PollWithTimeout(cid, progress uint32, d time.Duration) bool {
	return m.cellFor(Tag{cid, progress}).pollWithTimeout(d)
}

// Recv dequeues the next payload for (cid, p). Must be called only after a
// Poll variant returned true for that tag.
func (m *LocalMailbox) Recv(cid, progress uint32) *wire.BinStream {
	return m.cellFor(Tag{cid, progress}).recv()
}

// Done reports whether (cid, p) has been fully drained: complete and empty.
func (m *LocalMailbox) Done(cid, progress uint32) bool {
	return m.cellFor(Tag{cid, progress}).done()
}

// Send hands bin off to the event loop for delivery to dstTid, local or
// remote. Non-blocking: the handoff is a channel send to the loop's event
// queue.
func (m *LocalMailbox) Send(dstTid, cid, progress uint32, bin *wire.BinStream) {
	m.loop.post(OutboundPayload{DstTid: dstTid, ChannelID: cid, Progress: progress, Bin: bin})
}

// SendComplete announces that this worker will send nothing further on
// (cid, progress). senderGlobalTids and receiverGlobalTids are the
// channel's full participant sets; the event loop resolves them to process
// ids and gathers across local senders before notifying receivers.
func (m *LocalMailbox) SendComplete(cid, progress uint32, senderGlobalTids, receiverGlobalTids []uint32) {
	localSenders := 0
	for _, tid := range senderGlobalTids {
		if m.loop.tidToPid(tid) == m.loop.procID {
			localSenders++
		}
	}
	senderPids := distinctPids(m.loop, senderGlobalTids)
	peerPids := distinctPids(m.loop, receiverGlobalTids)
	m.loop.post(OutboundComplete{
		ChannelID:          cid,
		Progress:           progress,
		NumLocalSenders:    localSenders,
		NumSenderProcesses: len(senderPids),
		PeerProcessIDs:     peerPids,
	})
}

func distinctPids(loop *EventLoop, tids []uint32) []int {
	seen := map[int]bool{}
	var out []int
	for _, tid := range tids {
		pid := loop.tidToPid(tid)
		if !seen[pid] {
			seen[pid] = true
			out = append(out, pid)
		}
	}
	return out
}
