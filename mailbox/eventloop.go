package mailbox

import (
	"sync"

	"github.com/bspgraph/bspgraph/cmn/debug"
	"github.com/bspgraph/bspgraph/cmn/nlog"
	"github.com/bspgraph/bspgraph/stats"
	"github.com/bspgraph/bspgraph/wire"
)

// Transport is the data-plane collaborator EventLoop dials out through for
// any destination that resolves to a remote process. CentralReceiver
// implements the inbound half; Transport implementations live in
// transport.go, built on fasthttp long-lived streams.
type Transport interface {
	SendPayload(peerPid int, dstTid, cid, progress uint32, bin *wire.BinStream) error
	SendComplete(peerPid int, cid, progress uint32, numSenderProcesses int) error
}

// EventLoop is the single multiplexer goroutine per process: one inbound
// event channel fed by every local worker (Send/SendComplete) and by the
// CentralReceiver (inbound wire frames), one outbound path per peer
// process via Transport.
type EventLoop struct {
	procID    int
	tidToPid  func(tid uint32) int
	transport Transport

	events chan event

	mu        sync.Mutex
	mailboxes map[uint32]*LocalMailbox // local tid -> mailbox
	outbound  map[Tag]*outboundAgg

	done chan struct{}
}

type outboundAgg struct {
	expected           int
	got                int
	numSenderProcesses int
	peerPids           map[int]bool
}

// NewEventLoop constructs an event loop for procID. tidToPid resolves any
// global tid to its owning process id -- normally winfo.WorkerInfo.ProcIDOf.
func NewEventLoop(procID int, tidToPid func(uint32) int, transport Transport) *EventLoop {
	return &EventLoop{
		procID:    procID,
		tidToPid:  tidToPid,
		transport: transport,
		events:    make(chan event, 4096),
		mailboxes: map[uint32]*LocalMailbox{},
		outbound:  map[Tag]*outboundAgg{},
		done:      make(chan struct{}),
	}
}

// Mailbox returns (creating if needed) the LocalMailbox for a local worker
// tid, registering it so cluster-wide InboundComplete events reach it.
func (l *EventLoop) Mailbox(tid uint32) *LocalMailbox {
	l.mu.Lock()
	defer l.mu.Unlock()
	mb, ok := l.mailboxes[tid]
	if !ok {
		mb = newLocalMailbox(tid, l)
		l.mailboxes[tid] = mb
	}
	return mb
}

func (l *EventLoop) post(ev event) { l.events <- ev }

// DeliverInboundPayload is called by CentralReceiver for a frame arrived
// off the wire.
func (l *EventLoop) DeliverInboundPayload(srcTid, dstTid, cid, progress uint32, bin *wire.BinStream) {
	l.post(inboundPayloadToLocal{dstTid: dstTid, p: InboundPayload{SrcTid: srcTid, ChannelID: cid, Progress: progress, Bin: bin}})
}

// DeliverInboundComplete is called by CentralReceiver for a completion
// frame arrived off the wire.
func (l *EventLoop) DeliverInboundComplete(cid, progress uint32, numSenderProcesses int) {
	l.post(InboundComplete{ChannelID: cid, Progress: progress, NumSenderProcesses: numSenderProcesses})
}

// inboundPayloadToLocal carries the resolved destination alongside the
// payload event -- CentralReceiver already knows dstTid from the frame, so
// this skips a second tidToPid round trip the worker-originated path needs.
type inboundPayloadToLocal struct {
	dstTid uint32
	p      InboundPayload
}

func (inboundPayloadToLocal) isEvent() {}

// Run drives the event loop until Stop is called. Intended to be launched
// as the single event-loop goroutine per process.
func (l *EventLoop) Run() {
	for {
		select {
		case ev := <-l.events:
			l.handle(ev)
		case <-l.done:
			return
		}
	}
}

// Stop ends Run's loop. Safe to call once.
func (l *EventLoop) Stop() { close(l.done) }

func (l *EventLoop) handle(ev event) {
	switch v := ev.(type) {
	case inboundPayloadToLocal:
		l.deliverLocal(v.dstTid, v.p)

	case InboundComplete:
		l.markCompleteOnAll(v.ChannelID, v.Progress, v.NumSenderProcesses)

	case OutboundPayload:
		pid := l.tidToPid(v.DstTid)
		if pid == l.procID {
			l.deliverLocal(v.DstTid, InboundPayload{ChannelID: v.ChannelID, Progress: v.Progress, Bin: v.Bin})
			return
		}
		if err := l.transport.SendPayload(pid, v.DstTid, v.ChannelID, v.Progress, v.Bin); err != nil {
			nlog.Fatalf("mailbox: irrecoverable send error to proc %d: %v", pid, err)
		}

	case OutboundComplete:
		l.gatherOutboundComplete(v)
	}
}

func (l *EventLoop) deliverLocal(dstTid uint32, p InboundPayload) {
	l.mu.Lock()
	mb, ok := l.mailboxes[dstTid]
	l.mu.Unlock()
	debug.Assertf(ok, "mailbox: inbound payload for unregistered local tid %d", dstTid)
	c := mb.cellFor(Tag{p.ChannelID, p.Progress})
	c.pushPayload(p.Bin)
	stats.SetMailboxQueueDepth(p.ChannelID, c.queueLen())
}

func (l *EventLoop) markCompleteOnAll(cid, progress uint32, numSenderProcesses int) {
	l.mu.Lock()
	mailboxes := make([]*LocalMailbox, 0, len(l.mailboxes))
	for _, mb := range l.mailboxes {
		mailboxes = append(mailboxes, mb)
	}
	l.mu.Unlock()
	tag := Tag{cid, progress}
	for _, mb := range mailboxes {
		mb.cellFor(tag).pushComplete(numSenderProcesses)
	}
}

// gatherOutboundComplete accumulates per-tag OutboundComplete events from
// local senders; once every local sender has reported, it fans the
// completion out to every peer process (local delivery included), each as
// one InboundComplete carrying the total number of sending processes.
func (l *EventLoop) gatherOutboundComplete(v OutboundComplete) {
	tag := Tag{v.ChannelID, v.Progress}

	l.mu.Lock()
	agg, ok := l.outbound[tag]
	if !ok {
		agg = &outboundAgg{peerPids: map[int]bool{}}
		l.outbound[tag] = agg
	}
	agg.expected = v.NumLocalSenders
	agg.got++
	agg.numSenderProcesses = v.NumSenderProcesses
	for _, pid := range v.PeerProcessIDs {
		agg.peerPids[pid] = true
	}
	ready := agg.got >= agg.expected
	if ready {
		delete(l.outbound, tag)
	}
	l.mu.Unlock()

	if !ready {
		return
	}
	numSenderProcesses := agg.numSenderProcesses
	for pid := range agg.peerPids {
		if pid == l.procID {
			l.markCompleteOnAll(v.ChannelID, v.Progress, numSenderProcesses)
			continue
		}
		if err := l.transport.SendComplete(pid, v.ChannelID, v.Progress, numSenderProcesses); err != nil {
			nlog.Fatalf("mailbox: irrecoverable send_complete error to proc %d: %v", pid, err)
		}
	}
}
