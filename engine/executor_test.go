package engine_test

import (
	"context"
	"testing"

	"github.com/bspgraph/bspgraph/channel"
	"github.com/bspgraph/bspgraph/engine"
	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/objlist"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

type node struct {
	id   int
	sum  int64
	done bool
}

func (n *node) ID() int { return n.id }

func intHash(k int) uint64 { return uint64(k) }

var intCodec = channel.Codec[int]{
	Push: func(s *wire.BinStream, v int) { s.PushInt64(int64(v)) },
	Pop:  func(s *wire.BinStream) int { return int(s.PopInt64()) },
}

var i64Codec = channel.Codec[int64]{
	Push: func(s *wire.BinStream, v int64) { s.PushInt64(v) },
	Pop:  func(s *wire.BinStream) int64 { return s.PopInt64() },
}

type fakeTransport struct{}

func (fakeTransport) SendPayload(peerPid int, dstTid, cid, progress uint32, bin *wire.BinStream) error {
	return nil
}
func (fakeTransport) SendComplete(peerPid int, cid, progress uint32, numSenderProcesses int) error {
	return nil
}

func twoWorkerCluster() (*mailbox.EventLoop, *winfo.WorkerInfo, *hashring.HashRing) {
	wi := winfo.New()
	wi.SetProcID(0)
	wi.SetNumProcesses(1)
	wi.SetNumWorkers(2)
	wi.AddProc(0, "localhost")
	hr := hashring.New()
	for i := 0; i < 2; i++ {
		_ = wi.AddWorker(0, i, i)
		hr.Insert(i)
	}
	loop := mailbox.NewEventLoop(0, func(uint32) int { return 0 }, fakeTransport{})
	go loop.Run()
	return loop, wi, hr
}

// TestListExecuteRoundMessages runs one list_execute superstep across two
// workers each owning one node, ping-ponging a PushChannel message, and
// checks both that the message was delivered and the body ran once per
// live (non-deleted) object.
func TestListExecuteRoundMessages(t *testing.T) {
	loop, wi, hr := twoWorkerCluster()
	defer loop.Stop()

	list0 := objlist.New[int, *node]()
	list1 := objlist.New[int, *node]()
	n0 := &node{id: 0}
	n1 := &node{id: 4}
	list0.AddObject(n0)
	list1.AddObject(n1)

	newNode := func(k int) *node { return &node{id: k} }

	pc0 := channel.NewPushChannel[int, int64, *node](1, 0, 0, wi, loop.Mailbox(0), hr, list0, list0, newNode, intHash, intCodec, i64Codec)
	pc1 := channel.NewPushChannel[int, int64, *node](1, 1, 1, wi, loop.Mailbox(1), hr, list1, list1, newNode, intHash, intCodec, i64Codec)

	store0 := engine.NewChannelStore()
	store0.Register(pc0)
	store1 := engine.NewChannelStore()
	store1.Register(pc1)

	// Push before the first superstep; its flush phase sends the message,
	// and the second superstep's poll_and_distribute is what picks it up
	// (a message pushed during iteration i is only visible to the peer's
	// execute body starting at iteration i+1).
	pc0.Push(7, 4)
	pc1.Push(9, 0)

	done := make(chan struct{})
	go func() {
		engine.ListExecute[int, *node](store1, list1, func(v *node) {
			for _, m := range pc1.Get(v) {
				v.sum += m
			}
			v.done = true
		}, 2)
		close(done)
	}()
	engine.ListExecute[int, *node](store0, list0, func(v *node) {
		for _, m := range pc0.Get(v) {
			v.sum += m
		}
		v.done = true
	}, 2)
	<-done

	if !n0.done || !n1.done {
		t.Fatalf("execute body did not run on both nodes")
	}
	if n0.sum != 9 {
		t.Fatalf("node 0 sum = %d, want 9", n0.sum)
	}
	if n1.sum != 7 {
		t.Fatalf("node 1 sum = %d, want 7", n1.sum)
	}
}

// TestListExecuteSkipsDeleted confirms the per-object loop skips objects
// marked deleted without calling execute on them.
func TestListExecuteSkipsDeleted(t *testing.T) {
	loop, wi, hr := twoWorkerCluster()
	defer loop.Stop()

	list0 := objlist.New[int, *node]()
	a := &node{id: 0}
	b := &node{id: 1}
	list0.AddObject(a)
	list0.AddObject(b)
	list0.DeleteObject(b)

	newNode := func(k int) *node { return &node{id: k} }
	pc0 := channel.NewPushChannel[int, int64, *node](2, 0, 0, wi, loop.Mailbox(0), hr, list0, list0, newNode, intHash, intCodec, i64Codec)
	store0 := engine.NewChannelStore()
	store0.Register(pc0)

	var ran []int
	engine.ListExecute[int, *node](store0, list0, func(v *node) {
		ran = append(ran, v.id)
	}, 1)

	if len(ran) != 1 || ran[0] != 0 {
		t.Fatalf("ran = %v, want [0] (deleted node 1 must be skipped)", ran)
	}
}

// TestRunConcurrentPropagatesError checks the errgroup fan-out surfaces a
// failure from any one of the concurrently run steps.
func TestRunConcurrentPropagatesError(t *testing.T) {
	errBoom := context.Canceled
	err := engine.RunConcurrent(context.Background(),
		func() error { return nil },
		func() error { return errBoom },
		func() error { return nil },
	)
	if err != errBoom {
		t.Fatalf("RunConcurrent error = %v, want %v", err, errBoom)
	}
}
