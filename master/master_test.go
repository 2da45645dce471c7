package master

import (
	"sync"
	"testing"
	"time"

	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/wire"
)

// These tests exercise Master's handler logic directly, the same way
// mailbox's fakeTransport avoids a real socket. The request/reply framing
// (encodeFrame/decodeFrame) is checked by TestFrameRoundTrip; the fasthttp
// listener is covered by inspection, not a live network round trip.

func TestFrameRoundTrip(t *testing.T) {
	body := wire.New()
	body.PushString("hello")
	body.PushUint32(42)

	f := encodeFrame(TypeJoin, body)
	msgType, decoded := decodeFrame(wire.FromBytes(f.Bytes()))
	if msgType != TypeJoin {
		t.Fatalf("msgType = %#x, want %#x", msgType, TypeJoin)
	}
	if got := decoded.PopString(); got != "hello" {
		t.Fatalf("string = %q, want %q", got, "hello")
	}
	if got := decoded.PopUint32(); got != 42 {
		t.Fatalf("uint32 = %d, want 42", got)
	}
}

func TestJoinThenGetHashRing(t *testing.T) {
	m := New(3, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	var ringBytes *wire.BinStream
	go func() {
		defer wg.Done()
		ringBytes = m.onGetHashRing()
	}()

	// give the getter a chance to block before quorum is reached.
	time.Sleep(10 * time.Millisecond)

	for _, id := range []int{0, 1, 2} {
		body := wire.New()
		body.PushUint32(uint32(id))
		m.onJoin(body)
	}

	wg.Wait()
	_, payload := decodeFrame(wire.FromBytes(ringBytes.Bytes()))
	ring := newRingFromWire(payload)
	for _, id := range []int{0, 1, 2} {
		if !contains(ring, id) {
			t.Fatalf("ring missing worker %d", id)
		}
	}
}

func TestExitTracksCompletion(t *testing.T) {
	m := New(2, 1)
	for _, id := range []int{0, 1} {
		body := wire.New()
		body.PushUint32(uint32(id))
		m.onJoin(body)
	}

	body := wire.New()
	body.PushString("host-a")
	body.PushUint32(0)
	m.onExit(body)

	m.mu.Lock()
	done := len(m.finished)
	m.mu.Unlock()
	if done != 1 {
		t.Fatalf("finished = %d, want 1", done)
	}
}

func TestStopAsyncRendezvousAllProcesses(t *testing.T) {
	const numProc = 3
	m := New(numProc, numProc)

	var wg sync.WaitGroup
	wg.Add(numProc)
	for i := 0; i < numProc; i++ {
		go func() {
			defer wg.Done()
			m.onStopAsync()
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onStopAsync did not release all callers")
	}
}

func newRingFromWire(r *wire.BinStream) []int {
	hr := hashring.New()
	hr.UnmarshalBinStream(r)
	return hr.Snapshot()
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
