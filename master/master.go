package master

import (
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/bspgraph/bspgraph/aggregator"
	"github.com/bspgraph/bspgraph/cmn/nlog"
	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/wire"
)

// Master is the process-wide control endpoint. It tracks which global
// worker ids have joined, answers TYPE_GET_HASH_RING once every worker has
// (blocking the requester's handler goroutine until then, the same
// deferred-reply shape master.cpp gets for free from a ROUTER socket), and
// rendezvouses TYPE_STOP_ASYNC_REQ/TYPE_START_ASYNC_REQ across the process
// count via a reusable KBarrier, one call per process's delegate worker.
type Master struct {
	expectedWorkers   int
	expectedProcesses int

	mu       sync.Mutex
	cond     *sync.Cond
	ring     *hashring.HashRing
	joined   map[int]bool
	finished map[int]bool

	stopBarrier  *aggregator.KBarrier
	startBarrier *aggregator.KBarrier

	server *fasthttp.Server
}

// New returns a Master expecting exactly expectedWorkers TYPE_JOIN calls
// (across expectedProcesses processes) before TYPE_GET_HASH_RING unblocks.
func New(expectedWorkers, expectedProcesses int) *Master {
	m := &Master{
		expectedWorkers:   expectedWorkers,
		expectedProcesses: expectedProcesses,
		ring:              hashring.New(),
		joined:            map[int]bool{},
		finished:          map[int]bool{},
		stopBarrier:       aggregator.NewKBarrier(),
		startBarrier:      aggregator.NewKBarrier(),
	}
	m.cond = sync.NewCond(&m.mu)
	m.server = &fasthttp.Server{
		Handler: m.handle,
		Name:    "bspgraph-master",
	}
	return m
}

// ListenAndServe blocks serving control-plane requests on addr (host:port)
// until the process exits or the listener errs.
func (m *Master) ListenAndServe(addr string) error {
	nlog.Infof("master: listening on %s", addr)
	if err := m.server.ListenAndServe(addr); err != nil {
		nlog.Fatalf("master: failed to bind %s: %v", addr, err)
	}
	return nil
}

// Shutdown stops accepting new control-plane connections.
func (m *Master) Shutdown() error { return m.server.Shutdown() }

func (m *Master) handle(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != controlPath {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	msgType, body := decodeFrame(wire.FromBytes(ctx.PostBody()))

	var reply *wire.BinStream
	switch msgType {
	case TypeJoin:
		reply = m.onJoin(body)
	case TypeGetHashRing:
		reply = m.onGetHashRing()
	case TypeExit:
		reply = m.onExit(body)
	case TypeStopAsyncReq:
		reply = m.onStopAsync()
	case TypeStartAsyncReq:
		reply = m.onStartAsync()
	default:
		nlog.Warningf("master: unknown control message type 0x%x", msgType)
		reply = encodeFrame(msgType, wire.New())
	}
	ctx.SetBody(reply.Bytes())
}

func (m *Master) onJoin(body *wire.BinStream) *wire.BinStream {
	workerID := int(body.PopUint32())

	m.mu.Lock()
	m.ring.Insert(workerID)
	m.joined[workerID] = true
	n := len(m.joined)
	if n == m.expectedWorkers {
		m.cond.Broadcast()
	}
	m.mu.Unlock()

	nlog.Infof("master: worker %d joined (%d/%d)", workerID, n, m.expectedWorkers)
	return encodeFrame(TypeJoin, wire.New())
}

// onGetHashRing blocks until every expected worker has joined, then
// returns a snapshot of the completed ring -- a requester that arrives
// before quorum simply waits on the same handler invocation instead of
// being queued and replied to out of band, the way pending_hash_ring_requester_id
// deferred a ROUTER reply.
func (m *Master) onGetHashRing() *wire.BinStream {
	m.mu.Lock()
	for len(m.joined) != m.expectedWorkers {
		m.cond.Wait()
	}
	ids := m.ring.Snapshot()
	m.mu.Unlock()

	body := wire.New()
	hashring.NewFrom(ids).MarshalBinStream(body)
	return encodeFrame(TypeGetHashRing, body)
}

func (m *Master) onExit(body *wire.BinStream) *wire.BinStream {
	hostname := body.PopString()
	workerID := int(body.PopUint32())

	m.mu.Lock()
	m.ring.Remove(workerID)
	m.finished[workerID] = true
	done := len(m.finished)
	m.mu.Unlock()

	nlog.Infof("master: worker %d@%s exited (%d/%d)", workerID, hostname, done, m.expectedWorkers)
	if done == m.expectedWorkers {
		nlog.Infof("master: all workers finished")
	}
	return encodeFrame(TypeExit, wire.New())
}

// onStopAsync and onStartAsync rendezvous one call per process (normally
// issued by that process's local id 0 worker, mirroring aggregator.Group's
// own network-delegate convention) through a barrier sized to the process
// count -- every caller's handler goroutine blocks in Wait until all of
// them have arrived, then all return together, exactly the "reply to
// everyone at once" behavior master.cpp got from buffering pending_sync_ids.
func (m *Master) onStopAsync() *wire.BinStream {
	m.stopBarrier.Wait(m.expectedProcesses)
	return encodeFrame(TypeStopAsyncYes, wire.New())
}

func (m *Master) onStartAsync() *wire.BinStream {
	m.startBarrier.Wait(m.expectedProcesses)
	return encodeFrame(TypeStartAsyncYes, wire.New())
}
