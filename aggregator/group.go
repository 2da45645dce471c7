package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/stats"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

// aggregatorChannelID is the one reserved channel id every Group's sync
// round is tagged with. A sync round multiplexes every active aggregator's
// partial into a single pair of BinStreams per destination process, so
// unlike the four channel.Channel kinds it needs no per-instance id: one
// constant, disjoint from any id an ObjList registers, is enough.
const aggregatorChannelID uint32 = 0xa663_0001

// Group coordinates one Sync round across every local worker's Factory in
// a process, and across every process's Group via a single designated
// local worker -- localID 0 -- acting as that process's network delegate.
// Routing the whole process's aggregator traffic through one worker's
// mailbox mirrors how channel_manager.hpp ties a worker's channels to the
// mailbox of whichever worker constructed them; it also means only one
// Factory per process needs a LocalMailbox at all.
type Group struct {
	wi  *winfo.WorkerInfo
	mb0 *mailbox.LocalMailbox

	barrier *KBarrier
	gate    *semaphore.Weighted // bounds concurrent in-flight Sync rounds to one

	mu        sync.Mutex
	factories []*Factory // indexed by local id
	progress  uint32
}

// NewGroup returns a Group for a process with numLocal local workers.
// mb0 must be the LocalMailbox of the worker that will register as local
// id 0 -- the process's aggregator sync delegate.
func NewGroup(wi *winfo.WorkerInfo, mb0 *mailbox.LocalMailbox, numLocal int) *Group {
	return &Group{
		wi:        wi,
		mb0:       mb0,
		barrier:   NewKBarrier(),
		gate:      semaphore.NewWeighted(1),
		factories: make([]*Factory, numLocal),
	}
}

// Factory is a single worker's registry of named Aggregators. Every
// worker in a process creates its own Factory over the same Group; every
// Factory must register the same names (Register calls may happen in any
// order per worker -- leader/center election is keyed by sorted name, not
// registration order).
type Factory struct {
	localID int
	group   *Group

	mu     sync.Mutex
	byName map[string]aggregatorI
}

// NewFactory creates a Factory for local worker localID within group.
func NewFactory(group *Group, localID int) *Factory {
	f := &Factory{localID: localID, group: group, byName: map[string]aggregatorI{}}
	group.mu.Lock()
	group.factories[localID] = f
	group.mu.Unlock()
	return f
}

// Register creates a new Aggregator[V] named name on f. Every worker's
// Factory must register the same set of names for Sync's round-robin
// leader/center election to line up across workers and processes.
func Register[V any](f *Factory, name string, init V, combine func(dst *V, v V), zero func() V, save func(*wire.BinStream, V), load func(*wire.BinStream) V) *Aggregator[V] {
	agg := newAggregator(name, init, combine, zero, save, load)
	f.mu.Lock()
	f.byName[name] = agg
	f.mu.Unlock()
	return agg
}

// Sync runs one two-level reduction round. Every local worker in the
// Group must call Sync exactly once per round; the call blocks until all
// of them have arrived, the Group's local id 0 worker does the reduction
// (intra-process merge, then an inter-process all-to-all if there is more
// than one process), and every worker's copy of every active aggregator
// holds the reduced value before any of them returns. Aggregators with
// ResetEachIteration(true) are zeroed immediately after.
func (f *Factory) Sync(ctx context.Context) error {
	numLocal := len(f.group.factories)

	f.group.barrier.Wait(numLocal)

	var syncErr error
	if f.localID == 0 {
		syncErr = f.group.runDelegateRound(ctx)
	}

	// Second phase of the same barrier: non-delegates have nothing to do
	// here, so their call immediately becomes "wait for the delegate,"
	// since the delegate only reaches this Wait once runDelegateRound has
	// finished writing the reduced value back into every Factory.
	f.group.barrier.Wait(numLocal)

	return syncErr
}

// sortedNames returns every registered aggregator name, sorted -- the
// canonical, worker-order-independent index round-robin leader and center
// election is keyed by.
func (g *Group) sortedNames() []string {
	seen := map[string]bool{}
	for _, f := range g.factories {
		if f == nil {
			continue
		}
		f.mu.Lock()
		for name := range f.byName {
			seen[name] = true
		}
		f.mu.Unlock()
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// leaderFor resolves name's intra-process leader (the Factory whose copy
// becomes the authoritative accumulator this round) for name at index i.
func (g *Group) leaderFor(i int, name string) aggregatorI {
	numLocal := len(g.factories)
	leaderLocal := i % numLocal
	f := g.factories[leaderLocal]
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byName[name]
}

// runDelegateRound performs the whole reduction for one Sync round: intra-
// process merge into a per-name leader, then (if there is more than one
// process) an inter-process all-to-all through mb0, then writes the final
// value back into every local Factory's copy of every name.
func (g *Group) runDelegateRound(ctx context.Context) error {
	if err := g.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.gate.Release(1)

	start := time.Now()
	defer func() { stats.ObserveAggregatorSync(time.Since(start)) }()

	names := g.sortedNames()
	numLocal := len(g.factories)

	// intra-process leg: each name's elected leader folds every local
	// worker's current local value (including its own) into its scratch
	// fold, starting from zero -- never from whatever was left over in
	// local/synced, so a never-reset aggregator's ever-growing local
	// doesn't get double-counted round over round.
	leaders := make([]aggregatorI, len(names))
	for i, name := range names {
		leader := g.leaderFor(i, name)
		leaders[i] = leader
		if leader == nil || !leader.isActive() {
			continue
		}
		leader.foldStart()
		for lid := 0; lid < numLocal; lid++ {
			other := g.factories[lid]
			other.mu.Lock()
			peer := other.byName[name]
			other.mu.Unlock()
			if peer != nil {
				leader.foldLocalFrom(peer)
			}
		}
	}

	numProc := g.wi.NumProcesses()
	if numProc > 1 {
		if err := g.syncAcrossProcesses(names, leaders); err != nil {
			return err
		}
	} else {
		for i := range names {
			leader := leaders[i]
			if leader == nil || !leader.isActive() {
				continue
			}
			leader.commitLeader()
		}
	}

	// hand the final synced value back to every other local worker's copy.
	for i, name := range names {
		leader := leaders[i]
		if leader == nil || !leader.isActive() {
			continue
		}
		for lid := 0; lid < numLocal; lid++ {
			if lid == i%numLocal {
				continue
			}
			other := g.factories[lid]
			other.mu.Lock()
			peer := other.byName[name]
			other.mu.Unlock()
			if peer != nil {
				peer.adoptSynced(leader)
			}
		}
	}
	return nil
}

// syncAcrossProcesses is the inter-process leg: every process's leader
// value for name i is sent to center(i) = i % numProc. Every process
// always sends to (and receives from) every other process, even an empty
// payload, so each side's expected sender count is the fixed numProc-1 --
// the same unconditional-send-every-destination idiom migrate_channel.hpp
// uses, rather than only sending when there happens to be content.
func (g *Group) syncAcrossProcesses(names []string, leaders []aggregatorI) error {
	numProc := g.wi.NumProcesses()
	myProc := g.wi.ProcID()

	leaderGlobalTids := make([]uint32, numProc)
	for p := 0; p < numProc; p++ {
		leaderGlobalTids[p] = uint32(g.wi.LocalToGlobal(p, 0))
	}

	g.progress++
	progressA := g.progress
	g.progress++
	progressB := g.progress

	outbound := make([]*wire.BinStream, numProc)
	for p := 0; p < numProc; p++ {
		if p == myProc {
			continue
		}
		outbound[p] = wire.New()
	}

	var mineIdx []int
	for i, name := range names {
		leader := leaders[i]
		if leader == nil || !leader.isActive() {
			continue
		}
		center := i % numProc
		if center == myProc {
			mineIdx = append(mineIdx, i)
			continue
		}
		outbound[center].PushString(name)
		leader.pushFold(outbound[center])
	}

	for p := 0; p < numProc; p++ {
		if p == myProc {
			continue
		}
		g.mb0.Send(leaderGlobalTids[p], aggregatorChannelID, progressA, outbound[p])
	}
	g.mb0.SendComplete(aggregatorChannelID, progressA, leaderGlobalTids, leaderGlobalTids)

	byName := make(map[string]aggregatorI, len(names))
	for i, name := range names {
		byName[name] = leaders[i]
	}

	for g.mb0.Poll(aggregatorChannelID, progressA) {
		bin := g.mb0.Recv(aggregatorChannelID, progressA)
		for bin.Size() != 0 {
			name := bin.PopString()
			agg := byName[name]
			agg.foldWireInto(bin)
		}
	}

	// every name this process is the center for now has its fully-combined
	// fold; commit it, then broadcast it back to every other process.
	for _, i := range mineIdx {
		leaders[i].commitLeader()
	}

	final := wire.New()
	for _, i := range mineIdx {
		final.PushString(names[i])
		leaders[i].pushFold(final)
	}
	payload := append([]byte(nil), final.Bytes()...)

	for p := 0; p < numProc; p++ {
		if p == myProc {
			continue
		}
		buf := wire.New()
		buf.PushBytes(payload)
		g.mb0.Send(leaderGlobalTids[p], aggregatorChannelID, progressB, buf)
	}
	g.mb0.SendComplete(aggregatorChannelID, progressB, leaderGlobalTids, leaderGlobalTids)

	for g.mb0.Poll(aggregatorChannelID, progressB) {
		bin := g.mb0.Recv(aggregatorChannelID, progressB)
		for bin.Size() != 0 {
			name := bin.PopString()
			agg := byName[name]
			agg.adoptSyncedFromWire(bin)
		}
	}
	return nil
}
