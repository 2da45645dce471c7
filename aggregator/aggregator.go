// Package aggregator implements named, cluster-wide reduction cells: every
// worker keeps a thread-local running value it updates freely between
// supersteps, and a periodic two-level sync folds every worker's copy
// (intra-process, then inter-process) into one value every worker reads
// back identically.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package aggregator

import (
	"sync"

	"github.com/bspgraph/bspgraph/cmn/debug"
	"github.com/bspgraph/bspgraph/wire"
)

// aggregatorI is the type-erased view Group and Factory operate through --
// everything a sync round needs to do to an Aggregator[V] without knowing
// V, mirroring the attrListI pattern objlist uses for the same reason.
type aggregatorI interface {
	name() string
	isActive() bool

	foldStart()
	foldLocalFrom(src aggregatorI)
	foldWireInto(r *wire.BinStream)
	pushFold(w *wire.BinStream)
	commitLeader()

	adoptSynced(src aggregatorI)
	adoptSyncedFromWire(r *wire.BinStream)
}

// Aggregator is one named reduction cell. V is typically a scalar or small
// struct; combine folds an incoming value into the running total, zero
// produces the value ResetEachIteration(true) restores local to once its
// contribution has been folded into the synced result, and save/load
// serialize a V across the wire for the inter-process leg of sync.
//
// local is what Update/UpdateAny mutate. synced is the last value a Sync
// round produced and what GetValue returns -- kept distinct from local so
// that a ResetEachIteration aggregator can still report this round's
// result even though local itself has already been zeroed for the next
// round's updates. fold is sync's own scratch accumulator, touched only
// by the leader instance for one name during one round.
type Aggregator[V any] struct {
	nm string

	mu      sync.Mutex
	local   V
	synced  V
	fold    V
	combine func(dst *V, v V)
	zero    func() V
	save    func(*wire.BinStream, V)
	load    func(*wire.BinStream) V

	resetEachIter bool
	active        bool
}

func newAggregator[V any](name string, init V, combine func(*V, V), zero func() V, save func(*wire.BinStream, V), load func(*wire.BinStream) V) *Aggregator[V] {
	return &Aggregator[V]{
		nm:      name,
		local:   init,
		synced:  init,
		combine: combine,
		zero:    zero,
		save:    save,
		load:    load,
		active:  true,
	}
}

// Update folds v into this worker's running value via combine.
func (a *Aggregator[V]) Update(v V) {
	a.mu.Lock()
	a.combine(&a.local, v)
	a.mu.Unlock()
}

// UpdateAny runs fn against this worker's running value in place, for
// updates combine can't express as "fold one V in" (e.g. conditional
// replace).
func (a *Aggregator[V]) UpdateAny(fn func(*V)) {
	a.mu.Lock()
	fn(&a.local)
	a.mu.Unlock()
}

// GetValue returns the last cluster-wide value a Sync round produced. An
// inactive aggregator takes no part in Sync, so for it GetValue returns
// this worker's own local value.
func (a *Aggregator[V]) GetValue() V {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return a.local
	}
	return a.synced
}

// ResetEachIteration controls whether Sync zeroes this worker's own
// accumulator (via zero) once its contribution has been folded into the
// cluster-wide value, so the next superstep's Update calls start from a
// clean slate instead of piling onto what was already counted. GetValue
// still returns the just-synced result regardless of this setting.
func (a *Aggregator[V]) ResetEachIteration(reset bool) { a.resetEachIter = reset }

// Activate makes this aggregator participate in the next Sync. New
// aggregators are active by default.
func (a *Aggregator[V]) Activate() { a.active = true }

// Deactivate excludes this aggregator from sync rounds; Update/GetValue
// still work locally, but the value never leaves this worker.
func (a *Aggregator[V]) Deactivate() { a.active = false }

func (a *Aggregator[V]) name() string   { return a.nm }
func (a *Aggregator[V]) isActive() bool { return a.active }

// foldStart resets the leader's scratch accumulator to zero() ahead of
// folding every worker's (and, for a center, every process's) contribution
// into it fresh -- never starts from whatever was left in local or synced,
// so a non-reset aggregator's perpetually-growing local doesn't get
// double-counted across rounds.
func (a *Aggregator[V]) foldStart() {
	a.mu.Lock()
	a.fold = a.zero()
	a.mu.Unlock()
}

// foldLocalFrom combines src's current local value into a's fold, in
// memory -- the intra-process leg of sync, where every local worker's copy
// lives in the same address space and no wire round trip is needed.
func (a *Aggregator[V]) foldLocalFrom(src aggregatorI) {
	other, ok := src.(*Aggregator[V])
	debug.Assertf(ok, "aggregator: %q type mismatch across workers", a.nm)
	other.mu.Lock()
	v := other.local
	other.mu.Unlock()
	a.mu.Lock()
	a.combine(&a.fold, v)
	a.mu.Unlock()
}

// foldWireInto combines a value read off the wire into a's fold -- the
// inter-process leg, run on a center receiving another process's partial.
func (a *Aggregator[V]) foldWireInto(r *wire.BinStream) {
	v := a.load(r)
	a.mu.Lock()
	a.combine(&a.fold, v)
	a.mu.Unlock()
}

// pushFold serializes a's current fold value -- used both to send a
// non-center leader's intra-process result to its center, and by a center
// to broadcast its fully-combined result back out.
func (a *Aggregator[V]) pushFold(w *wire.BinStream) {
	a.mu.Lock()
	v := a.fold
	a.mu.Unlock()
	a.save(w, v)
}

// commitLeader publishes fold as the new synced value and, if
// ResetEachIteration, zeroes local for the next round.
func (a *Aggregator[V]) commitLeader() {
	a.mu.Lock()
	a.synced = a.fold
	if a.resetEachIter {
		a.local = a.zero()
	}
	a.mu.Unlock()
}

// adoptSynced copies src's synced value into a (a same-process peer
// picking up its local leader's result) and, if ResetEachIteration, zeroes
// a's own local.
func (a *Aggregator[V]) adoptSynced(src aggregatorI) {
	other, ok := src.(*Aggregator[V])
	debug.Assertf(ok, "aggregator: %q type mismatch across workers", a.nm)
	other.mu.Lock()
	v := other.synced
	other.mu.Unlock()
	a.mu.Lock()
	a.synced = v
	if a.resetEachIter {
		a.local = a.zero()
	}
	a.mu.Unlock()
}

// adoptSyncedFromWire is adoptSynced for a non-center leader receiving the
// final broadcast value over the wire instead of from an in-process peer.
func (a *Aggregator[V]) adoptSyncedFromWire(r *wire.BinStream) {
	v := a.load(r)
	a.mu.Lock()
	a.synced = v
	if a.resetEachIter {
		a.local = a.zero()
	}
	a.mu.Unlock()
}
