// Package hashring maps object keys to owning global worker ids via
// bounded-jump consistent hashing -- the C2 counterpart to fs.Hrw's
// rendezvous hash, chosen here because membership changes must remap only
// O(1/N) of the key space rather than HRW's O(1) re-weighing per insert.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package hashring

import (
	"sort"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/bspgraph/bspgraph/cmn/cos"
	"github.com/bspgraph/bspgraph/wire"
)

// lcgMultiplier is the fixed LCG multiplier of the jump-consistent-hash
// algorithm; it must never change, or lookup results silently shift for
// already-running clusters.
const lcgMultiplier = 2862933555777941757

// HashRing is a set of global worker ids with a deterministic, total
// lookup function. Safe for concurrent use: insert/remove take a write
// lock, lookup a read lock.
type HashRing struct {
	mu      sync.RWMutex
	workers []int // sorted, unique global worker ids
}

// New returns an empty ring.
func New() *HashRing { return &HashRing{} }

// NewFrom returns a ring seeded with the given worker ids.
func NewFrom(ids []int) *HashRing {
	r := &HashRing{}
	for _, id := range ids {
		r.Insert(id)
	}
	return r
}

// Insert adds a worker id to the ring. No-op if already present.
func (r *HashRing) Insert(workerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.SearchInts(r.workers, workerID)
	if i < len(r.workers) && r.workers[i] == workerID {
		return
	}
	r.workers = append(r.workers, 0)
	copy(r.workers[i+1:], r.workers[i:])
	r.workers[i] = workerID
}

// Remove drops a worker id from the ring. No-op if absent.
func (r *HashRing) Remove(workerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.SearchInts(r.workers, workerID)
	if i < len(r.workers) && r.workers[i] == workerID {
		r.workers = append(r.workers[:i], r.workers[i+1:]...)
	}
}

// NumWorkers returns the current ring size.
func (r *HashRing) NumWorkers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Lookup maps a 64-bit hash to exactly one member via bounded-jump
// consistent hashing: iterate j = (b+1)*(2^31/((pos>>33)+1)) until j
// reaches the worker count; the final b indexes the member. The division
// is done in float64 before multiplying by (b+1), matching the original's
// double arithmetic -- computing 2^31/divisor as an integer first truncates
// away a fractional divisor and picks a different member than the original
// would for the same hash.
func (r *HashRing) Lookup(pos uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := int64(len(r.workers))
	if n == 0 {
		panic("hashring: lookup on empty ring")
	}
	var b, j int64 = -1, 0
	for j < n {
		b = j
		pos = pos*lcgMultiplier + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((pos>>33)+1)))
	}
	return r.workers[b]
}

// HashLookup hashes key with the same digest fs.Hrw uses (xxhash seeded by
// cos.MLCG32) and resolves it through Lookup.
func HashLookup[K ~string | ~[]byte](r *HashRing, key K) int {
	var digest uint64
	switch v := any(key).(type) {
	case string:
		digest = xxhash.Checksum64S(cos.UnsafeB(v), cos.MLCG32)
	case []byte:
		digest = xxhash.Checksum64S(v, cos.MLCG32)
	}
	return r.Lookup(digest)
}

// MarshalBinStream implements wire.Object.
func (r *HashRing) MarshalBinStream(s *wire.BinStream) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wire.PushSlice(s, r.workers, (*wire.BinStream).PushInt)
}

// UnmarshalBinStream implements wire.Object.
func (r *HashRing) UnmarshalBinStream(s *wire.BinStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = wire.PopSlice(s, (*wire.BinStream).PopInt)
	sort.Ints(r.workers)
}

// Snapshot returns a copy of the current worker-id set, for callers (e.g.
// TYPE_GET_HASH_RING replies) that must not race with future Insert/Remove.
func (r *HashRing) Snapshot() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, len(r.workers))
	copy(out, r.workers)
	return out
}
