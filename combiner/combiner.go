// Package combiner implements the intra-process shuffle-and-pre-combine
// step a PushCombinedChannel runs once per superstep before it serializes
// anything onto the wire: every local worker hands over the (key, value)
// pairs it produced for every other local worker, and once all of them
// have handed theirs over, each worker receives back its own inbound
// share, sorted by key and adjacent-merged.
package combiner

import (
	"cmp"
	"sort"
	"sync"
)

// Numeric is the constraint satisfied by the built-in SumCombiner.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Combiner folds inc into dst in place.
type Combiner[V any] func(dst *V, inc V)

// SumCombiner folds by addition.
func SumCombiner[V Numeric]() Combiner[V] {
	return func(dst *V, inc V) { *dst += inc }
}

// MinCombiner folds by keeping the smaller value.
func MinCombiner[V cmp.Ordered]() Combiner[V] {
	return func(dst *V, inc V) {
		if inc < *dst {
			*dst = inc
		}
	}
}

// Pair is one outgoing (key, value) shuffle entry.
type Pair[K any, V any] struct {
	Key K
	Val V
}

// SortByKey orders buf by Key, ties broken arbitrarily (not stable: the
// combine step that follows is only defined up to key equivalence anyway).
func SortByKey[K cmp.Ordered, V any](buf []Pair[K, V]) {
	sort.Slice(buf, func(i, j int) bool { return buf[i].Key < buf[j].Key })
}

// AdjMerge folds adjacent pairs sharing a key into one using combine,
// compacting buf in place and returning the live prefix. buf must already
// be sorted by key.
func AdjMerge[K comparable, V any](buf []Pair[K, V], combine Combiner[V]) []Pair[K, V] {
	if len(buf) == 0 {
		return buf
	}
	l := 0
	for r := 1; r < len(buf); r++ {
		if buf[l].Key == buf[r].Key {
			combine(&buf[l].Val, buf[r].Val)
		} else {
			l++
			if l != r {
				buf[l] = buf[r]
			}
		}
	}
	return buf[:l+1]
}

// AdjDedup drops adjacent pairs that are exactly equal (same key and
// value), the IdenCombiner special case: no folding, just dedup. buf must
// already be sorted by key.
func AdjDedup[K comparable, V comparable](buf []Pair[K, V]) []Pair[K, V] {
	if len(buf) == 0 {
		return buf
	}
	l := 0
	for r := 1; r < len(buf); r++ {
		if buf[l].Key != buf[r].Key || buf[l].Val != buf[r].Val {
			l++
			if l != r {
				buf[l] = buf[r]
			}
		}
	}
	return buf[:l+1]
}

// CombineSingle sorts buf by key and folds same-key runs with combine.
func CombineSingle[K cmp.Ordered, V any](buf []Pair[K, V], combine Combiner[V]) []Pair[K, V] {
	SortByKey(buf)
	return AdjMerge(buf, combine)
}

// IdenCombineSingle sorts buf by key and removes exact duplicates, for
// channels using IdenCombiner semantics.
func IdenCombineSingle[K cmp.Ordered, V comparable](buf []Pair[K, V]) []Pair[K, V] {
	SortByKey(buf)
	return AdjDedup(buf)
}

// BackCombine is the streaming variant applied as each (key, value) is
// pushed: if the last buffered pair shares key, it's folded in place
// instead of appending a new entry, avoiding an ever-growing per-push
// buffer on hot keys.
func BackCombine[K comparable, V any](buf []Pair[K, V], key K, val V, combine Combiner[V]) []Pair[K, V] {
	if n := len(buf); n > 0 && buf[n-1].Key == key {
		combine(&buf[n-1].Val, val)
		return buf
	}
	return append(buf, Pair[K, V]{Key: key, Val: val})
}

// BackCombineIden is BackCombine's IdenCombiner counterpart: a push is
// dropped only if it exactly repeats the immediately preceding one.
func BackCombineIden[K comparable, V comparable](buf []Pair[K, V], key K, val V) []Pair[K, V] {
	if n := len(buf); n > 0 && buf[n-1].Key == key && buf[n-1].Val == val {
		return buf
	}
	return append(buf, Pair[K, V]{Key: key, Val: val})
}

// ShuffleCombiner is the per-channel, per-process rendezvous: numLocalWorkers
// local workers each call Add to deposit pairs destined for any of their
// peers, then ReadyRaw to hand off their own outgoing buffers and block
// until every peer has done likewise, receiving back their own inbound
// share. One round corresponds to one channel flush.
type ShuffleCombiner[K cmp.Ordered, V any] struct {
	numLocalWorkers int

	mu         sync.Mutex
	cond       *sync.Cond
	outgoing   [][]Pair[K, V] // outgoing[dst] collects every local worker's pairs addressed to dst
	readyCount int
	generation int
}

// New builds a shuffle rendezvous for numLocalWorkers local workers of one
// channel.
func New[K cmp.Ordered, V any](numLocalWorkers int) *ShuffleCombiner[K, V] {
	sc := &ShuffleCombiner[K, V]{
		numLocalWorkers: numLocalWorkers,
		outgoing:        make([][]Pair[K, V], numLocalWorkers),
	}
	sc.cond = sync.NewCond(&sc.mu)
	return sc
}

// Add deposits a (key, value) pair destined for local worker dst. Safe to
// call concurrently from distinct local workers, each addressing distinct
// or shared destinations.
func (sc *ShuffleCombiner[K, V]) Add(dst int, key K, val V) {
	sc.mu.Lock()
	sc.outgoing[dst] = append(sc.outgoing[dst], Pair[K, V]{Key: key, Val: val})
	sc.mu.Unlock()
}

// ReadyRaw announces that localID has finished writing for this round and
// blocks until every local worker has done the same, then returns
// localID's own unsorted, uncombined inbound buffer and resets it for the
// next round.
func (sc *ShuffleCombiner[K, V]) ReadyRaw(localID int) []Pair[K, V] {
	sc.mu.Lock()
	gen := sc.generation
	sc.readyCount++
	if sc.readyCount == sc.numLocalWorkers {
		sc.readyCount = 0
		sc.generation++
		sc.cond.Broadcast()
	} else {
		for sc.generation == gen {
			sc.cond.Wait()
		}
	}
	buf := sc.outgoing[localID]
	sc.outgoing[localID] = nil
	sc.mu.Unlock()
	return buf
}

// Ready is ReadyRaw followed by CombineSingle.
func (sc *ShuffleCombiner[K, V]) Ready(localID int, combine Combiner[V]) []Pair[K, V] {
	return CombineSingle(sc.ReadyRaw(localID), combine)
}

// ReadyIden is ReadyRaw followed by IdenCombineSingle, for channels using
// IdenCombiner semantics.
func ReadyIden[K cmp.Ordered, V comparable](sc *ShuffleCombiner[K, V], localID int) []Pair[K, V] {
	return IdenCombineSingle(sc.ReadyRaw(localID))
}
