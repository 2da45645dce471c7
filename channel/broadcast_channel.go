package channel

import (
	"cmp"
	"sync"

	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

// broadcastShard is one local worker's share of a BroadcastStore: the
// dictionary a single BroadcastChannel instance owns and writes to.
type broadcastShard[K comparable, V any] struct {
	mu   sync.RWMutex
	dict map[K]V
}

// BroadcastStore holds one shard per local worker in a process, replacing
// the double-buffered accessor handoff of the original design with a plain
// per-shard lock: every shard is written by exactly one local worker's
// BroadcastChannel.In and read by every local worker's Get/Find, so a
// reader/writer mutex is sufficient without any cross-thread storage swap.
type BroadcastStore[K comparable, V any] struct {
	shards []*broadcastShard[K, V]
}

// NewBroadcastStore allocates one shard per local worker in the process.
func NewBroadcastStore[K comparable, V any](numLocalWorkers int) *BroadcastStore[K, V] {
	bs := &BroadcastStore[K, V]{shards: make([]*broadcastShard[K, V], numLocalWorkers)}
	for i := range bs.shards {
		bs.shards[i] = &broadcastShard[K, V]{dict: make(map[K]V)}
	}
	return bs
}

// BroadcastChannel delivers a key/value to every worker in the hash ring,
// electing one local worker per process (hash(key) mod num_local_workers)
// as the sole writer of that key's shard.
type BroadcastChannel[K cmp.Ordered, V any] struct {
	Base

	store   *BroadcastStore[K, V]
	keyHash func(K) uint64
	keyC    Codec[K]
	valC    Codec[V]

	broadcastBuffer       []*wire.BinStream
	clearDictEachProgress bool
}

// NewBroadcastChannel builds a BroadcastChannel backed by a shared store;
// every local worker in a process must pass the same *BroadcastStore.
func NewBroadcastChannel[K cmp.Ordered, V any](
	channelID uint32, localID, globalID int,
	wi *winfo.WorkerInfo, mb *mailbox.LocalMailbox, hr *hashring.HashRing,
	src Source, store *BroadcastStore[K, V],
	keyHash func(K) uint64, keyC Codec[K], valC Codec[V],
) *BroadcastChannel[K, V] {
	bc := &BroadcastChannel[K, V]{
		Base:    NewBase(channelID, localID, globalID, wi, mb, hr),
		store:   store,
		keyHash: keyHash,
		keyC:    keyC,
		valC:    valC,
	}
	bc.broadcastBuffer = make([]*wire.BinStream, wi.NumWorkers())
	for i := range bc.broadcastBuffer {
		bc.broadcastBuffer[i] = wire.New()
	}
	src.RegisterOutChannel(channelID)
	return bc
}

// SetClearDict controls whether the hosted shard this worker owns is wiped
// at the start of every progress, or accumulates across supersteps.
func (bc *BroadcastChannel[K, V]) SetClearDict(clear bool) { bc.clearDictEachProgress = clear }

// Broadcast fans key/value out to one local worker per process: the one
// elected by hash(key) mod that process's local worker count.
func (bc *BroadcastChannel[K, V]) Broadcast(key K, value V) {
	h := bc.keyHash(key)
	for p := 0; p < bc.WI.NumProcesses(); p++ {
		n := bc.WI.NumLocalWorkers(p)
		recverLocal := int(h % uint64(n))
		recverID := bc.WI.LocalToGlobal(p, recverLocal)
		bc.keyC.Push(bc.broadcastBuffer[recverID], key)
		bc.valC.Push(bc.broadcastBuffer[recverID], value)
	}
}

// Get returns the value for key and whether it was found.
func (bc *BroadcastChannel[K, V]) Get(key K) (V, bool) {
	shard := bc.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.dict[key]
	return v, ok
}

// Find reports whether key is present.
func (bc *BroadcastChannel[K, V]) Find(key K) bool {
	_, ok := bc.Get(key)
	return ok
}

func (bc *BroadcastChannel[K, V]) shardFor(key K) *broadcastShard[K, V] {
	idx := bc.keyHash(key) % uint64(len(bc.store.shards))
	return bc.store.shards[idx]
}

// Prepare clears this worker's hosted shard if SetClearDict(true) was
// called, ahead of this progress's incoming broadcasts.
func (bc *BroadcastChannel[K, V]) Prepare() {
	if !bc.clearDictEachProgress {
		return
	}
	shard := bc.store.shards[bc.LocalID()]
	shard.mu.Lock()
	shard.dict = make(map[K]V)
	shard.mu.Unlock()
}

// In writes every (key, value) pair in bin into this worker's hosted shard.
func (bc *BroadcastChannel[K, V]) In(bin *wire.BinStream) {
	shard := bc.store.shards[bc.LocalID()]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	for bin.Size() != 0 {
		key := bc.keyC.Pop(bin)
		val := bc.valC.Pop(bin)
		shard.dict[key] = val
	}
}

// Out flushes outbound buffers and issues send_complete.
func (bc *BroadcastChannel[K, V]) Out() { bc.Flush() }

// Flush is Out's body.
func (bc *BroadcastChannel[K, V]) Flush() {
	bc.incProgress()
	n := len(bc.broadcastBuffer)
	start := bc.GlobalID()
	allTidsList := allTids(bc.WI)
	sentBytes := 0
	for i := 0; i < n; i++ {
		dst := (start + i) % n
		if bc.broadcastBuffer[dst].Size() == 0 {
			continue
		}
		sentBytes += bc.broadcastBuffer[dst].Size()
		bc.MB.Send(uint32(dst), bc.ChannelID(), bc.Progress(), bc.broadcastBuffer[dst])
		bc.broadcastBuffer[dst] = wire.New()
	}
	bc.MB.SendComplete(bc.ChannelID(), bc.Progress(), allTidsList, allTidsList)
	bc.recordFlush(sentBytes)
}
