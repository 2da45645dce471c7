package channel

import (
	"cmp"

	"github.com/bspgraph/bspgraph/combiner"
	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/objlist"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

// PushCombinedChannel is PushChannel with a ShuffleCombiner on the outbound
// path: every push is folded into at most one buffered value per
// destination key per local worker before anything crosses the wire, and
// the inbound side keeps at most one combined value per destination object.
type PushCombinedChannel[K cmp.Ordered, Msg any, Dst objlist.Object[K]] struct {
	Base

	dst       *objlist.ObjList[K, Dst]
	newDst    func(key K) Dst
	keyHash   func(K) uint64
	keyC      Codec[K]
	msgC      Codec[Msg]
	combine   combiner.Combiner[Msg]
	numLocals int

	shuffle    *combiner.ShuffleCombiner[K, Msg]
	sendBuffer []*wire.BinStream

	recvBuffer []Msg
	recvFlag   []bool
}

// NewPushCombinedChannel mirrors NewPushChannel but additionally wires a
// ShuffleCombiner shared with the channel's sibling instances on every
// other local worker (callers must pass the same *combiner.ShuffleCombiner
// to every local worker's channel instance for a given channel_id).
func NewPushCombinedChannel[K cmp.Ordered, Msg any, Dst objlist.Object[K]](
	channelID uint32, localID, globalID int,
	wi *winfo.WorkerInfo, mb *mailbox.LocalMailbox, hr *hashring.HashRing,
	src Source, dst *objlist.ObjList[K, Dst],
	shuffle *combiner.ShuffleCombiner[K, Msg], combine combiner.Combiner[Msg],
	newDst func(K) Dst, keyHash func(K) uint64, keyC Codec[K], msgC Codec[Msg],
) *PushCombinedChannel[K, Msg, Dst] {
	pc := &PushCombinedChannel[K, Msg, Dst]{
		Base:      NewBase(channelID, localID, globalID, wi, mb, hr),
		dst:       dst,
		newDst:    newDst,
		keyHash:   keyHash,
		keyC:      keyC,
		msgC:      msgC,
		combine:   combine,
		numLocals: wi.NumLocalWorkers(wi.ProcIDOf(globalID)),
		shuffle:   shuffle,
	}
	pc.sendBuffer = make([]*wire.BinStream, wi.NumWorkers())
	for i := range pc.sendBuffer {
		pc.sendBuffer[i] = wire.New()
	}
	src.RegisterOutChannel(channelID)
	dst.RegisterInChannel(channelID)
	return pc
}

// Push appends msg to the local shuffle buffer for the residue class
// (dst_global_worker mod num_local_workers) that will eventually own key.
// Nothing is combined here: pairs for the same key are combined later in
// shuffleCombine, which also re-resolves the actual global destination
// once the combine has reduced the volume crossing the rendezvous.
func (pc *PushCombinedChannel[K, Msg, Dst]) Push(msg Msg, key K) {
	dstWorker := pc.HR.Lookup(pc.keyHash(key))
	pc.shuffle.Add(dstWorker%pc.numLocals, key, msg)
}

// Get returns the combined message for obj, or Msg's zero value if none
// arrived this progress.
func (pc *PushCombinedChannel[K, Msg, Dst]) Get(obj Dst) Msg {
	idx := pc.dst.IndexOf(obj)
	pc.ensureRecvSize(idx + 1)
	if !pc.recvFlag[idx] {
		var zero Msg
		pc.recvBuffer[idx] = zero
	}
	return pc.recvBuffer[idx]
}

// HasMsgs reports whether obj received a combined message this progress.
func (pc *PushCombinedChannel[K, Msg, Dst]) HasMsgs(obj Dst) bool {
	idx := pc.dst.IndexOf(obj)
	pc.ensureRecvSize(idx + 1)
	return pc.recvFlag[idx]
}

func (pc *PushCombinedChannel[K, Msg, Dst]) ensureRecvSize(n int) {
	if n <= len(pc.recvBuffer) {
		return
	}
	grownV := make([]Msg, n)
	copy(grownV, pc.recvBuffer)
	pc.recvBuffer = grownV
	grownF := make([]bool, n)
	copy(grownF, pc.recvFlag)
	pc.recvFlag = grownF
}

// Prepare clears the has-message flags ahead of a round of In calls.
func (pc *PushCombinedChannel[K, Msg, Dst]) Prepare() {
	for i := range pc.recvFlag {
		pc.recvFlag[i] = false
	}
}

// In deserializes every (key, msg) pair in bin, folding duplicate keys
// within the stream via combine.
func (pc *PushCombinedChannel[K, Msg, Dst]) In(bin *wire.BinStream) {
	for bin.Size() != 0 {
		key := pc.keyC.Pop(bin)
		msg := pc.msgC.Pop(bin)

		idx := pc.findOrAdd(key)
		pc.ensureRecvSize(idx + 1)
		if pc.recvFlag[idx] {
			pc.combine(&pc.recvBuffer[idx], msg)
		} else {
			pc.recvBuffer[idx] = msg
			pc.recvFlag[idx] = true
		}
	}
}

func (pc *PushCombinedChannel[K, Msg, Dst]) findOrAdd(key K) int {
	if obj, ok := pc.dst.Find(key); ok {
		return pc.dst.IndexOf(obj)
	}
	return pc.dst.AddObject(pc.newDst(key))
}

// Out runs the shuffle-combine phase, sends, and issues send_complete.
func (pc *PushCombinedChannel[K, Msg, Dst]) Out() { pc.Flush() }

// Flush is Out's body.
func (pc *PushCombinedChannel[K, Msg, Dst]) Flush() {
	pc.incProgress()
	pc.shuffleCombine()
	pc.send()
	senderTids := allTids(pc.WI)
	pc.MB.SendComplete(pc.ChannelID(), pc.Progress(), senderTids, senderTids)
}

// shuffleCombine hands this worker's outgoing pairs to the rendezvous,
// waits for every local peer, then sorts and folds its own inbound share
// straight into sendBuffer.
func (pc *PushCombinedChannel[K, Msg, Dst]) shuffleCombine() {
	combined := pc.shuffle.Ready(pc.LocalID(), pc.combine)
	for _, p := range combined {
		dstWorker := pc.HR.Lookup(pc.keyHash(p.Key))
		pc.keyC.Push(pc.sendBuffer[dstWorker], p.Key)
		pc.msgC.Push(pc.sendBuffer[dstWorker], p.Val)
	}
}

func (pc *PushCombinedChannel[K, Msg, Dst]) send() {
	n := len(pc.sendBuffer)
	start := pc.GlobalID()
	sentBytes := 0
	for i := 0; i < n; i++ {
		dst := (start + i) % n
		if pc.sendBuffer[dst].Size() == 0 {
			continue
		}
		sentBytes += pc.sendBuffer[dst].Size()
		pc.MB.Send(uint32(dst), pc.ChannelID(), pc.Progress(), pc.sendBuffer[dst])
		pc.sendBuffer[dst] = wire.New()
	}
	pc.recordFlush(sentBytes)
}
