package channel

import (
	"cmp"

	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/objlist"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

// Codec bundles the push/pop pair a channel needs for one type, mirroring
// the function-parameter style wire.PushSlice/PushMap already use instead
// of requiring every message type to implement wire.Object.
type Codec[T any] struct {
	Push func(*wire.BinStream, T)
	Pop  func(*wire.BinStream) T
}

// PushChannel delivers (key, msg) pairs to the unique Dst object with that
// key on its owning worker, one outbound BinStream per destination global
// worker, combining nothing: every push is retained.
type PushChannel[K cmp.Ordered, Msg any, Dst objlist.Object[K]] struct {
	Base

	dst     *objlist.ObjList[K, Dst]
	newDst  func(key K) Dst
	keyHash func(K) uint64
	keyC    Codec[K]
	msgC    Codec[Msg]

	sendBuffer []*wire.BinStream
	recvBuffer [][]Msg
}

// NewPushChannel builds a PushChannel from src (registers as its
// out-channel) to dst (registers as its in-channel). keyHash resolves a
// key to the 64-bit position hashring.Lookup expects; newDst constructs a
// fresh Dst from a key alone, for the find-or-insert path on in().
func NewPushChannel[K cmp.Ordered, Msg any, Dst objlist.Object[K]](
	channelID uint32, localID, globalID int,
	wi *winfo.WorkerInfo, mb *mailbox.LocalMailbox, hr *hashring.HashRing,
	src Source, dst *objlist.ObjList[K, Dst],
	newDst func(K) Dst, keyHash func(K) uint64, keyC Codec[K], msgC Codec[Msg],
) *PushChannel[K, Msg, Dst] {
	pc := &PushChannel[K, Msg, Dst]{
		Base:    NewBase(channelID, localID, globalID, wi, mb, hr),
		dst:     dst,
		newDst:  newDst,
		keyHash: keyHash,
		keyC:    keyC,
		msgC:    msgC,
	}
	pc.sendBuffer = make([]*wire.BinStream, wi.NumWorkers())
	for i := range pc.sendBuffer {
		pc.sendBuffer[i] = wire.New()
	}
	src.RegisterOutChannel(channelID)
	dst.RegisterInChannel(channelID)
	return pc
}

// Push buffers msg for delivery to whichever global worker owns key.
func (pc *PushChannel[K, Msg, Dst]) Push(msg Msg, key K) {
	dstWorker := pc.HR.Lookup(pc.keyHash(key))
	buf := pc.sendBuffer[dstWorker]
	pc.keyC.Push(buf, key)
	pc.msgC.Push(buf, msg)
}

// Get returns the messages delivered to obj's index this progress.
func (pc *PushChannel[K, Msg, Dst]) Get(obj Dst) []Msg {
	idx := pc.dst.IndexOf(obj)
	if idx >= len(pc.recvBuffer) {
		pc.recvBuffer = growSlices(pc.recvBuffer, pc.dst.Len())
	}
	return pc.recvBuffer[idx]
}

// Prepare clears every receive slot ahead of a round of In calls.
func (pc *PushChannel[K, Msg, Dst]) Prepare() {
	for i := range pc.recvBuffer {
		pc.recvBuffer[i] = pc.recvBuffer[i][:0]
	}
}

// In deserializes every (key, msg) pair in bin, finding or inserting the
// destination object by key.
func (pc *PushChannel[K, Msg, Dst]) In(bin *wire.BinStream) {
	for bin.Size() != 0 {
		key := pc.keyC.Pop(bin)
		msg := pc.msgC.Pop(bin)

		idx := pc.findOrAdd(key)
		if idx >= len(pc.recvBuffer) {
			pc.recvBuffer = growSlices(pc.recvBuffer, idx+1)
		}
		pc.recvBuffer[idx] = append(pc.recvBuffer[idx], msg)
	}
}

func (pc *PushChannel[K, Msg, Dst]) findOrAdd(key K) int {
	if obj, ok := pc.dst.Find(key); ok {
		return pc.dst.IndexOf(obj)
	}
	return pc.dst.AddObject(pc.newDst(key))
}

// Out flushes outbound buffers and issues send_complete.
func (pc *PushChannel[K, Msg, Dst]) Out() { pc.Flush() }

// Flush is Out's body, exposed directly for callers that drive a channel
// outside of list_execute (e.g. a one-shot load step).
func (pc *PushChannel[K, Msg, Dst]) Flush() {
	pc.incProgress()
	n := len(pc.sendBuffer)
	start := pc.GlobalID()
	senderTids := allTids(pc.WI)
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
	pc.MB.SendComplete(pc.ChannelID(), pc.Progress(), senderTids, senderTids)
	pc.recordFlush(sentBytes)
}

func allTids(wi *winfo.WorkerInfo) []uint32 {
	ids := wi.AllGlobalTids()
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

func growSlices[T any](s [][]T, n int) [][]T {
	if n <= len(s) {
		return s
	}
	grown := make([][]T, n)
	copy(grown, s)
	return grown
}
