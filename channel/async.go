package channel

import (
	"cmp"
	"time"

	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/objlist"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

// AsyncPushChannel is a PushChannel whose Out does not advance progress or
// announce send_complete: receivers poll with TryRecv/RecvTimeout instead
// of waiting on the gather. FIFO is preserved per sender/destination pair,
// but there is no cross-sender ordering and no guarantee a given push has
// reached its destination by any particular call to Out.
type AsyncPushChannel[K cmp.Ordered, Msg any, Dst objlist.Object[K]] struct {
	*PushChannel[K, Msg, Dst]
}

// NewAsyncPushChannel builds an async push channel over a single ObjList
// acting as both its own source and destination, matching the one-list
// shape the original design restricts async channels to.
func NewAsyncPushChannel[K cmp.Ordered, Msg any, Dst objlist.Object[K]](
	channelID uint32, localID, globalID int,
	wi *winfo.WorkerInfo, mb *mailbox.LocalMailbox, hr *hashring.HashRing,
	list *objlist.ObjList[K, Dst],
	newDst func(K) Dst, keyHash func(K) uint64, keyC Codec[K], msgC Codec[Msg],
) *AsyncPushChannel[K, Msg, Dst] {
	return &AsyncPushChannel[K, Msg, Dst]{
		PushChannel: NewPushChannel(channelID, localID, globalID, wi, mb, hr, list, list, newDst, keyHash, keyC, msgC),
	}
}

// Out sends every outbound buffer, empty or not, without bumping progress
// or issuing send_complete.
func (pc *AsyncPushChannel[K, Msg, Dst]) Out() {
	n := len(pc.sendBuffer)
	start := pc.GlobalID()
	for i := 0; i < n; i++ {
		dst := (start + i) % n
		pc.MB.Send(uint32(dst), pc.ChannelID(), pc.Progress(), pc.sendBuffer[dst])
		pc.sendBuffer[dst] = wire.New()
	}
}

// TryRecv polls (channel_id, progress) once without blocking, dispatching
// to In if a payload is ready. Returns whether anything was processed.
func (pc *AsyncPushChannel[K, Msg, Dst]) TryRecv() bool {
	if !pc.MB.PollNonBlock(pc.ChannelID(), pc.Progress()) {
		return false
	}
	pc.In(pc.MB.Recv(pc.ChannelID(), pc.Progress()))
	return true
}

// RecvTimeout polls (channel_id, progress) for up to d, dispatching to In
// if a payload arrives in time.
func (pc *AsyncPushChannel[K, Msg, Dst]) RecvTimeout(d time.Duration) bool {
	if !pc.MB.PollWithTimeout(pc.ChannelID(), pc.Progress(), d) {
		return false
	}
	pc.In(pc.MB.Recv(pc.ChannelID(), pc.Progress()))
	return true
}

// AsyncMigrateChannel is a MigrateChannel whose Out does not advance
// progress or announce send_complete.
type AsyncMigrateChannel[K cmp.Ordered, T objlist.Object[K]] struct {
	*MigrateChannel[K, T]
}

// NewAsyncMigrateChannel builds an async migrate channel over a single
// ObjList acting as both its own source and destination.
func NewAsyncMigrateChannel[K cmp.Ordered, T objlist.Object[K]](
	channelID uint32, localID, globalID int,
	wi *winfo.WorkerInfo, mb *mailbox.LocalMailbox, hr *hashring.HashRing,
	list *objlist.ObjList[K, T], objC Codec[T],
) *AsyncMigrateChannel[K, T] {
	return &AsyncMigrateChannel[K, T]{
		MigrateChannel: NewMigrateChannel(channelID, localID, globalID, wi, mb, hr, list, list, objC),
	}
}

// Out sends every migrate buffer, empty or not, without bumping progress
// or issuing send_complete.
func (mc *AsyncMigrateChannel[K, T]) Out() {
	n := len(mc.migrateBuffer)
	start := mc.GlobalID()
	for i := 0; i < n; i++ {
		dst := (start + i) % n
		mc.MB.Send(uint32(dst), mc.ChannelID(), mc.Progress(), mc.migrateBuffer[dst])
		mc.migrateBuffer[dst] = wire.New()
	}
}

// TryRecv polls (channel_id, progress) once without blocking, dispatching
// to In if a payload is ready.
func (mc *AsyncMigrateChannel[K, T]) TryRecv() bool {
	if !mc.MB.PollNonBlock(mc.ChannelID(), mc.Progress()) {
		return false
	}
	mc.In(mc.MB.Recv(mc.ChannelID(), mc.Progress()))
	return true
}

// RecvTimeout polls (channel_id, progress) for up to d, dispatching to In
// if a payload arrives in time.
func (mc *AsyncMigrateChannel[K, T]) RecvTimeout(d time.Duration) bool {
	if !mc.MB.PollWithTimeout(mc.ChannelID(), mc.Progress(), d) {
		return false
	}
	mc.In(mc.MB.Recv(mc.ChannelID(), mc.Progress()))
	return true
}
