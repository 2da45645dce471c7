package channel

import (
	"cmp"

	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/objlist"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

// MigrateChannel moves whole objects (and their registered attributes) from
// one worker's ObjList to another's, e.g. to repartition after a load step
// changes the natural owner of a key.
type MigrateChannel[K cmp.Ordered, T objlist.Object[K]] struct {
	Base

	src   *objlist.ObjList[K, T]
	dst   *objlist.ObjList[K, T]
	objC  Codec[T]
	sortAfterImmigrate func(*objlist.ObjList[K, T])

	migrateBuffer []*wire.BinStream
}

// NewMigrateChannel wires src as the channel's out-channel and dst as its
// in-channel. Both are usually the same *ObjList on every worker (migration
// within one partitioned collection), but the original design allows
// distinct source and destination lists, so both are taken explicitly.
func NewMigrateChannel[K cmp.Ordered, T objlist.Object[K]](
	channelID uint32, localID, globalID int,
	wi *winfo.WorkerInfo, mb *mailbox.LocalMailbox, hr *hashring.HashRing,
	src, dst *objlist.ObjList[K, T], objC Codec[T],
) *MigrateChannel[K, T] {
	mc := &MigrateChannel[K, T]{
		Base: NewBase(channelID, localID, globalID, wi, mb, hr),
		src:  src,
		dst:  dst,
		objC: objC,
	}
	mc.migrateBuffer = make([]*wire.BinStream, wi.NumWorkers())
	for i := range mc.migrateBuffer {
		mc.migrateBuffer[i] = wire.New()
	}
	src.RegisterOutChannel(channelID)
	dst.RegisterInChannel(channelID)
	return mc
}

// SetSortAfterImmigrate registers a hook that In runs on dst after each
// batch of immigrants has been added. With no hook set, In leaves dst
// unsorted.
func (mc *MigrateChannel[K, T]) SetSortAfterImmigrate(fn func(*objlist.ObjList[K, T])) {
	mc.sortAfterImmigrate = fn
}

// Migrate deletes obj from src (marking it, not compacting) and buffers it
// plus its registered attribute values for delivery to dstGlobalTid.
func (mc *MigrateChannel[K, T]) Migrate(obj T, dstGlobalTid int) {
	idx := mc.src.IndexOf(obj)
	mc.src.DeleteObject(obj)
	buf := mc.migrateBuffer[dstGlobalTid]
	mc.objC.Push(buf, obj)
	mc.src.MigrateAttribute(buf, idx)
}

// Prepare is a no-op: MigrateChannel carries no progress-scoped state of
// its own to reset, unlike the combining channels.
func (mc *MigrateChannel[K, T]) Prepare() {}

// In deserializes every migrating object in bin, adds it to dst and
// recovers its attribute values at the freshly assigned index.
func (mc *MigrateChannel[K, T]) In(bin *wire.BinStream) {
	for bin.Size() != 0 {
		obj := mc.objC.Pop(bin)
		idx := mc.dst.AddObject(obj)
		mc.dst.ProcessAttribute(bin, idx)
	}
	if mc.sortAfterImmigrate != nil {
		mc.sortAfterImmigrate(mc.dst)
	}
}

// Out flushes outbound buffers and issues send_complete.
func (mc *MigrateChannel[K, T]) Out() { mc.Flush() }

// Flush is Out's body. Unlike PushChannel, every destination buffer is sent
// unconditionally, even if empty: receivers still need the
// empty-but-present message to know this progress produced no immigrants
// for them.
func (mc *MigrateChannel[K, T]) Flush() {
	mc.incProgress()
	n := len(mc.migrateBuffer)
	start := mc.GlobalID()
	senderTids := allTids(mc.WI)
	sentBytes := 0
	for i := 0; i < n; i++ {
		dst := (start + i) % n
		sentBytes += mc.migrateBuffer[dst].Size()
		mc.MB.Send(uint32(dst), mc.ChannelID(), mc.Progress(), mc.migrateBuffer[dst])
		mc.migrateBuffer[dst] = wire.New()
	}
	mc.MB.SendComplete(mc.ChannelID(), mc.Progress(), senderTids, senderTids)
	mc.recordFlush(sentBytes)
}
