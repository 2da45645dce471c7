// Package channel implements the typed per-superstep data-exchange
// primitives: PushChannel, PushCombinedChannel, MigrateChannel and
// BroadcastChannel, each with a synchronous and asynchronous flavor, all
// built on the same mailbox tag (channel_id, progress) and sharing the
// bookkeeping in Base.
package channel

import (
	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/stats"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

// Source is anything a channel can be registered on as its outbound side --
// normally an *objlist.ObjList[K,T], but spec.md allows "anything" (e.g. an
// input-format reader with no ObjList of its own), so only the
// registration methods are required.
type Source interface {
	RegisterOutChannel(cid uint32)
	DeregisterOutChannel(cid uint32)
}

// Channel is the common interface list_execute drives: customized_setup
// happens at construction time in each concrete type, so only the four
// per-superstep hooks -- plus Mailbox, which a ChannelManager needs to poll
// across several channels at once -- are exposed here.
type Channel interface {
	ChannelID() uint32
	Progress() uint32
	IsFlushed() bool
	ResetFlushed()
	Prepare()
	In(bin *wire.BinStream)
	Out()
	Mailbox() *mailbox.LocalMailbox
}

// Base holds the bookkeeping every channel variant shares: identity,
// progress, the flushed bitmap, and the collaborators (WorkerInfo,
// LocalMailbox, HashRing) wired in at setup.
type Base struct {
	channelID uint32
	localID   int
	globalID  int
	progress  uint32
	flushed   []bool

	WI *winfo.WorkerInfo
	MB *mailbox.LocalMailbox
	HR *hashring.HashRing
}

// NewBase wires a channel's shared state. channelID must be unique within
// the owning process; localID/globalID are the constructing worker's own
// local/global tid.
func NewBase(channelID uint32, localID, globalID int, wi *winfo.WorkerInfo, mb *mailbox.LocalMailbox, hr *hashring.HashRing) Base {
	return Base{
		channelID: channelID,
		localID:   localID,
		globalID:  globalID,
		flushed:   []bool{false},
		WI:        wi,
		MB:        mb,
		HR:        hr,
	}
}

// ChannelID returns the process-unique id assigned at construction.
func (b *Base) ChannelID() uint32 { return b.channelID }

// Progress returns the current superstep counter for this channel.
func (b *Base) Progress() uint32 { return b.progress }

// LocalID returns the constructing worker's local tid.
func (b *Base) LocalID() int { return b.localID }

// GlobalID returns the constructing worker's global tid.
func (b *Base) GlobalID() int { return b.globalID }

// Mailbox returns the LocalMailbox this channel sends and polls through.
func (b *Base) Mailbox() *mailbox.LocalMailbox { return b.MB }

// IsFlushed reports whether the current progress has outstanding inbound
// traffic list_execute must poll and distribute before running user code.
func (b *Base) IsFlushed() bool { return b.flushed[b.progress] }

// ResetFlushed clears the current progress's bit once its traffic has been
// fully polled and dispatched.
func (b *Base) ResetFlushed() { b.flushed[b.progress] = false }

// incProgress bumps progress and grows flushed so the new progress
// defaults to true -- a freshly advanced progress always has (potential)
// traffic to poll for.
func (b *Base) incProgress() {
	b.progress++
	for uint32(len(b.flushed)) <= b.progress {
		b.flushed = append(b.flushed, true)
	}
}

// recordFlush reports nBytes of outbound traffic for this channel to the
// process-wide stats Registry, a no-op until stats.Init has been called.
func (b *Base) recordFlush(nBytes int) {
	stats.ObserveChannelFlush(b.channelID, nBytes)
}
