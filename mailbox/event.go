package mailbox

import "github.com/bspgraph/bspgraph/wire"

// Tag identifies a mailbox cell: all payloads/completions for a given
// channel at a given progress share one FIFO and one completion count.
type Tag struct {
	ChannelID uint32
	Progress  uint32
}

// event is the sealed set of the four kinds the event loop consumes.
type event interface{ isEvent() }

// InboundPayload arrives from the wire (or a same-process send): one
// BinStream addressed to a local destination worker.
type InboundPayload struct {
	SrcTid    uint32
	ChannelID uint32
	Progress  uint32
	Bin       *wire.BinStream
}

// InboundComplete signals that one remote (or local) process has finished
// sending on (ChannelID, Progress); NumSenderProcesses is the total count
// of distinct sending processes the mailbox must see before it considers
// the tag drained.
type InboundComplete struct {
	ChannelID          uint32
	Progress           uint32
	NumSenderProcesses int
}

// OutboundPayload is posted by a worker's LocalMailbox.Send.
type OutboundPayload struct {
	DstTid    uint32
	ChannelID uint32
	Progress  uint32
	Bin       *wire.BinStream
}

// OutboundComplete is posted by a worker's LocalMailbox.SendComplete.
type OutboundComplete struct {
	ChannelID          uint32
	Progress           uint32
	NumLocalSenders    int
	NumSenderProcesses int // distinct processes in the channel's sender set, cluster-wide
	PeerProcessIDs     []int
}

func (InboundPayload) isEvent()    {}
func (InboundComplete) isEvent()   {}
func (OutboundPayload) isEvent()   {}
func (OutboundComplete) isEvent()  {}
