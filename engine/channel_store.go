package engine

import (
	"sync"

	"github.com/bspgraph/bspgraph/channel"
	"github.com/bspgraph/bspgraph/cmn/debug"
)

// ChannelStore resolves the bare channel ids an ObjList registers
// (RegisterInChannel/RegisterOutChannel) back into the concrete
// channel.Channel each id names. ObjList itself never references a
// channel.Channel directly -- only the id -- so there is no import cycle
// between objlist and channel; ChannelStore is the one place that joins
// them, owned by whatever sets up a worker's channels.
type ChannelStore struct {
	mu       sync.RWMutex
	channels map[uint32]channel.Channel
}

// NewChannelStore returns an empty store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{channels: map[uint32]channel.Channel{}}
}

// Register makes ch resolvable by its own ChannelID.
func (cs *ChannelStore) Register(ch channel.Channel) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.channels[ch.ChannelID()] = ch
}

// Deregister drops id from the store.
func (cs *ChannelStore) Deregister(id uint32) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.channels, id)
}

// Resolve maps every id to its registered channel.Channel, in order; fatal
// if any id was never registered.
func (cs *ChannelStore) Resolve(ids []uint32) []channel.Channel {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]channel.Channel, len(ids))
	for i, id := range ids {
		ch, ok := cs.channels[id]
		debug.Assertf(ok, "engine: channel id %d not registered in this store", id)
		out[i] = ch
	}
	return out
}
