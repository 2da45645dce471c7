// Package engine drives one superstep of a list_execute call: polling and
// distributing inbound traffic on a set of channels, running the user
// function over an ObjList's live objects, and flushing outbound traffic.
package engine

import (
	"github.com/bspgraph/bspgraph/channel"
	"github.com/bspgraph/bspgraph/mailbox"
)

// ChannelManager owns a fixed set of channels for the duration of one
// superstep: poll_and_distribute drains every flushed channel's inbound
// traffic, flush drives every channel's outbound side.
type ChannelManager struct {
	channels []channel.Channel
	mb       *mailbox.LocalMailbox
}

// NewChannelManager builds a manager over channels, all of which must share
// a single worker's mailbox -- taken from the first channel, same as the
// set's own construction-time wiring guarantees.
func NewChannelManager(channels []channel.Channel) *ChannelManager {
	cm := &ChannelManager{channels: channels}
	if len(channels) > 0 {
		cm.mb = channels[0].Mailbox()
	}
	return cm
}

// PollAndDistribute prepares every flushed channel, then repeatedly polls
// across their (channel_id, progress) tags, dispatching each arriving
// payload to the channel it belongs to, until every selected tag is fully
// drained. Channels that were not flushed this progress are left alone.
func (cm *ChannelManager) PollAndDistribute() {
	if len(cm.channels) == 0 {
		return
	}

	var selected []channel.Channel
	var tags []mailbox.Tag
	for _, ch := range cm.channels {
		if ch.IsFlushed() {
			ch.Prepare()
			selected = append(selected, ch)
			tags = append(tags, mailbox.Tag{ChannelID: ch.ChannelID(), Progress: ch.Progress()})
		}
	}
	if len(tags) == 0 {
		return
	}

	for {
		idx, ok := cm.mb.PollSet(tags)
		if !ok {
			break
		}
		bin := cm.mb.Recv(tags[idx].ChannelID, tags[idx].Progress)
		selected[idx].In(bin)
	}

	for _, ch := range selected {
		ch.ResetFlushed()
	}
}

// Flush calls Out on every channel, in registration order.
func (cm *ChannelManager) Flush() {
	for _, ch := range cm.channels {
		ch.Out()
	}
}
