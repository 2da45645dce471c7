package mailbox_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/wire"
)

// fakeTransport wires two or more in-test EventLoops together directly,
// standing in for CentralReceiver/HTTPTransport so these tests exercise the
// full send -> event-loop -> mailbox protocol without a real listener.
type fakeTransport struct {
	loops map[int]*mailbox.EventLoop
}

func (f *fakeTransport) SendPayload(peerPid int, dstTid, cid, progress uint32, bin *wire.BinStream) error {
	f.loops[peerPid].DeliverInboundPayload(0, dstTid, cid, progress, bin)
	return nil
}

func (f *fakeTransport) SendComplete(peerPid int, cid, progress uint32, numSenderProcesses int) error {
	f.loops[peerPid].DeliverInboundComplete(cid, progress, numSenderProcesses)
	return nil
}

// twoProcCluster sets up two processes, two global tids each (0,1 on proc
// 0; 2,3 on proc 1), with cross-wired event loops.
func twoProcCluster() (loop0, loop1 *mailbox.EventLoop) {
	tidToPid := func(tid uint32) int {
		if tid < 2 {
			return 0
		}
		return 1
	}
	ft := &fakeTransport{loops: map[int]*mailbox.EventLoop{}}
	loop0 = mailbox.NewEventLoop(0, tidToPid, ft)
	loop1 = mailbox.NewEventLoop(1, tidToPid, ft)
	ft.loops[0] = loop0
	ft.loops[1] = loop1
	go loop0.Run()
	go loop1.Run()
	return
}

var _ = Describe("Mailbox", func() {
	It("delivers a same-process payload and drains on send_complete", func() {
		loop0, loop1 := twoProcCluster()
		defer loop0.Stop()
		defer loop1.Stop()

		sender := loop0.Mailbox(0)
		receiver := loop0.Mailbox(1)

		bin := wire.New()
		bin.PushString("hello")
		sender.Send(1, 7, 1, bin)
		sender.SendComplete(7, 1, []uint32{0}, []uint32{1})

		Expect(receiver.Poll(7, 1)).To(BeTrue())
		got := receiver.Recv(7, 1)
		Expect(got.PopString()).To(Equal("hello"))

		Expect(receiver.Poll(7, 1)).To(BeFalse())
		Expect(receiver.Done(7, 1)).To(BeTrue())
	})

	It("delivers across processes and gathers completion from all senders", func() {
		loop0, loop1 := twoProcCluster()
		defer loop0.Stop()
		defer loop1.Stop()

		s0 := loop0.Mailbox(0)
		s2 := loop1.Mailbox(2)
		receiver := loop1.Mailbox(3)

		senders := []uint32{0, 2}
		receivers := []uint32{3}

		b1 := wire.New()
		b1.PushInt32(1)
		s0.Send(3, 9, 5, b1)
		s0.SendComplete(9, 5, senders, receivers)

		b2 := wire.New()
		b2.PushInt32(2)
		s2.Send(3, 9, 5, b2)
		s2.SendComplete(9, 5, senders, receivers)

		seen := map[int32]bool{}
		for i := 0; i < 2; i++ {
			Expect(receiver.Poll(9, 5)).To(BeTrue())
			bin := receiver.Recv(9, 5)
			seen[bin.PopInt32()] = true
		}
		Expect(seen).To(HaveLen(2))
		Eventually(func() bool { return receiver.Done(9, 5) }, time.Second).Should(BeTrue())
	})

	It("keeps distinct tags independent", func() {
		loop0, _ := twoProcCluster()
		defer loop0.Stop()

		receiver := loop0.Mailbox(1)
		sender := loop0.Mailbox(0)

		// Tag A is never completed -- poll would block forever; tag B
		// must still resolve promptly.
		binB := wire.New()
		binB.PushUint8(1)
		sender.Send(1, 2, 0, binB)
		sender.SendComplete(2, 0, []uint32{0}, []uint32{1})

		Expect(receiver.PollWithTimeout(1, 0, 50*time.Millisecond)).To(BeFalse())
		Expect(receiver.Poll(2, 0)).To(BeTrue())
	})

	It("PollSet resolves to whichever tag becomes ready first", func() {
		loop0, _ := twoProcCluster()
		defer loop0.Stop()

		receiver := loop0.Mailbox(1)
		sender := loop0.Mailbox(0)

		tags := []mailbox.Tag{{ChannelID: 1, Progress: 0}, {ChannelID: 2, Progress: 0}}

		go func() {
			time.Sleep(20 * time.Millisecond)
			b := wire.New()
			b.PushBool(true)
			sender.Send(1, 2, 0, b)
			sender.SendComplete(2, 0, []uint32{0}, []uint32{1})
		}()

		idx, ok := receiver.PollSet(tags)
		Expect(ok).To(BeTrue())
		Expect(idx).To(Equal(1))
	})

	It("PruneDone evicts only fully-drained cells", func() {
		loop0, _ := twoProcCluster()
		defer loop0.Stop()

		receiver := loop0.Mailbox(1)
		sender := loop0.Mailbox(0)

		drained := wire.New()
		drained.PushUint8(1)
		sender.Send(1, 1, 0, drained)
		sender.SendComplete(1, 0, []uint32{0}, []uint32{1})
		Expect(receiver.Poll(1, 0)).To(BeTrue())
		receiver.Recv(1, 0)
		Expect(receiver.Done(1, 0)).To(BeTrue())

		// tag (2, 0) has a payload still sitting in its queue -- not done.
		pending := wire.New()
		pending.PushUint8(2)
		sender.Send(1, 2, 0, pending)
		sender.SendComplete(2, 0, []uint32{0}, []uint32{1})
		Expect(receiver.PollNonBlock(2, 0)).To(BeTrue())

		n := receiver.PruneDone()
		Expect(n).To(Equal(1))

		// the pending tag's payload must still be there after pruning.
		Expect(receiver.Poll(2, 0)).To(BeTrue())
		got := receiver.Recv(2, 0)
		Expect(got.PopUint8()).To(BeEquivalentTo(2))
	})
})
