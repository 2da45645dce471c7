package hk_test

import (
	"time"

	"github.com/bspgraph/bspgraph/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	BeforeEach(func() {
		hk.TestInit()
		go hk.DefaultHK.Run()
		hk.WaitStarted()
	})

	It("fires immediately when no interval is given", func() {
		fired := false
		hk.Reg("", func() time.Duration {
			fired = true
			return time.Second
		})

		time.Sleep(20 * time.Millisecond)
		Expect(fired).To(BeTrue())
	})

	It("waits the given interval before its first fire", func() {
		fired := false
		hk.Reg("", func() time.Duration {
			fired = true
			return time.Second
		}, time.Second)

		time.Sleep(500 * time.Millisecond)
		Expect(fired).To(BeFalse())

		time.Sleep(700 * time.Millisecond)
		Expect(fired).To(BeTrue())
	})

	It("runs multiple callbacks on their own schedules", func() {
		fired := make([]bool, 2)
		hk.Reg("foo", func() time.Duration {
			fired[0] = true
			return 2 * time.Second
		})
		hk.Reg("bar", func() time.Duration {
			fired[1] = true
			return time.Second + 500*time.Millisecond
		})

		time.Sleep(20 * time.Millisecond)
		Expect(fired[0]).To(BeTrue())
		Expect(fired[1]).To(BeTrue())
		fired[0], fired[1] = false, false

		time.Sleep(700 * time.Millisecond)
		Expect(fired[0] || fired[1]).To(BeFalse())

		time.Sleep(time.Second)
		Expect(fired[0]).To(BeFalse())
		Expect(fired[1]).To(BeTrue())
	})

	It("stops firing once unregistered", func() {
		fired := false
		hk.Reg("bar", func() time.Duration {
			fired = true
			return 200 * time.Millisecond
		}, 200*time.Millisecond)

		time.Sleep(300 * time.Millisecond)
		Expect(fired).To(BeTrue())
		fired = false

		hk.Unreg("bar")
		time.Sleep(500 * time.Millisecond)
		Expect(fired).To(BeFalse())
	})
})
