package hashring_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/wire"
)

var _ = Describe("HashRing", func() {
	It("is deterministic for a fixed member set", func() {
		r := hashring.NewFrom([]int{0, 1, 2, 3, 4})
		for pos := uint64(0); pos < 200; pos++ {
			Expect(r.Lookup(pos)).To(Equal(r.Lookup(pos)))
		}
	})

	It("always returns a current member", func() {
		ids := []int{10, 11, 12, 13}
		r := hashring.NewFrom(ids)
		members := map[int]bool{}
		for _, id := range ids {
			members[id] = true
		}
		for pos := uint64(0); pos < 500; pos++ {
			Expect(members[r.Lookup(pos)]).To(BeTrue())
		}
	})

	It("remaps only a small fraction of keys on insert", func() {
		const n, samples = 20, 20000
		before := hashring.NewFrom(seq(n))
		after := hashring.NewFrom(seq(n + 1))

		moved := 0
		for pos := uint64(0); pos < samples; pos++ {
			if before.Lookup(pos) != after.Lookup(pos) {
				moved++
			}
		}
		// expected fraction ~= 1/(n+1); allow generous slack for sampling noise.
		Expect(float64(moved) / float64(samples)).To(BeNumerically("<", 4.0/float64(n+1)))
	})

	It("round-trips through BinStream", func() {
		r := hashring.NewFrom([]int{5, 2, 9, 1})
		s := wire.New()
		r.MarshalBinStream(s)

		r2 := hashring.New()
		r2.UnmarshalBinStream(s)
		Expect(r2.Snapshot()).To(Equal(r.Snapshot()))
	})

	It("supports remove", func() {
		r := hashring.NewFrom([]int{1, 2, 3})
		Expect(r.NumWorkers()).To(Equal(3))
		r.Remove(2)
		Expect(r.NumWorkers()).To(Equal(2))
		Expect(r.Snapshot()).To(Equal([]int{1, 3}))
	})

	It("hashes string keys consistently", func() {
		r := hashring.NewFrom([]int{0, 1, 2})
		w1 := hashring.HashLookup(r, "foo")
		w2 := hashring.HashLookup(r, "foo")
		Expect(w1).To(Equal(w2))
	})
})

func seq(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
