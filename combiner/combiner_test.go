package combiner_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/bspgraph/bspgraph/combiner"
)

func TestCombineSingleSum(t *testing.T) {
	buf := []combiner.Pair[int, int64]{
		{Key: 3, Val: 1}, {Key: 1, Val: 2}, {Key: 3, Val: 4}, {Key: 2, Val: 5}, {Key: 1, Val: 1},
	}
	got := combiner.CombineSingle(buf, combiner.SumCombiner[int64]())
	want := []combiner.Pair[int, int64]{{Key: 1, Val: 3}, {Key: 2, Val: 5}, {Key: 3, Val: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CombineSingle = %v, want %v", got, want)
	}
}

func TestIdenCombineSingleDedups(t *testing.T) {
	buf := []combiner.Pair[int, string]{
		{Key: 1, Val: "a"}, {Key: 1, Val: "a"}, {Key: 1, Val: "b"}, {Key: 2, Val: "a"},
	}
	got := combiner.IdenCombineSingle(buf)
	want := []combiner.Pair[int, string]{{Key: 1, Val: "a"}, {Key: 1, Val: "b"}, {Key: 2, Val: "a"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("IdenCombineSingle = %v, want %v", got, want)
	}
}

func TestBackCombine(t *testing.T) {
	var buf []combiner.Pair[int, int64]
	sum := combiner.SumCombiner[int64]()
	buf = combiner.BackCombine(buf, 1, 10, sum)
	buf = combiner.BackCombine(buf, 1, 5, sum)
	buf = combiner.BackCombine(buf, 2, 1, sum)
	want := []combiner.Pair[int, int64]{{Key: 1, Val: 15}, {Key: 2, Val: 1}}
	if !reflect.DeepEqual(buf, want) {
		t.Fatalf("BackCombine = %v, want %v", buf, want)
	}
}

// TestShuffleCombinerRoundTrip exercises the full N-local-worker rendezvous:
// every worker scatters pairs destined for every peer (itself included),
// then each worker's Ready call must see exactly the union of everyone's
// contribution addressed to it, combined.
func TestShuffleCombinerRoundTrip(t *testing.T) {
	const n = 4
	sc := combiner.New[int, int64](n)

	var wg sync.WaitGroup
	results := make([][]combiner.Pair[int, int64], n)
	for src := 0; src < n; src++ {
		wg.Add(1)
		go func(src int) {
			defer wg.Done()
			for dst := 0; dst < n; dst++ {
				sc.Add(dst, src /* key = contributing worker id */, int64(1))
			}
			results[src] = sc.Ready(src, combiner.SumCombiner[int64]())
		}(src)
	}
	wg.Wait()

	for dst := 0; dst < n; dst++ {
		got := results[dst]
		if len(got) != n {
			t.Fatalf("worker %d inbound has %d keys, want %d", dst, len(got), n)
		}
		for _, p := range got {
			if p.Val != 1 {
				t.Fatalf("worker %d key %d = %d, want 1 (one contribution per source)", dst, p.Key, p.Val)
			}
		}
	}
}
