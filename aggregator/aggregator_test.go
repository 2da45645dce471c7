package aggregator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/bspgraph/bspgraph/aggregator"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/wire"
	"github.com/bspgraph/bspgraph/winfo"
)

type noopTransport struct{}

func (noopTransport) SendPayload(int, uint32, uint32, uint32, *wire.BinStream) error { return nil }
func (noopTransport) SendComplete(int, uint32, uint32, int) error                    { return nil }

func sumCombine(dst *int64, v int64) { *dst += v }
func sumZero() int64                 { return 0 }
func sumSave(w *wire.BinStream, v int64) { w.PushInt64(v) }
func sumLoad(r *wire.BinStream) int64    { return r.PopInt64() }

// singleProcGroup wires one process's worth of workers (numLocal, all in
// this one process) over a real EventLoop, and returns the Group plus a
// Factory per local worker -- a process-local harness, since exercising the
// cross-process leg needs a live Transport that belongs in the transport
// package's own tests.
func singleProcGroup(numLocal int) (*aggregator.Group, []*aggregator.Factory, *mailbox.EventLoop) {
	wi := winfo.New()
	wi.SetProcID(0)
	wi.SetNumProcesses(1)
	wi.SetNumWorkers(numLocal)
	wi.AddProc(0, "localhost")
	for i := 0; i < numLocal; i++ {
		_ = wi.AddWorker(0, i, i)
	}
	loop := mailbox.NewEventLoop(0, func(uint32) int { return 0 }, noopTransport{})
	go loop.Run()

	group := aggregator.NewGroup(wi, loop.Mailbox(0), numLocal)
	factories := make([]*aggregator.Factory, numLocal)
	for i := 0; i < numLocal; i++ {
		factories[i] = aggregator.NewFactory(group, i)
	}
	return group, factories, loop
}

// TestAggregatorSumAcrossWorkers mirrors the classic "every worker updates
// a sum aggregator by its own id" scenario: after one Sync, every worker's
// copy must read the same total, N*(N-1)/2 for N workers numbered 0..N-1.
func TestAggregatorSumAcrossWorkers(t *testing.T) {
	const n = 5
	_, factories, loop := singleProcGroup(n)
	defer loop.Stop()

	aggs := make([]*aggregator.Aggregator[int64], n)
	for i, f := range factories {
		aggs[i] = aggregator.Register(f, "sum", int64(0), sumCombine, sumZero, sumSave, sumLoad)
		aggs[i].Update(int64(i))
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for _, f := range factories {
		f := f
		go func() {
			defer wg.Done()
			if err := f.Sync(context.Background()); err != nil {
				t.Errorf("Sync: %v", err)
			}
		}()
	}
	wg.Wait()

	want := int64(n * (n - 1) / 2)
	for i, agg := range aggs {
		if got := agg.GetValue(); got != want {
			t.Fatalf("worker %d sum = %d, want %d", i, got, want)
		}
	}
}

// TestAggregatorResetEachIteration confirms a ResetEachIteration(true)
// aggregator is zeroed immediately after its value has been folded into
// the cluster-wide total, so updates don't silently accumulate forever.
func TestAggregatorResetEachIteration(t *testing.T) {
	const n = 3
	_, factories, loop := singleProcGroup(n)
	defer loop.Stop()

	aggs := make([]*aggregator.Aggregator[int64], n)
	for i, f := range factories {
		aggs[i] = aggregator.Register(f, "counter", int64(0), sumCombine, sumZero, sumSave, sumLoad)
		aggs[i].ResetEachIteration(true)
		aggs[i].Update(1)
	}

	runSync := func() {
		var wg sync.WaitGroup
		wg.Add(n)
		for _, f := range factories {
			f := f
			go func() {
				defer wg.Done()
				if err := f.Sync(context.Background()); err != nil {
					t.Errorf("Sync: %v", err)
				}
			}()
		}
		wg.Wait()
	}

	runSync()
	for i, agg := range aggs {
		if got := agg.GetValue(); got != n {
			t.Fatalf("after round 1, worker %d = %d, want %d", i, got, n)
		}
	}

	// no further Update calls -- a second Sync should see 0 contributed by
	// everyone, since the reset after round 1 zeroed every local copy.
	runSync()
	for i, agg := range aggs {
		if got := agg.GetValue(); got != 0 {
			t.Fatalf("after round 2, worker %d = %d, want 0 (reset_each_iter)", i, got)
		}
	}
}

// TestAggregatorDeactivateExcludesFromSync confirms an inactive aggregator
// keeps its own local updates but never contributes to, or receives, the
// cluster-wide reduction.
func TestAggregatorDeactivateExcludesFromSync(t *testing.T) {
	const n = 2
	_, factories, loop := singleProcGroup(n)
	defer loop.Stop()

	a0 := aggregator.Register(factories[0], "sum", int64(0), sumCombine, sumZero, sumSave, sumLoad)
	a1 := aggregator.Register(factories[1], "sum", int64(0), sumCombine, sumZero, sumSave, sumLoad)
	a0.Update(100)
	a1.Update(1)
	a0.Deactivate()
	a1.Deactivate()

	var wg sync.WaitGroup
	wg.Add(n)
	for _, f := range factories {
		f := f
		go func() {
			defer wg.Done()
			if err := f.Sync(context.Background()); err != nil {
				t.Errorf("Sync: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := a0.GetValue(); got != 100 {
		t.Fatalf("a0 = %d, want 100 (inactive aggregator must not sync)", got)
	}
	if got := a1.GetValue(); got != 1 {
		t.Fatalf("a1 = %d, want 1 (inactive aggregator must not sync)", got)
	}
}
