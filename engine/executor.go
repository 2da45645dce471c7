package engine

import (
	"cmp"
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bspgraph/bspgraph/channel"
	"github.com/bspgraph/bspgraph/objlist"
)

// ListExecute runs execute over every live object in ol, once per
// iteration, for numIters supersteps: poll and distribute ol's registered
// in-channels, run execute over the non-deleted objects, then flush ol's
// registered out-channels. store resolves ol's registered channel ids.
func ListExecute[K cmp.Ordered, T objlist.Object[K]](store *ChannelStore, ol *objlist.ObjList[K, T], execute func(T), numIters int) {
	for iter := 0; iter < numIters; iter++ {
		runIteration(store.Resolve(ol.InChannelIDs()), store.Resolve(ol.OutChannelIDs()), ol, execute)
	}
}

// ListExecuteWith is ListExecute with an explicit channel set, for callers
// that want to drive channels other than the ones ol itself registered
// (e.g. a subset, or channels belonging to a different list entirely).
func ListExecuteWith[K cmp.Ordered, T objlist.Object[K]](inChannels, outChannels []channel.Channel, ol *objlist.ObjList[K, T], execute func(T), numIters int) {
	for iter := 0; iter < numIters; iter++ {
		runIteration(inChannels, outChannels, ol, execute)
	}
}

func runIteration[K cmp.Ordered, T objlist.Object[K]](inChannels, outChannels []channel.Channel, ol *objlist.ObjList[K, T], execute func(T)) {
	NewChannelManager(inChannels).PollAndDistribute()

	for i := 0; i < ol.VectorLen(); i++ {
		if ol.GetDel(i) {
			continue
		}
		execute(ol.Get(i))
	}

	NewChannelManager(outChannels).Flush()
}

// Source is anything a Load step reads records from until exhausted.
type Source[R any] interface {
	Next() (R, bool)
}

// Load drains src, calling parse on each record (parse is expected to push
// into whatever channels it closes over), then flushes outChannels. Used
// for one-shot ingestion steps that run before the first list_execute, so
// there is no ObjList of live objects to iterate yet.
func Load[R any](src Source[R], outChannels []channel.Channel, parse func(R)) {
	for {
		rec, ok := src.Next()
		if !ok {
			break
		}
		parse(rec)
	}
	NewChannelManager(outChannels).Flush()
}

// RunConcurrent runs each fn to completion concurrently, returning the
// first non-nil error (if any), after every fn has finished. Used to fan
// out list_execute across several independent ObjLists within the same
// superstep boundary instead of running them one after another.
func RunConcurrent(ctx context.Context, fns ...func() error) error {
	g, _ := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(fn)
	}
	return g.Wait()
}
