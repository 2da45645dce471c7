// Package winfo is the static process/worker directory every other
// component resolves global_tid <-> process_id through: built once at
// startup from TYPE_JOIN announcements, immutable for the life of the job.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package winfo

import (
	"sort"

	"github.com/bspgraph/bspgraph/cmn/debug"
)

// ErrDuplicateWorker and ErrWorkerIDRange are returned by AddWorker instead
// of silently overwriting -- per spec.md's open-question decision, this
// implementation treats a re-used or out-of-range global id as a hard
// error rather than preserving the original's lax resize-and-overwrite
// behavior.
type (
	ErrDuplicateWorker struct{ GlobalID int }
	ErrWorkerIDRange   struct{ GlobalID, NumWorkers int }
)

func (e *ErrDuplicateWorker) Error() string {
	return "winfo: global worker id already registered"
}

func (e *ErrWorkerIDRange) Error() string {
	return "winfo: global worker id out of configured range"
}

// WorkerInfo is a flat, append-only directory: processes and their worker
// counts are declared up front via SetNumProcesses/SetNumWorkers, then each
// worker is registered exactly once via AddWorker/AddProc.
type WorkerInfo struct {
	procID     int
	numProc    int
	numWorkers int

	globalToProc  []int      // global_tid -> proc id, -1 until registered
	host          []string   // proc id -> hostname
	localToGlobal [][]int    // proc id -> ordered list of its global tids
	registered    map[int]bool
}

// New returns an empty directory; SetProcID, SetNumProcesses and
// SetNumWorkers must be called once each before AddWorker/AddProc.
func New() *WorkerInfo {
	return &WorkerInfo{procID: -1, numProc: -1, numWorkers: -1, registered: map[int]bool{}}
}

func (w *WorkerInfo) SetProcID(pid int) { w.procID = pid }

func (w *WorkerInfo) SetNumProcesses(n int) {
	w.numProc = n
	w.host = make([]string, n)
	w.localToGlobal = make([][]int, n)
}

func (w *WorkerInfo) SetNumWorkers(n int) {
	w.numWorkers = n
	w.globalToProc = make([]int, n)
	for i := range w.globalToProc {
		w.globalToProc[i] = -1
	}
}

// AddProc records the hostname of a process id.
func (w *WorkerInfo) AddProc(procID int, hostname string) {
	debug.Assertf(procID >= 0 && procID < w.numProc, "winfo: proc id %d out of [0,%d)", procID, w.numProc)
	w.host[procID] = hostname
}

// AddWorker registers globalWorkerID as the localWorkerID-th worker of
// procID. Returns an error if globalWorkerID is out of [0, numWorkers) or
// already registered.
func (w *WorkerInfo) AddWorker(procID, globalWorkerID, localWorkerID int) error {
	if globalWorkerID < 0 || globalWorkerID >= w.numWorkers {
		return &ErrWorkerIDRange{GlobalID: globalWorkerID, NumWorkers: w.numWorkers}
	}
	if w.registered[globalWorkerID] {
		return &ErrDuplicateWorker{GlobalID: globalWorkerID}
	}
	debug.Assertf(procID >= 0 && procID < w.numProc, "winfo: proc id %d out of [0,%d)", procID, w.numProc)

	w.globalToProc[globalWorkerID] = procID
	w.registered[globalWorkerID] = true

	local := w.localToGlobal[procID]
	for len(local) <= localWorkerID {
		local = append(local, -1)
	}
	local[localWorkerID] = globalWorkerID
	w.localToGlobal[procID] = local
	return nil
}

func (w *WorkerInfo) NumWorkers() int   { return w.numWorkers }
func (w *WorkerInfo) NumProcesses() int { return w.numProc }
func (w *WorkerInfo) ProcID() int       { return w.procID }

func (w *WorkerInfo) ProcIDOf(globalWorkerID int) int {
	debug.Assertf(globalWorkerID >= 0 && globalWorkerID < len(w.globalToProc), "winfo: bad global id %d", globalWorkerID)
	return w.globalToProc[globalWorkerID]
}

func (w *WorkerInfo) NumLocalWorkers(procID int) int { return len(w.localToGlobal[procID]) }

func (w *WorkerInfo) TidsByPid(procID int) []int { return w.localToGlobal[procID] }

func (w *WorkerInfo) Host(procID int) string { return w.host[procID] }

func (w *WorkerInfo) LocalToGlobal(procID, localWorkerID int) int {
	return w.localToGlobal[procID][localWorkerID]
}

// AllGlobalTids returns every registered global tid in sorted order --
// used to seed a HashRing from the completed directory.
func (w *WorkerInfo) AllGlobalTids() []int {
	out := make([]int, 0, len(w.registered))
	for id := range w.registered {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
