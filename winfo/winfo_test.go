package winfo_test

import (
	"testing"

	"github.com/bspgraph/bspgraph/winfo"
)

func newDirectory(t *testing.T) *winfo.WorkerInfo {
	t.Helper()
	w := winfo.New()
	w.SetNumProcesses(2)
	w.SetNumWorkers(4)
	w.AddProc(0, "host-a")
	w.AddProc(1, "host-b")
	return w
}

func TestAddWorkerAndLookup(t *testing.T) {
	w := newDirectory(t)
	if err := w.AddWorker(0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.AddWorker(0, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.AddWorker(1, 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.AddWorker(1, 3, 1); err != nil {
		t.Fatal(err)
	}

	if got := w.ProcIDOf(2); got != 1 {
		t.Fatalf("ProcIDOf(2) = %d, want 1", got)
	}
	if got := w.Host(1); got != "host-b" {
		t.Fatalf("Host(1) = %q", got)
	}
	if got := w.NumLocalWorkers(0); got != 2 {
		t.Fatalf("NumLocalWorkers(0) = %d, want 2", got)
	}
	if got := w.LocalToGlobal(1, 1); got != 3 {
		t.Fatalf("LocalToGlobal(1,1) = %d, want 3", got)
	}
	if got := w.AllGlobalTids(); len(got) != 4 {
		t.Fatalf("AllGlobalTids() = %v, want 4 entries", got)
	}
}

func TestAddWorkerRejectsOutOfRange(t *testing.T) {
	w := newDirectory(t)
	err := w.AddWorker(0, 99, 0)
	if err == nil {
		t.Fatal("expected ErrWorkerIDRange")
	}
}

func TestAddWorkerRejectsDuplicate(t *testing.T) {
	w := newDirectory(t)
	if err := w.AddWorker(0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := w.AddWorker(1, 0, 0); err == nil {
		t.Fatal("expected ErrDuplicateWorker")
	}
}
