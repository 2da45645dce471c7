package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTopology(t *testing.T, procs []topoProcess) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.json")
	data, err := json.Marshal(topology{Processes: procs})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadTopology(t *testing.T) {
	path := writeTopology(t, []topoProcess{
		{Hostname: "host-0", GlobalIDs: []int{0, 1}},
		{Hostname: "host-1", GlobalIDs: []int{2, 3, 4}},
	})

	topo, err := loadTopology(path)
	if err != nil {
		t.Fatalf("loadTopology: %v", err)
	}
	if got := topo.numWorkers(); got != 5 {
		t.Fatalf("numWorkers = %d, want 5", got)
	}
	if topo.Processes[1].Hostname != "host-1" {
		t.Fatalf("hostname = %q, want host-1", topo.Processes[1].Hostname)
	}
}

func TestLoadTopologyRejectsEmptyProcess(t *testing.T) {
	path := writeTopology(t, []topoProcess{
		{Hostname: "host-0", GlobalIDs: nil},
	})
	if _, err := loadTopology(path); err == nil {
		t.Fatal("expected an error for a process with no workers")
	}
}

func TestLoadTopologyRejectsMissingFile(t *testing.T) {
	if _, err := loadTopology(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestBuildWorkerInfo(t *testing.T) {
	topo := &topology{Processes: []topoProcess{
		{Hostname: "host-0", GlobalIDs: []int{0, 1}},
		{Hostname: "host-1", GlobalIDs: []int{2, 3, 4}},
	}}

	wi := buildWorkerInfo(topo, 1)
	if wi.NumProcesses() != 2 {
		t.Fatalf("NumProcesses = %d, want 2", wi.NumProcesses())
	}
	if wi.NumWorkers() != 5 {
		t.Fatalf("NumWorkers = %d, want 5", wi.NumWorkers())
	}
	if wi.ProcIDOf(3) != 1 {
		t.Fatalf("ProcIDOf(3) = %d, want 1", wi.ProcIDOf(3))
	}
	if wi.Host(0) != "host-0" {
		t.Fatalf("Host(0) = %q, want host-0", wi.Host(0))
	}
	if got := wi.TidsByPid(1); len(got) != 3 || got[0] != 2 {
		t.Fatalf("TidsByPid(1) = %v, want [2 3 4]", got)
	}
}
