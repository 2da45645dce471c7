// Package main is the worker daemon: it performs the bootstrap sequence
// described in the external interface -- load config, build the static
// WorkerInfo directory from a topology file, stand up the mailbox's event
// loop and central receiver, join the master and fetch the completed hash
// ring, and hand off to the housekeeping registrar -- then blocks,
// ready for an embedding application to register its own channels against
// the now-live ChannelStore.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// topology describes the cluster every process reads identically at
// startup: one entry per process, in process-id order, each listing the
// global worker ids resident on it (in local-id order). WorkerInfo is
// "a static directory populated at startup" -- this file is that static
// input, the Go-native stand-in for whatever out-of-band mechanism
// originally seeded every process with the same worker_info at launch.
type topology struct {
	Processes []topoProcess `json:"processes"`
}

type topoProcess struct {
	Hostname  string `json:"hostname"`
	GlobalIDs []int  `json:"global_ids"`
}

func loadTopology(path string) (*topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var t topology
	if err := json.NewDecoder(f).Decode(&t); err != nil {
		return nil, err
	}
	if len(t.Processes) == 0 {
		return nil, fmt.Errorf("bspworker: topology %q declares no processes", path)
	}
	for pid, p := range t.Processes {
		if len(p.GlobalIDs) == 0 {
			return nil, fmt.Errorf("bspworker: process %d declares no workers", pid)
		}
	}
	return &t, nil
}

func (t *topology) numWorkers() int {
	n := 0
	for _, p := range t.Processes {
		n += len(p.GlobalIDs)
	}
	return n
}
