// Package cmn provides common constants, types, and utilities shared by the
// master and worker daemons.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "time"

// read-mostly and most often used config values: assigned at startup to
// reduce the number of GCO.Get() calls on the list_execute hot path.

type readMostly struct {
	timeout struct {
		cplane    time.Duration
		keepalive time.Duration
	}
	net struct {
		burstSize    int
		compressMin  int64
		idleTeardown time.Duration
	}
	logLevel   int
	testingEnv bool
}

var Rom readMostly

func (rom *readMostly) Set(cfg *Config) {
	rom.timeout.cplane = cfg.Timeout.CplaneOperation
	rom.timeout.keepalive = cfg.Timeout.MaxKeepalive
	rom.net.burstSize = cfg.Net.BurstSize
	rom.net.compressMin = cfg.Net.CompressionMinSize
	rom.net.idleTeardown = cfg.Net.IdleTeardown
	rom.logLevel = cfg.Log.Level
	rom.testingEnv = cfg.TestingEnv
}

func (rom *readMostly) CplaneOperation() time.Duration { return rom.timeout.cplane }
func (rom *readMostly) MaxKeepalive() time.Duration    { return rom.timeout.keepalive }
func (rom *readMostly) BurstSize() int                 { return rom.net.burstSize }
func (rom *readMostly) CompressionMinSize() int64      { return rom.net.compressMin }
func (rom *readMostly) IdleTeardown() time.Duration    { return rom.net.idleTeardown }
func (rom *readMostly) TestingEnv() bool               { return rom.testingEnv }

func (rom *readMostly) FastV(verbosity int) bool { return rom.logLevel >= verbosity }
