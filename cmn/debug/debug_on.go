//go:build debug

// Package provides debug utilities
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/bspgraph/bspgraph/cmn/nlog"
)

func ON() bool { return true }

func Infof(format string, a ...any) { nlog.InfoDepth(1, fmt.Sprintf(format, a...)) }

func Func(f func()) { f() }

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

func AssertFunc(f func() bool, args ...any) { Assert(f(), args...) }
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, a...))
	}
}

func AssertNotPstr(v any) {
	Assertf(v != nil, "unexpected nil pointer/string")
}

func FailTypeCast(v any) {
	panic(fmt.Sprintf("unexpected type: %T", v))
}

// best-effort: Go mutexes don't expose lock state, so these remain no-ops
// even in debug builds -- kept for call-site symmetry with the teacher.
func AssertMutexLocked(_ *sync.Mutex)      {}
func AssertRWMutexLocked(_ *sync.RWMutex)  {}
func AssertRWMutexRLocked(_ *sync.RWMutex) {}

func Handlers() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{}
}
