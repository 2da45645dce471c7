// Package nlog - engine-wide logger: buffering, timestamping, severity
// levels, file rotation. Hand-rolled (no logrus/zap) on purpose: one small
// severity-leveled writer per process is all the daemons need.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bspgraph/bspgraph/cmn/atomic"
	"github.com/bspgraph/bspgraph/cmn/mono"
)

const (
	maxLineSize = 2 * 1024
	fixedSize   = 64 * 1024
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevText = [...]string{"INFO", "WARN", "ERROR"}

// fixed is a fixed-capacity append-only buffer recycled through pool -- one
// "page" of pending log lines between flushes.
type fixed struct {
	b []byte
}

func newFixed() *fixed { return &fixed{b: make([]byte, 0, fixedSize)} }

func (f *fixed) length() int { return len(f.b) }
func (f *fixed) avail() int  { return cap(f.b) - len(f.b) }
func (f *fixed) write(s string) { f.b = append(f.b, s...) }
func (f *fixed) reset()         { f.b = f.b[:0] }

var pool = sync.Pool{New: func() any { return newFixed() }}

func (f *fixed) free() {
	f.reset()
	pool.Put(f)
}

type nlogger struct {
	mw      sync.Mutex
	sev     severity
	file    *os.File
	pw      *fixed
	toFlush []*fixed
	written int64
	last    atomic.Int64
	oob     atomic.Bool
}

func (nl *nlogger) get() { nl.pw = pool.Get().(*fixed) }

func (nl *nlogger) since(now int64) time.Duration { return time.Duration(now - nl.last.Load()) }

func (nl *nlogger) write(line string) {
	nl.mw.Lock()
	if nl.pw == nil {
		nl.get()
	}
	if nl.pw.avail() < len(line) {
		nl.toFlush = append(nl.toFlush, nl.pw)
		nl.get()
		nl.oob.Store(true)
	}
	nl.pw.write(line)
	nl.last.Store(mono.NanoTime())
	doFlush := len(nl.toFlush) > 0
	nl.mw.Unlock()

	if doFlush {
		nl.flush()
	}
}

func (nl *nlogger) flush() {
	nl.mw.Lock()
	toFlush := nl.toFlush
	nl.toFlush = nil
	if nl.file == nil {
		f, err := fcreate(nl.sev, time.Now())
		if err == nil {
			nl.file = f
		}
	}
	file := nl.file
	nl.mw.Unlock()

	for _, fx := range toFlush {
		if file != nil {
			n, _ := file.Write(fx.b)
			nl.written += int64(n)
		}
		fx.free()
	}
	nl.oob.Store(false)

	if file != nil && nl.written >= MaxSize {
		nl.mw.Lock()
		nl.file.Close()
		if f, err := fcreate(nl.sev, time.Now()); err == nil {
			nl.file = f
			nl.written = 0
		}
		nl.mw.Unlock()
	}
}

var (
	toStderr     bool
	alsoToStderr bool

	logDir, aisrole, title, host string
	pid                          = os.Getpid()

	onceInitFiles sync.Once

	nlogs [3]*nlogger

	// redactFnames holds source basenames whose "file:line " caller prefix
	// is left out of log lines altogether. Every other caller is logged by
	// basename and line only, never by its full build-machine path.
	redactFnames = map[string]bool{}
)

func init() {
	host, _ = os.Hostname()
	for s := sevInfo; s <= sevErr; s++ {
		nlogs[s] = &nlogger{sev: s}
	}
}

func initFiles() {
	if logDir == "" {
		return
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "nlog: cannot create log dir:", err)
		logDir = ""
	}
}

func assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprint(append([]any{"nlog assertion failed:"}, args...)...))
	}
}

func sname() string {
	role := aisrole
	if role == "" {
		role = "bspworker"
	}
	return role
}

func fcreate(sev severity, now time.Time) (*os.File, error) {
	assert(sev >= sevInfo && sev <= sevErr, "bad severity", sev)
	if logDir == "" {
		return os.Stderr, nil
	}
	name := fmt.Sprintf("%s.%s.%s.%02d%02d-%02d%02d%02d.%d.log",
		sname(), host, sevText[sev], now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), pid)
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if title != "" {
		f.WriteString(title + "\n")
	}
	return f, nil
}

func log(sev severity, depth int, format string, args ...any) {
	onceInitFiles.Do(initFiles)
	line := sprintf(sev, depth+1, format, args...)
	if toStderr {
		os.Stderr.WriteString(line)
		return
	}
	if alsoToStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}
	if sev == sevWarn {
		nlogs[sevErr].write(line)
		nlogs[sevInfo].write(line)
		return
	}
	nlogs[sev].write(line)
}

// Fatalf logs at error severity, flushes every stream, and terminates the
// process -- reserved for programmer-contract violations and irrecoverable
// network errors.
func Fatalf(format string, args ...any) {
	log(sevErr, 1, format, args...)
	Flush(true)
	os.Exit(1)
}

func sprintf(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevText[sev][0])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 1); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		if !redactFnames[fn] {
			b.WriteString(fn)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(ln))
			b.WriteByte(' ')
		}
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	return b.String()
}
