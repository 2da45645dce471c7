// Package atomic provides thin, allocation-free wrappers around sync/atomic
// for the counters and flags shared across the mailbox, engine and stats
// packages -- one word per value, no interface boxing.
package atomic

import "sync/atomic"

type Int64 struct{ v int64 }

func (i *Int64) Load() int64          { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(n int64)        { atomic.StoreInt64(&i.v, n) }
func (i *Int64) Add(n int64) int64    { return atomic.AddInt64(&i.v, n) }
func (i *Int64) Inc() int64           { return i.Add(1) }
func (i *Int64) Dec() int64           { return i.Add(-1) }
func (i *Int64) Swap(n int64) int64   { return atomic.SwapInt64(&i.v, n) }
func (i *Int64) CAS(old, n int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, n)
}

type Int32 struct{ v int32 }

func (i *Int32) Load() int32          { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(n int32)        { atomic.StoreInt32(&i.v, n) }
func (i *Int32) Add(n int32) int32    { return atomic.AddInt32(&i.v, n) }
func (i *Int32) Inc() int32           { return i.Add(1) }
func (i *Int32) Dec() int32           { return i.Add(-1) }
func (i *Int32) CAS(old, n int32) bool {
	return atomic.CompareAndSwapInt32(&i.v, old, n)
}

type Uint64 struct{ v uint64 }

func (u *Uint64) Load() uint64        { return atomic.LoadUint64(&u.v) }
func (u *Uint64) Store(n uint64)      { atomic.StoreUint64(&u.v, n) }
func (u *Uint64) Add(n uint64) uint64 { return atomic.AddUint64(&u.v, n) }
func (u *Uint64) Inc() uint64         { return u.Add(1) }
func (u *Uint64) CAS(old, n uint64) bool {
	return atomic.CompareAndSwapUint64(&u.v, old, n)
}

type Uint32 struct{ v uint32 }

func (u *Uint32) Load() uint32        { return atomic.LoadUint32(&u.v) }
func (u *Uint32) Store(n uint32)      { atomic.StoreUint32(&u.v, n) }
func (u *Uint32) Add(n uint32) uint32 { return atomic.AddUint32(&u.v, n) }
func (u *Uint32) Inc() uint32         { return u.Add(1) }
func (u *Uint32) CAS(old, n uint32) bool {
	return atomic.CompareAndSwapUint32(&u.v, old, n)
}

type Bool struct{ v uint32 }

func (b *Bool) Load() bool { return atomic.LoadUint32(&b.v) != 0 }
func (b *Bool) Store(val bool) {
	if val {
		atomic.StoreUint32(&b.v, 1)
	} else {
		atomic.StoreUint32(&b.v, 0)
	}
}
func (b *Bool) CAS(old, n bool) bool {
	var o, v uint32
	if old {
		o = 1
	}
	if n {
		v = 1
	}
	return atomic.CompareAndSwapUint32(&b.v, o, v)
}

type Value struct{ atomic.Value }
