// Package wire implements the self-describing byte-buffer wire format used
// by every channel, mailbox frame and migrated object in the engine: a
// single codec so a push/migrate/broadcast payload never needs a
// message-specific marshaler.
/*
 * Copyright (c) 2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"math"

	"github.com/bspgraph/bspgraph/cmn/debug"
)

// BinStream is a byte buffer with a read head (front) and an implicit write
// tail (len(buf)). PushX appends at the tail; PopX reads from front and
// advances it. Popping past the tail is a programmer-contract violation and
// is fatal, per the engine's error-handling design: there is no partial-read
// recovery.
type BinStream struct {
	buf   []byte
	front int
}

// New returns an empty, ready-to-push BinStream.
func New() *BinStream { return &BinStream{} }

// NewCap returns an empty BinStream whose backing array is pre-sized to cap.
func NewCap(capHint int) *BinStream { return &BinStream{buf: make([]byte, 0, capHint)} }

// FromBytes wraps b as the stream's backing buffer. The stream takes
// ownership of b; the caller must not mutate b afterward.
func FromBytes(b []byte) *BinStream { return &BinStream{buf: b} }

// Size returns the number of unread bytes remaining.
func (s *BinStream) Size() int { return len(s.buf) - s.front }

// Bytes returns the unread remainder as a slice sharing the stream's backing
// array -- callers must treat it as read-only.
func (s *BinStream) Bytes() []byte { return s.buf[s.front:] }

// Seek repositions the read head. pos must be within [0, len(buf)].
func (s *BinStream) Seek(pos int) {
	debug.Assertf(pos >= 0 && pos <= len(s.buf), "wire: seek %d out of [0,%d]", pos, len(s.buf))
	s.front = pos
}

// Clear resets the stream to empty, retaining its backing array's capacity.
func (s *BinStream) Clear() {
	s.buf = s.buf[:0]
	s.front = 0
}

// Append concatenates other's unread remainder onto s; it does not consume
// other.
func (s *BinStream) Append(other *BinStream) { s.buf = append(s.buf, other.Bytes()...) }

// PushBytes appends src verbatim.
func (s *BinStream) PushBytes(src []byte) { s.buf = append(s.buf, src...) }

// PopBytes reads and consumes n bytes from the head. Insufficient remaining
// bytes is a fatal logic error -- fail fast, per spec.
func (s *BinStream) PopBytes(n int) []byte {
	debug.Assertf(s.front+n <= len(s.buf), "wire: pop %d bytes, only %d available", n, s.Size())
	b := s.buf[s.front : s.front+n]
	s.front += n
	return b
}

//
// fixed-width scalars -- raw native-order (little-endian) bytes
//

func (s *BinStream) PushUint8(v uint8) { s.buf = append(s.buf, v) }
func (s *BinStream) PopUint8() uint8   { return s.PopBytes(1)[0] }

func (s *BinStream) PushBool(v bool) {
	if v {
		s.PushUint8(1)
	} else {
		s.PushUint8(0)
	}
}
func (s *BinStream) PopBool() bool { return s.PopUint8() != 0 }

func (s *BinStream) PushUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}
func (s *BinStream) PopUint16() uint16 { return binary.LittleEndian.Uint16(s.PopBytes(2)) }

func (s *BinStream) PushUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}
func (s *BinStream) PopUint32() uint32 { return binary.LittleEndian.Uint32(s.PopBytes(4)) }

func (s *BinStream) PushUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.buf = append(s.buf, b[:]...)
}
func (s *BinStream) PopUint64() uint64 { return binary.LittleEndian.Uint64(s.PopBytes(8)) }

func (s *BinStream) PushInt8(v int8)   { s.PushUint8(uint8(v)) }
func (s *BinStream) PopInt8() int8    { return int8(s.PopUint8()) }
func (s *BinStream) PushInt16(v int16) { s.PushUint16(uint16(v)) }
func (s *BinStream) PopInt16() int16  { return int16(s.PopUint16()) }
func (s *BinStream) PushInt32(v int32) { s.PushUint32(uint32(v)) }
func (s *BinStream) PopInt32() int32  { return int32(s.PopUint32()) }
func (s *BinStream) PushInt64(v int64) { s.PushUint64(uint64(v)) }
func (s *BinStream) PopInt64() int64  { return int64(s.PopUint64()) }

func (s *BinStream) PushInt(v int)   { s.PushInt64(int64(v)) }
func (s *BinStream) PopInt() int     { return int(s.PopInt64()) }

func (s *BinStream) PushFloat32(v float32) { s.PushUint32(math.Float32bits(v)) }
func (s *BinStream) PopFloat32() float32   { return math.Float32frombits(s.PopUint32()) }
func (s *BinStream) PushFloat64(v float64) { s.PushUint64(math.Float64bits(v)) }
func (s *BinStream) PopFloat64() float64   { return math.Float64frombits(s.PopUint64()) }

// length prefix width for strings/sequences/maps -- platform size_t stand-in;
// the cluster is homogeneous, so a fixed 64-bit count is exact and simpler
// than mirroring a variable-width size_t.
func (s *BinStream) pushCount(n int) { s.PushUint64(uint64(n)) }
func (s *BinStream) popCount() int   { return int(s.PopUint64()) }

//
// strings and byte sequences -- length-prefixed by element count
//

func (s *BinStream) PushString(v string) {
	s.pushCount(len(v))
	s.buf = append(s.buf, v...)
}

func (s *BinStream) PopString() string {
	n := s.popCount()
	return string(s.PopBytes(n))
}

func (s *BinStream) PushByteSlice(v []byte) {
	s.pushCount(len(v))
	s.buf = append(s.buf, v...)
}

func (s *BinStream) PopByteSlice() []byte {
	n := s.popCount()
	b := make([]byte, n)
	copy(b, s.PopBytes(n))
	return b
}

//
// nested streams -- length-prefixed by remaining size, payload follows
//

func (s *BinStream) PushStream(other *BinStream) {
	s.pushCount(other.Size())
	s.PushBytes(other.Bytes())
}

// PopStream reads a nested stream's length prefix and payload and returns it
// as an independent BinStream.
func (s *BinStream) PopStream() *BinStream {
	n := s.popCount()
	b := make([]byte, n)
	copy(b, s.PopBytes(n))
	return FromBytes(b)
}

//
// generic sequences, maps, pairs -- count-prefixed, element order preserved
//

// PushSlice writes len(v) followed by each element via push.
func PushSlice[T any](s *BinStream, v []T, push func(*BinStream, T)) {
	s.pushCount(len(v))
	for _, e := range v {
		push(s, e)
	}
}

// PopSlice reads a count-prefixed sequence written by PushSlice.
func PopSlice[T any](s *BinStream, pop func(*BinStream) T) []T {
	n := s.popCount()
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = pop(s)
	}
	return out
}

// PushMap writes len(v) followed by each (key, value) pair in iteration
// order -- Go map iteration is randomized, so round-trip equality holds only
// as a set/multiset, matching the contract for unordered containers.
func PushMap[K comparable, V any](s *BinStream, v map[K]V, pushK func(*BinStream, K), pushV func(*BinStream, V)) {
	s.pushCount(len(v))
	for k, val := range v {
		pushK(s, k)
		pushV(s, val)
	}
}

func PopMap[K comparable, V any](s *BinStream, popK func(*BinStream) K, popV func(*BinStream) V) map[K]V {
	n := s.popCount()
	out := make(map[K]V, n)
	for range n {
		k := popK(s)
		v := popV(s)
		out[k] = v
	}
	return out
}

// PushPair writes a then b, matching the "pairs are first then second" rule.
func PushPair[A, B any](s *BinStream, a A, b B, pushA func(*BinStream, A), pushB func(*BinStream, B)) {
	pushA(s, a)
	pushB(s, b)
}

func PopPair[A, B any](s *BinStream, popA func(*BinStream) A, popB func(*BinStream) B) (A, B) {
	a := popA(s)
	b := popB(s)
	return a, b
}

// Object is the user-supplied serialization hook; types implementing it
// bypass the trivially-copyable fallback entirely.
type Object interface {
	MarshalBinStream(s *BinStream)
	UnmarshalBinStream(s *BinStream)
}
