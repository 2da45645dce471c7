package objlist

import (
	"github.com/bspgraph/bspgraph/cmn/debug"
	"github.com/bspgraph/bspgraph/wire"
)

// attrListI is the type-erased half of an AttrList the owning ObjList needs
// in order to keep every registered side-table in lockstep with data:
// extend it to the list's live size, reorder it by the same permutation
// sort() computed, or splice a tail value into a freshly compacted slot.
type attrListI interface {
	size() int
	resize(n int)
	reorder(order []int)
	move(dest, src int)
	truncate(n int)
	migratePush(w *wire.BinStream, idx int)
	migratePop(r *wire.BinStream, idx int)
}

// AttrCodec lets an AttrList carry its value across a migrate_channel: Push
// serializes the value at a migrating object's old index, Pop reads it back
// at the new index the destination list assigned. A table created without a
// codec simply carries nothing across a migration -- fine for attributes
// that are recomputed rather than carried.
type AttrCodec[V any] struct {
	Push func(*wire.BinStream, V)
	Pop  func(*wire.BinStream) V
}

// AttrList is a typed side-table parallel to an ObjList: index i holds the
// attribute belonging to the object at data index i. Entries past the
// table's own length are implicitly default-valued until first written or
// read, at which point the table lazily grows to the owning list's size.
type AttrList[V any] struct {
	data   []V
	sizeOf func() int
	codec  *AttrCodec[V]
}

func newAttrList[V any](sizeOf func() int, codec *AttrCodec[V]) *AttrList[V] {
	al := &AttrList[V]{sizeOf: sizeOf, codec: codec}
	al.data = make([]V, sizeOf())
	return al
}

// Size returns the table's own backing length, which may lag the owning
// list's live size until the unreached tail is touched.
func (a *AttrList[V]) Size() int { return len(a.data) }

// Get returns the attribute at idx, lazily growing the backing slice first
// if idx falls within the owning list's live size but past this table's
// current length.
func (a *AttrList[V]) Get(idx int) V {
	n := a.sizeOf()
	debug.Assertf(idx >= 0 && idx < n, "objlist: attrlist get index %d out of range (size %d)", idx, n)
	if idx >= len(a.data) {
		a.resize(n)
	}
	return a.data[idx]
}

// Set stores the attribute at idx, with the same lazy-extension rule as Get.
func (a *AttrList[V]) Set(idx int, v V) {
	n := a.sizeOf()
	debug.Assertf(idx >= 0 && idx < n, "objlist: attrlist set index %d out of range (size %d)", idx, n)
	if idx >= len(a.data) {
		a.resize(n)
	}
	a.data[idx] = v
}

func (a *AttrList[V]) size() int { return len(a.data) }

func (a *AttrList[V]) resize(n int) {
	if n <= len(a.data) {
		return
	}
	grown := make([]V, n)
	copy(grown, a.data)
	a.data = grown
}

func (a *AttrList[V]) move(dest, src int) {
	if src >= len(a.data) {
		a.resize(src + 1)
	}
	if dest >= len(a.data) {
		a.resize(dest + 1)
	}
	a.data[dest] = a.data[src]
}

// reorder permutes data in place so that new position i holds the element
// that was previously at order[i] (a gather: new[i] = old[order[i]]), the
// same permutation ObjList.Sort passes as its sorted-index list. Follows
// cycles in the permutation with a -1 sentinel marking positions already
// settled, same shape as a do-while loop: the body always runs once before
// the loop condition is re-checked.
func (a *AttrList[V]) reorder(order []int) {
	n := len(order)
	if n == 0 {
		return
	}
	ord := append([]int(nil), order...)
	if len(a.data) < n {
		a.resize(n)
	}
	src := 0
	for {
		moved := false
		dest := ord[src]
		if dest != -1 {
			switch {
			case dest == src:
				ord[src] = -1
				src++
				moved = true
			case ord[dest] == src:
				a.data[src], a.data[dest] = a.data[dest], a.data[src]
				ord[src] = -1
				ord[dest] = -1
				src++
				moved = true
			case ord[dest] != -1:
				a.data[src], a.data[dest] = a.data[dest], a.data[src]
				ord[src] = -1
				src = dest
				moved = true
			}
		}
		if !moved {
			ord[src] = -1
			src = 0
			for src < n && ord[src] == -1 {
				src++
			}
		}
		if src >= n {
			break
		}
	}
}

// truncate drops the table down to the first n entries, used after
// deletion_finalize shrinks the owning list.
func (a *AttrList[V]) truncate(n int) {
	if n < len(a.data) {
		a.data = a.data[:n]
	}
}

func (a *AttrList[V]) migratePush(w *wire.BinStream, idx int) {
	if a.codec == nil {
		return
	}
	a.codec.Push(w, a.Get(idx))
}

func (a *AttrList[V]) migratePop(r *wire.BinStream, idx int) {
	if a.codec == nil {
		return
	}
	a.Set(idx, a.codec.Pop(r))
}
