// Package objlist holds the partitioned, per-worker containers user graph
// objects live in: a contiguous slice keyed by a stable id(), a deletion
// bitmap, a sorted prefix plus hash-indexed tail for find(), and a set of
// typed AttrList side-tables reordered in lockstep with the objects
// themselves.
package objlist

import (
	"cmp"
	"sort"

	"github.com/bspgraph/bspgraph/cmn/debug"
	"github.com/bspgraph/bspgraph/wire"
)

// Object is anything an ObjList can hold: it must expose a stable,
// comparable, orderable key and be itself comparable so the list can
// recover an object's index by identity (objects are expected to be
// pointer types; index_of compares pointer identity, not value equality).
type Object[K cmp.Ordered] interface {
	comparable
	ID() K
}

// ObjList is an ordered, contiguous sequence of objects of a single type.
// data[0:sortedPrefix) is sorted by ID(); data[sortedPrefix:) is an
// unsorted tail mirrored by hashIndex. Mutated only by its owning worker.
type ObjList[K cmp.Ordered, T Object[K]] struct {
	data         []T
	delBitmap    []bool
	numDel       int
	sortedPrefix int
	hashIndex    map[K]int

	attrLists map[string]attrListI

	inChannels  []uint32
	outChannels []uint32
}

// New returns an empty ObjList.
func New[K cmp.Ordered, T Object[K]]() *ObjList[K, T] {
	return &ObjList[K, T]{
		hashIndex: map[K]int{},
		attrLists: map[string]attrListI{},
	}
}

// AddObject appends obj, returning its index.
func (ol *ObjList[K, T]) AddObject(obj T) int {
	idx := len(ol.data)
	ol.hashIndex[obj.ID()] = idx
	ol.data = append(ol.data, obj)
	ol.delBitmap = append(ol.delBitmap, false)
	return idx
}

func (ol *ObjList[K, T]) findIndex(key K) int {
	lo, hi := 0, ol.sortedPrefix-1
	for lo <= hi {
		mid := (lo + hi) / 2
		id := ol.data[mid].ID()
		switch {
		case id == key:
			return mid
		case id < key:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	if idx, ok := ol.hashIndex[key]; ok {
		return idx
	}
	return -1
}

// Find returns the object registered under key, if any.
func (ol *ObjList[K, T]) Find(key K) (T, bool) {
	idx := ol.findIndex(key)
	if idx < 0 {
		var zero T
		return zero, false
	}
	return ol.data[idx], true
}

// IndexOf recovers obj's current index by looking up its id() and
// confirming identity; fatal if obj is not registered in this list.
func (ol *ObjList[K, T]) IndexOf(obj T) int {
	idx := ol.findIndex(obj.ID())
	debug.Assertf(idx >= 0 && ol.data[idx] == obj, "objlist: index_of: object not registered in this list")
	return idx
}

// DeleteObject marks obj deleted (lazily; deletion_finalize does the
// actual compaction).
func (ol *ObjList[K, T]) DeleteObject(obj T) {
	ol.DeleteAt(ol.IndexOf(obj))
}

// DeleteAt marks the object at idx deleted.
func (ol *ObjList[K, T]) DeleteAt(idx int) {
	debug.Assertf(idx >= 0 && idx < len(ol.data), "objlist: delete_object: index %d out of range", idx)
	if !ol.delBitmap[idx] {
		ol.delBitmap[idx] = true
		ol.numDel++
	}
}

// GetDel reports whether the object at idx is marked deleted.
func (ol *ObjList[K, T]) GetDel(idx int) bool { return ol.delBitmap[idx] }

// Get returns the object at idx, deleted or not.
func (ol *ObjList[K, T]) Get(idx int) T { return ol.data[idx] }

// Len is the number of live (non-deleted) objects.
func (ol *ObjList[K, T]) Len() int { return len(ol.data) - ol.numDel }

// VectorLen is the raw backing length, deleted objects included.
func (ol *ObjList[K, T]) VectorLen() int { return len(ol.data) }

// SortedPrefix is the length of the sorted prefix of data.
func (ol *ObjList[K, T]) SortedPrefix() int { return ol.sortedPrefix }

// NumDeleted is the number of objects currently marked deleted.
func (ol *ObjList[K, T]) NumDeleted() int { return ol.numDel }

// HashedSize is the number of entries in the unsorted tail's hash index.
func (ol *ObjList[K, T]) HashedSize() int { return len(ol.hashIndex) }

// Sort stable-sorts data by ID(), permutes every registered AttrList by the
// same permutation, clears the hash index and sets sortedPrefix to the
// whole list.
func (ol *ObjList[K, T]) Sort() {
	n := len(ol.data)
	if n == 0 {
		return
	}
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool {
		return ol.data[idxs[i]].ID() < ol.data[idxs[j]].ID()
	})
	reorderSlice(ol.data, idxs)
	for _, al := range ol.attrLists {
		al.reorder(idxs)
	}
	ol.hashIndex = map[K]int{}
	ol.sortedPrefix = n
}

// DeletionFinalize compacts data by moving every live object down into the
// first available slot, mirroring the move into every registered
// AttrList, then shrinks to the live count and clears the bitmap.
func (ol *ObjList[K, T]) DeletionFinalize() {
	if len(ol.data) == 0 || ol.numDel == 0 {
		return
	}
	write := 0
	for read := 0; read < len(ol.data); read++ {
		if ol.delBitmap[read] {
			continue
		}
		if write != read {
			ol.data[write] = ol.data[read]
			for _, al := range ol.attrLists {
				al.move(write, read)
			}
		}
		write++
	}
	ol.data = ol.data[:write]
	ol.delBitmap = make([]bool, write)
	for _, al := range ol.attrLists {
		al.truncate(write)
	}
	ol.hashIndex = make(map[K]int, write)
	for i := 0; i < write; i++ {
		ol.hashIndex[ol.data[i].ID()] = i
	}
	ol.sortedPrefix = 0
	ol.numDel = 0
}

// RegisterInChannel records cid as a channel feeding this list's inbound
// side; list_execute iterates InChannelIDs once per superstep.
func (ol *ObjList[K, T]) RegisterInChannel(cid uint32) { ol.inChannels = appendID(ol.inChannels, cid) }

// DeregisterInChannel removes cid from the in-channel set.
func (ol *ObjList[K, T]) DeregisterInChannel(cid uint32) {
	ol.inChannels = removeID(ol.inChannels, cid)
}

// RegisterOutChannel records cid as a channel this list flushes out through.
func (ol *ObjList[K, T]) RegisterOutChannel(cid uint32) {
	ol.outChannels = appendID(ol.outChannels, cid)
}

// DeregisterOutChannel removes cid from the out-channel set.
func (ol *ObjList[K, T]) DeregisterOutChannel(cid uint32) {
	ol.outChannels = removeID(ol.outChannels, cid)
}

// InChannelIDs returns the channel ids registered as inbound to this list.
func (ol *ObjList[K, T]) InChannelIDs() []uint32 { return append([]uint32(nil), ol.inChannels...) }

// OutChannelIDs returns the channel ids registered as outbound from this list.
func (ol *ObjList[K, T]) OutChannelIDs() []uint32 { return append([]uint32(nil), ol.outChannels...) }

func appendID(ids []uint32, id uint32) []uint32 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []uint32, id uint32) []uint32 {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// CreateAttrList registers a new, empty AttrList of type V under name,
// sized to the list's current live count. codec may be nil for attributes
// that never need to cross a migrate_channel.
func CreateAttrList[V any, K cmp.Ordered, T Object[K]](ol *ObjList[K, T], name string, codec *AttrCodec[V]) *AttrList[V] {
	al := newAttrList[V](ol.Len, codec)
	ol.attrLists[name] = al
	return al
}

// GetAttrList returns the AttrList of type V registered under name; fatal
// if absent or if V doesn't match the type it was created with.
func GetAttrList[V any, K cmp.Ordered, T Object[K]](ol *ObjList[K, T], name string) *AttrList[V] {
	al, ok := ol.attrLists[name]
	debug.Assertf(ok, "objlist: attrlist %q not registered", name)
	typed, ok := al.(*AttrList[V])
	debug.Assertf(ok, "objlist: attrlist %q type mismatch", name)
	return typed
}

// DelAttrList drops the side-table registered under name.
func (ol *ObjList[K, T]) DelAttrList(name string) { delete(ol.attrLists, name) }

func (ol *ObjList[K, T]) attrNames() []string {
	names := make([]string, 0, len(ol.attrLists))
	for name := range ol.attrLists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MigrateAttribute serializes every registered AttrList's value at idx into
// w, in name-sorted order, for a migrate_channel carrying the object at idx
// to another worker. Source and destination ObjLists of the same object
// type must register attributes under the same names for ProcessAttribute
// to line values back up correctly.
func (ol *ObjList[K, T]) MigrateAttribute(w *wire.BinStream, idx int) {
	for _, name := range ol.attrNames() {
		ol.attrLists[name].migratePush(w, idx)
	}
}

// ProcessAttribute is MigrateAttribute's inverse: it reads back, in the same
// name-sorted order, the values a migrate_channel serialized for the object
// just inserted at idx.
func (ol *ObjList[K, T]) ProcessAttribute(r *wire.BinStream, idx int) {
	for _, name := range ol.attrNames() {
		ol.attrLists[name].migratePop(r, idx)
	}
}

// reorderSlice permutes data in place so that new position i holds the
// element that was previously at order[i] (a gather: new[i] = old[order[i]]).
// Follows cycles in the permutation using a -1 sentinel to mark settled
// positions.
func reorderSlice[T any](data []T, order []int) {
	n := len(order)
	if n == 0 {
		return
	}
	ord := append([]int(nil), order...)
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
				data[src], data[dest] = data[dest], data[src]
				ord[src] = -1
				ord[dest] = -1
				src++
				moved = true
			case ord[dest] != -1:
				data[src], data[dest] = data[dest], data[src]
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
