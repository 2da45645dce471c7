package objlist_test

import (
	"testing"

	"github.com/bspgraph/bspgraph/objlist"
)

type vertex struct {
	key int
	val string
}

func (v *vertex) ID() int { return v.key }

func newVertex(key int, val string) *vertex { return &vertex{key: key, val: val} }

func TestAddFindIndexOf(t *testing.T) {
	ol := objlist.New[int, *vertex]()
	a := newVertex(3, "a")
	b := newVertex(1, "b")
	c := newVertex(2, "c")

	ol.AddObject(a)
	ol.AddObject(b)
	ol.AddObject(c)

	if ol.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ol.Len())
	}
	for _, want := range []*vertex{a, b, c} {
		got, ok := ol.Find(want.key)
		if !ok || got != want {
			t.Fatalf("Find(%d) = %v,%v want %v,true", want.key, got, ok, want)
		}
	}
	for i := 0; i < ol.Len(); i++ {
		obj := ol.Get(i)
		if ol.IndexOf(obj) != i {
			t.Fatalf("IndexOf(get(%d)) = %d, want %d", i, ol.IndexOf(obj), i)
		}
	}
}

func TestDeleteAndFinalize(t *testing.T) {
	ol := objlist.New[int, *vertex]()
	objs := []*vertex{newVertex(10, ""), newVertex(20, ""), newVertex(30, "")}
	for _, o := range objs {
		ol.AddObject(o)
	}
	ol.DeleteObject(objs[1])

	if ol.Len() != 2 {
		t.Fatalf("Len() after delete = %d, want 2", ol.Len())
	}
	if _, ok := ol.Find(20); ok {
		t.Fatalf("Find(20) should not find a logically-deleted object by key lookup alone")
	}

	ol.DeletionFinalize()
	if ol.NumDeleted() != 0 {
		t.Fatalf("NumDeleted() after finalize = %d, want 0", ol.NumDeleted())
	}
	if ol.VectorLen() != 2 {
		t.Fatalf("VectorLen() after finalize = %d, want 2", ol.VectorLen())
	}
	for _, want := range []*vertex{objs[0], objs[2]} {
		got, ok := ol.Find(want.key)
		if !ok || got != want {
			t.Fatalf("Find(%d) after finalize = %v,%v want %v,true", want.key, got, ok, want)
		}
	}
}

func TestSortOrdersDataAndFindsViaBinarySearch(t *testing.T) {
	ol := objlist.New[int, *vertex]()
	ids := []int{50, 10, 40, 20, 30}
	for _, id := range ids {
		ol.AddObject(newVertex(id, ""))
	}
	ol.Sort()

	if ol.SortedPrefix() != ol.VectorLen() {
		t.Fatalf("SortedPrefix() = %d, want %d", ol.SortedPrefix(), ol.VectorLen())
	}
	if ol.HashedSize() != 0 {
		t.Fatalf("HashedSize() after sort = %d, want 0", ol.HashedSize())
	}
	for i := 0; i < ol.Len()-1; i++ {
		if ol.Get(i).ID() >= ol.Get(i+1).ID() {
			t.Fatalf("data not sorted at index %d: %d >= %d", i, ol.Get(i).ID(), ol.Get(i+1).ID())
		}
	}
	for _, id := range ids {
		if _, ok := ol.Find(id); !ok {
			t.Fatalf("Find(%d) failed after sort", id)
		}
	}
}

func TestAttrListFollowsSortAndFinalize(t *testing.T) {
	ol := objlist.New[int, *vertex]()
	objs := map[int]*vertex{}
	for _, id := range []int{5, 3, 4, 1, 2} {
		v := newVertex(id, "")
		objs[id] = v
		ol.AddObject(v)
	}
	weight := objlist.CreateAttrList[int](ol, "weight", nil)
	for id, v := range objs {
		weight.Set(ol.IndexOf(v), id*10)
	}

	ol.Sort()
	for id, v := range objs {
		if got := weight.Get(ol.IndexOf(v)); got != id*10 {
			t.Fatalf("weight[%d] after sort = %d, want %d", id, got, id*10)
		}
	}

	ol.DeleteObject(objs[3])
	ol.DeletionFinalize()
	delete(objs, 3)
	for id, v := range objs {
		idx := ol.IndexOf(v)
		if got := weight.Get(idx); got != id*10 {
			t.Fatalf("weight[%d] after finalize = %d, want %d", id, got, id*10)
		}
	}
}

func TestAttrListLazyExtension(t *testing.T) {
	ol := objlist.New[int, *vertex]()
	v0 := newVertex(1, "")
	ol.AddObject(v0)
	labels := objlist.CreateAttrList[string](ol, "labels", nil)
	if labels.Size() != 1 {
		t.Fatalf("Size() right after create = %d, want 1", labels.Size())
	}

	v1 := newVertex(2, "")
	ol.AddObject(v1)
	// labels has not been touched for index 1 yet; Get must lazily grow.
	if got := labels.Get(1); got != "" {
		t.Fatalf("Get(1) before any Set = %q, want zero value", got)
	}
	if labels.Size() != 2 {
		t.Fatalf("Size() after lazy extension = %d, want 2", labels.Size())
	}
	labels.Set(1, "hello")
	if labels.Get(1) != "hello" {
		t.Fatalf("Get(1) after Set = %q, want hello", labels.Get(1))
	}
}

func TestChannelRegistration(t *testing.T) {
	ol := objlist.New[int, *vertex]()
	ol.RegisterInChannel(7)
	ol.RegisterInChannel(9)
	ol.RegisterOutChannel(7)

	if got := ol.InChannelIDs(); len(got) != 2 {
		t.Fatalf("InChannelIDs() = %v, want 2 entries", got)
	}
	ol.DeregisterInChannel(7)
	if got := ol.InChannelIDs(); len(got) != 1 || got[0] != 9 {
		t.Fatalf("InChannelIDs() after deregister = %v, want [9]", got)
	}
	if got := ol.OutChannelIDs(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("OutChannelIDs() = %v, want [7]", got)
	}
}
