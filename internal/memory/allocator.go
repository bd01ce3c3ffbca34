package memory

import "sort"

// extent is a single live allocation: [base, base+length).
type extent struct {
	base   uint64
	length uint64
}

// allocator tracks the occupied extents within a heap region and performs
// first-fit allocation per spec.md §3/§4.2. It preserves the invariant that
// no two live extents overlap.
type allocator struct {
	regionStart uint64
	regionEnd   uint64
	live        []extent // kept sorted by base
	freed       map[uint64]struct{}
}

func newAllocator(start, end uint64) *allocator {
	return &allocator{regionStart: start, regionEnd: end, freed: make(map[uint64]struct{})}
}

// alloc finds the first gap of at least n bytes, in address order, and
// occupies it. Reports ok=false if no such gap exists (OutOfHeap).
func (a *allocator) alloc(n uint64) (base uint64, ok bool) {
	if n == 0 {
		return 0, false
	}

	cursor := a.regionStart
	for _, e := range a.live {
		if e.base-cursor >= n {
			break
		}
		cursor = e.base + e.length
	}
	if a.regionEnd-cursor < n {
		return 0, false
	}

	a.insert(extent{base: cursor, length: n})
	delete(a.freed, cursor) // the base is live again; a later free of it is not a double-free
	return cursor, true
}

func (a *allocator) insert(e extent) {
	idx := sort.Search(len(a.live), func(i int) bool { return a.live[i].base >= e.base })
	a.live = append(a.live, extent{})
	copy(a.live[idx+1:], a.live[idx:])
	a.live[idx] = e
}

func (a *allocator) indexOf(base uint64) int {
	idx := sort.Search(len(a.live), func(i int) bool { return a.live[i].base >= base })
	if idx < len(a.live) && a.live[idx].base == base {
		return idx
	}
	return -1
}

// free releases the extent based at addr. Reports ok=false if no live
// extent starts there; the caller distinguishes DoubleFree from UnknownFree
// by consulting alreadyFreed.
func (a *allocator) free(addr uint64) (length uint64, ok bool) {
	idx := a.indexOf(addr)
	if idx < 0 {
		return 0, false
	}
	length = a.live[idx].length
	a.live = append(a.live[:idx], a.live[idx+1:]...)
	a.freed[addr] = struct{}{}
	return length, true
}

// alreadyFreed reports whether addr was the base of an extent this
// allocator has since released and not since reallocated, i.e. whether a
// failing free of addr is a DoubleFree rather than an UnknownFree.
func (a *allocator) alreadyFreed(addr uint64) bool {
	_, ok := a.freed[addr]
	return ok
}

// growInPlace extends the extent based at addr to newLen without moving it,
// if the following gap is large enough. Reports ok=false otherwise, or if
// addr is not a live extent.
func (a *allocator) growInPlace(addr, newLen uint64) bool {
	idx := a.indexOf(addr)
	if idx < 0 {
		return false
	}
	if newLen <= a.live[idx].length {
		a.live[idx].length = newLen
		return true
	}

	var gapEnd uint64
	if idx+1 < len(a.live) {
		gapEnd = a.live[idx+1].base
	} else {
		gapEnd = a.regionEnd
	}
	if gapEnd-a.live[idx].base < newLen {
		return false
	}

	a.live[idx].length = newLen
	return true
}

func (a *allocator) lengthOf(addr uint64) (uint64, bool) {
	idx := a.indexOf(addr)
	if idx < 0 {
		return 0, false
	}
	return a.live[idx].length, true
}
