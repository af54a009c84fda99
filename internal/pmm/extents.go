package pmm

import "github.com/google/btree"

// freeExtent is one contiguous run of free frames, keyed by Base so the
// btree iterates the free list in address order — the ordering
// spec.md §4.1 requires for first-fit/lowest-address tie-breaking.
type freeExtent struct {
	Base  uint64
	Count uint32
}

func (e *freeExtent) Less(than btree.Item) bool {
	return e.Base < than.(*freeExtent).Base
}

func (e *freeExtent) end() uint64 { return e.Base + uint64(e.Count)*PageSize }

// insertFree adds [base, base+count*PageSize) to the free list, merging
// with an immediately-adjacent predecessor and successor extent so the
// tree never accumulates artificially fragmented runs across
// alloc/free round trips.
func (m *Manager) insertFree(base uint64, count uint32) {
	newExt := &freeExtent{Base: base, Count: count}

	// Merge with predecessor: the extent whose end equals base.
	var pred *freeExtent
	m.free.DescendLessOrEqual(&freeExtent{Base: base}, func(it btree.Item) bool {
		cand := it.(*freeExtent)
		if cand.end() == base {
			pred = cand
		}
		return false
	})
	if pred != nil {
		m.free.Delete(pred)
		newExt.Base = pred.Base
		newExt.Count += pred.Count
	}

	// Merge with successor: the extent whose base equals newExt.end().
	if succ, ok := m.free.Get(&freeExtent{Base: newExt.end()}).(*freeExtent); ok && succ != nil {
		m.free.Delete(succ)
		newExt.Count += succ.Count
	}

	m.free.ReplaceOrInsert(newExt)
}

// takeFreeRun finds the lowest-addressed free extent with at least count
// frames (first-fit), removes it from the free list, reinserting any
// remainder, and returns the base of the allocated run.
func (m *Manager) takeFreeRun(count uint32) (uint64, bool) {
	var found *freeExtent
	m.free.Ascend(func(it btree.Item) bool {
		cand := it.(*freeExtent)
		if cand.Count >= count {
			found = cand
			return false
		}
		return true
	})
	if found == nil {
		return 0, false
	}

	m.free.Delete(found)
	base := found.Base
	if found.Count > count {
		m.free.ReplaceOrInsert(&freeExtent{
			Base:  base + uint64(count)*PageSize,
			Count: found.Count - count,
		})
	}
	return base, true
}

// removeFreeRun removes exactly [base, base+count*PageSize) from the
// free list, which must fully contain it as a sub-range of some extent
// (the run has never been allocated). Splits the covering extent into
// up to two remainder extents. Returns false if no free extent covers
// the requested run.
func (m *Manager) removeFreeRun(base uint64, count uint32) bool {
	end := base + uint64(count)*PageSize

	var cover *freeExtent
	m.free.DescendLessOrEqual(&freeExtent{Base: base}, func(it btree.Item) bool {
		cand := it.(*freeExtent)
		if cand.Base <= base && cand.end() >= end {
			cover = cand
		}
		return false
	})
	if cover == nil {
		return false
	}

	m.free.Delete(cover)
	if cover.Base < base {
		m.free.ReplaceOrInsert(&freeExtent{Base: cover.Base, Count: uint32((base - cover.Base) / PageSize)})
	}
	if cover.end() > end {
		m.free.ReplaceOrInsert(&freeExtent{Base: end, Count: uint32((cover.end() - end) / PageSize)})
	}
	return true
}
