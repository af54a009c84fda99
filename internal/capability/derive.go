package capability

import "github.com/DslsDZC/HIC-sub002/internal/corestatus"

// Derive produces a new Derive-typed capability whose rights are
// parent.Rights & subRights, per spec.md §4.2. It fails with Permission
// if that would grant rights the parent lacks — i.e. if subRights is not
// already a subset of the parent's rights, since a deriving domain can
// only narrow, never widen.
func (s *System) Derive(owner int32, parentCap uint32, subRights Rights) (uint32, corestatus.Code) {
	s.mu.Lock()

	parent, live := s.loadLocked(parentCap)
	if !live {
		s.mu.Unlock()
		return 0, corestatus.CapInvalid
	}
	if s.domains != nil && !s.domains.HasHandle(owner, parentCap) {
		s.mu.Unlock()
		return 0, corestatus.Permission
	}
	if parent.Rights&subRights != subRights {
		s.mu.Unlock()
		return 0, corestatus.Permission
	}

	idx, ok := s.allocSlot()
	if !ok {
		s.mu.Unlock()
		return 0, corestatus.NoResource
	}

	entry := Entry{
		CapID:  idx,
		Type:   TypeDerive,
		Rights: parent.Rights & subRights,
		Owner:  owner,
		Derive: DerivePayload{ParentCap: parentCap, SubRights: subRights},
	}
	s.entries[idx].Store(&entry)
	s.addChildLocked(parentCap, idx)
	s.mu.Unlock()

	if s.domains != nil {
		if status := s.domains.InsertHandle(owner, idx); !status.Ok() {
			s.mu.Lock()
			s.entries[idx].Store(nil)
			s.freeSlot(idx)
			s.removeChildLocked(parentCap, idx)
			s.mu.Unlock()
			return 0, status
		}
	}

	return idx, corestatus.Success
}

// loadLocked is load without the lock-free fast path's implicit
// assumption of concurrent publication — used by mutators that already
// hold s.mu and want the current entry before building the next one.
func (s *System) loadLocked(capID uint32) (*Entry, bool) {
	if int(capID) >= len(s.entries) {
		return nil, false
	}
	e := s.entries[capID].Load()
	return e, e.Live(int(capID))
}

// addChildLocked records childID as a child of parentID, spilling into
// the overflow slab once the inline array is full. Caller holds s.mu.
func (s *System) addChildLocked(parentID, childID uint32) {
	parent := s.entries[parentID].Load()
	if parent == nil {
		return
	}
	updated := *parent
	if updated.ChildCount < maxInlineChildren {
		updated.Children[updated.ChildCount] = childID
		updated.ChildCount++
	} else {
		updated.ChildOverflow = true
		s.excess[parentID] = append(s.excess[parentID], childID)
	}
	s.entries[parentID].Store(&updated)
}

func (s *System) removeChildLocked(parentID, childID uint32) {
	parent := s.entries[parentID].Load()
	if parent == nil {
		return
	}
	updated := *parent
	for i := uint16(0); i < updated.ChildCount; i++ {
		if updated.Children[i] == childID {
			updated.Children[i] = updated.Children[updated.ChildCount-1]
			updated.ChildCount--
			s.entries[parentID].Store(&updated)
			return
		}
	}
	if list, ok := s.excess[parentID]; ok {
		for i, c := range list {
			if c == childID {
				s.excess[parentID] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (s *System) childrenLocked(capID uint32) []uint32 {
	e := s.entries[capID].Load()
	if e == nil {
		return nil
	}
	out := make([]uint32, 0, int(e.ChildCount)+len(s.excess[capID]))
	for i := uint16(0); i < e.ChildCount; i++ {
		out = append(out, e.Children[i])
	}
	out = append(out, s.excess[capID]...)
	return out
}

// Revoke atomically invalidates cap and, transitively, every capability
// derived from it (spec.md §4.2/§4.3): a BFS of the child-index tree,
// bounded per node by the fixed inline array plus overflow slab design
// notes §9 prescribes, rather than the O(n·depth) walk a naive
// parent-pointer scan at revoke time would cost.
//
// Every node it invalidates also has its owning domain's handle removed
// via s.domains.RemoveHandle, which is what bumps that domain's
// Usage.Revoked counter — the bookkeeping invariant 1 (capability
// conservation) checks against. Skipping this step here is what used to
// let a revoked-but-still-counted handle desync live_caps(d) from
// initial_quota(d)+granted(d)-revoked(d) on every single revoke.
func (s *System) Revoke(capID uint32) corestatus.Code {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, live := s.loadLocked(capID)
	if !live {
		return corestatus.CapInvalid
	}
	if root.Flags&FlagImmutable != 0 {
		return corestatus.Permission
	}

	queue := []uint32{capID}
	seen := map[uint32]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		e := s.entries[id].Load()
		if e == nil || int(e.CapID) != int(id) || e.Flags&FlagRevoked != 0 {
			continue
		}
		updated := *e
		updated.Flags |= FlagRevoked
		s.entries[id].Store(&updated)

		if s.domains != nil {
			s.domains.RemoveHandle(e.Owner, id)
		}

		queue = append(queue, s.childrenLocked(id)...)
	}
	return corestatus.Success
}
