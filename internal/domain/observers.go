package domain

// The accessors below are the read-only observer surface spec.md §4.3
// lists for the invariant monitor's use: is_active, count_capabilities
// (handles.go), initial_quota, granted, revoked, memory_region,
// allocated_memory, cpu_quota. None of them take the critical-section
// path other mutators use beyond a short read lock — they never block
// check_access or dispatch, which don't touch this package at all.

func (t *Table) IsActive(id int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return false
	}
	s := t.domains[id].State
	return s == StateReady || s == StateRunning || s == StateSuspended
}

// ActiveIDs returns the ids of every domain currently in Ready, Running,
// or Suspended, in ascending order — the set invariants 1-6 quantify
// over ("for every active domain d").
func (t *Table) ActiveIDs() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int32
	for i := range t.domains {
		s := t.domains[i].State
		if s == StateReady || s == StateRunning || s == StateSuspended {
			out = append(out, int32(i))
		}
	}
	return out
}

func (t *Table) InitialQuota(id int32) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return 0
	}
	return t.domains[id].InitialCapCount
}

func (t *Table) Granted(id int32) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return 0
	}
	return t.domains[id].Usage.Granted
}

func (t *Table) Revoked(id int32) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return 0
	}
	return t.domains[id].Usage.Revoked
}

// MemoryRegion returns [base, base+size) for the domain's contiguous
// physical region.
func (t *Table) MemoryRegion(id int32) (base, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return 0, 0
	}
	return t.domains[id].PhysBase, t.domains[id].PhysSize
}

func (t *Table) AllocatedMemory(id int32) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return 0
	}
	return t.domains[id].Usage.AllocatedMemory
}

func (t *Table) CPUQuota(id int32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return 0
	}
	return t.domains[id].Quota.CPUQuotaPercent
}

// SetInitialCapCount seeds the baseline capability count a domain is
// considered to start with — used once, at boot, to account for Core-0's
// seeded capability set before any create/transfer has run.
func (t *Table) SetInitialCapCount(id int32, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return
	}
	t.domains[id].InitialCapCount = n
}
