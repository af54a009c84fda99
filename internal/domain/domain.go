// Package domain implements the domain table: the unit of isolation,
// per spec.md §4.3. It depends on pmm (to back a domain's memory region
// and handle-array storage) and on capability (to revoke everything a
// domain owns when it is destroyed), and it satisfies
// capability.DomainHandles so the capability system can reach into a
// domain's handle array during transfer/derive without importing this
// package.
package domain

import (
	"sync"

	"github.com/DslsDZC/HIC-sub002/internal/capability"
	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
	"github.com/DslsDZC/HIC-sub002/internal/pmm"
)

// DefaultMaxDomains is MAX_DOMAINS from spec.md §3.
const DefaultMaxDomains = 128

// Invalid is the sentinel used for "no parent domain".
const Invalid int32 = -1

type State int32

const (
	StateInit State = iota
	StateReady
	StateRunning
	StateSuspended
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

type Flags uint32

const (
	FlagTrusted Flags = 1 << iota
	FlagPrivileged
)

type Quota struct {
	MaxMemory       uint64
	MaxThreads      uint32
	MaxCaps         uint32
	CPUQuotaPercent uint32
}

type Usage struct {
	AllocatedMemory uint64
	ThreadCount     uint32
	Granted         uint64
	Revoked         uint64
}

// handle is one slot of a domain's capability-handle array: a reference
// to a global capability table entry plus an obfuscation token, per
// spec.md §3 — the token is the generation counter design notes §9
// describes, treating cap_id as an opaque generational index.
type handle struct {
	used  bool
	capID uint32
	token uint32
}

// Domain is one slot of the domain table.
type Domain struct {
	ID       int32
	State    State
	PhysBase uint64
	PhysSize uint64
	Quota    Quota
	Usage    Usage
	Parent   int32
	Flags    Flags

	// InitialCapCount is the baseline capability count a domain starts
	// with before any create/transfer/derive grants it more — nonzero
	// only for domains seeded at boot (Core-0 itself).
	InitialCapCount uint64

	handles    []handle
	handlePage uint64 // PMM base of the handle-array backing pages
	handleRun  uint32 // page count of the handle-array backing pages
}

// Invariants is the narrow interface the domain table uses to trigger an
// invariant sweep after domain_destroy, per spec.md §4.6, without
// importing package monitor — monitor already imports domain, and the
// dependency order in spec.md §2 is a DAG, not a cycle.
type Invariants interface {
	Run() corestatus.Code
}

// Table is the domain-table singleton.
type Table struct {
	mu      sync.Mutex
	domains []Domain
	pmm     *pmm.Manager
	caps    *capability.System
	monitor Invariants

	tokenCounter uint32
}

// New preallocates maxDomains slots (0 defaults to DefaultMaxDomains),
// all starting in StateInit. Slots are never recycled within a boot
// session, per spec.md §4.3 — Create only ever advances the lowest
// Init slot it finds, and Destroy only ever lands on Terminated.
func New(maxDomains int, pmmMgr *pmm.Manager, caps *capability.System) *Table {
	if maxDomains <= 0 {
		maxDomains = DefaultMaxDomains
	}
	t := &Table{
		domains: make([]Domain, maxDomains),
		pmm:     pmmMgr,
		caps:    caps,
	}
	for i := range t.domains {
		t.domains[i] = Domain{ID: int32(i), State: StateInit, Parent: Invalid}
	}
	return t
}

// SetMonitor wires the invariant monitor in after construction, the same
// late-wiring pattern capability.System.SetDomainHandles uses to break
// the domain<->monitor initialization cycle. Destroy is a no-op sweep
// trigger until this is called, which is how domain_test.go exercises
// Destroy without needing a full kernel.Context.
func (t *Table) SetMonitor(m Invariants) {
	t.monitor = m
}

func (t *Table) nextToken() uint32 {
	t.tokenCounter++
	return t.tokenCounter*2654435761 + 1 // Knuth multiplicative hash, deterministic and cheap
}

// Create allocates the lowest-indexed Init slot, backs its capability
// handle array and memory region with PMM frames, and advances it to
// Ready. Either PMM failure aborts the whole operation, freeing whatever
// was allocated before it failed — spec.md §4.3/§7's "roll back earlier
// partial successes" rule.
func (t *Table) Create(flags Flags, parent int32, quota Quota) (int32, corestatus.Code) {
	if quota.MaxCaps == 0 || quota.MaxMemory == 0 {
		return Invalid, corestatus.InvalidParam
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i := range t.domains {
		if t.domains[i].State == StateInit {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Invalid, corestatus.NoResource
	}

	handleBytes := uint64(quota.MaxCaps) * 8 // capID+token packed per slot
	handlePages := uint32((handleBytes + pmm.PageSize - 1) / pmm.PageSize)
	handleBase, status := t.pmm.AllocFrames(int32(idx), handlePages, pmm.FramePrivileged)
	if !status.Ok() {
		return Invalid, status
	}

	memPages := uint32((quota.MaxMemory + pmm.PageSize - 1) / pmm.PageSize)
	frameType := pmm.FrameApplication
	if flags&FlagTrusted != 0 {
		frameType = pmm.FrameCore
	} else if flags&FlagPrivileged != 0 {
		frameType = pmm.FramePrivileged
	}
	memBase, status := t.pmm.AllocFrames(int32(idx), memPages, frameType)
	if !status.Ok() {
		t.pmm.FreeFrames(handleBase, handlePages)
		return Invalid, status
	}

	d := &t.domains[idx]
	d.State = StateReady
	d.PhysBase = memBase
	d.PhysSize = uint64(memPages) * pmm.PageSize
	d.Quota = quota
	d.Usage = Usage{AllocatedMemory: d.PhysSize}
	d.Parent = parent
	d.Flags = flags
	d.handles = make([]handle, quota.MaxCaps)
	d.handlePage = handleBase
	d.handleRun = handlePages

	return int32(idx), corestatus.Success
}

// Destroy revokes every capability the domain owns, returns both the
// handle-array pages and the memory region to PMM, and marks the slot
// Terminated — a terminal state the slot never leaves. It then runs the
// invariant monitor once, per spec.md §4.6's "invoked after every
// domain_destroy" rule.
//
// The capability revokes happen with t.mu released: capability.Revoke
// removes each invalidated cap's owning-domain handle through this same
// table's RemoveHandle, which takes t.mu itself — holding it across that
// call would deadlock.
func (t *Table) Destroy(id int32) corestatus.Code {
	t.mu.Lock()
	d, status := t.activeLocked(id)
	if !status.Ok() {
		t.mu.Unlock()
		return status
	}

	capIDs := make([]uint32, 0, len(d.handles))
	for i := range d.handles {
		if d.handles[i].used {
			capIDs = append(capIDs, d.handles[i].capID)
		}
	}
	handlePage, handleRun := d.handlePage, d.handleRun
	physBase, physPages := d.PhysBase, uint32(d.PhysSize/pmm.PageSize)
	t.mu.Unlock()

	for _, capID := range capIDs {
		t.caps.Revoke(capID)
	}

	t.mu.Lock()
	d, status = t.activeLocked(id)
	if !status.Ok() {
		t.mu.Unlock()
		return status
	}
	t.pmm.FreeFrames(handlePage, handleRun)
	t.pmm.FreeFrames(physBase, physPages)
	d.State = StateTerminated
	t.mu.Unlock()

	if t.monitor != nil {
		return t.monitor.Run()
	}
	return corestatus.Success
}

func (t *Table) activeLocked(id int32) (*Domain, corestatus.Code) {
	if id < 0 || int(id) >= len(t.domains) {
		return nil, corestatus.InvalidDomain
	}
	d := &t.domains[id]
	if d.State == StateInit || d.State == StateTerminated {
		return nil, corestatus.InvalidState
	}
	return d, corestatus.Success
}

// Suspend transitions Running -> Suspended.
func (t *Table) Suspend(id int32) corestatus.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(id)
	if !status.Ok() {
		return status
	}
	if d.State != StateRunning {
		return corestatus.InvalidState
	}
	d.State = StateSuspended
	return corestatus.Success
}

// Resume transitions Suspended -> Running.
func (t *Table) Resume(id int32) corestatus.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(id)
	if !status.Ok() {
		return status
	}
	if d.State != StateSuspended {
		return corestatus.InvalidState
	}
	d.State = StateRunning
	return corestatus.Success
}

// MarkRunning transitions Ready -> Running, the initial dispatch onto a
// domain once the scheduler (out of scope) first picks it.
func (t *Table) MarkRunning(id int32) corestatus.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(id)
	if !status.Ok() {
		return status
	}
	if d.State != StateReady {
		return corestatus.InvalidState
	}
	d.State = StateRunning
	return corestatus.Success
}

// GetInfo returns a copy of the domain slot's state.
func (t *Table) GetInfo(id int32) (Domain, corestatus.Code) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || int(id) >= len(t.domains) {
		return Domain{}, corestatus.InvalidDomain
	}
	d := t.domains[id]
	d.handles = nil // do not leak internal slice aliasing to callers
	return d, corestatus.Success
}

// CheckMemoryQuota reports whether allocating size additional bytes
// would exceed the domain's max_memory, guarding against overflow near
// SIZE_MAX rather than letting usage+size wrap around to a small value.
func (t *Table) CheckMemoryQuota(id int32, size uint64) corestatus.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(id)
	if !status.Ok() {
		return status
	}
	if d.Usage.AllocatedMemory >= d.Quota.MaxMemory {
		return corestatus.QuotaExceeded
	}
	remaining := d.Quota.MaxMemory - d.Usage.AllocatedMemory
	if size > remaining {
		return corestatus.QuotaExceeded
	}
	return corestatus.Success
}

// CheckThreadQuota reports whether the domain has room for one more
// thread under max_threads.
func (t *Table) CheckThreadQuota(id int32) corestatus.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(id)
	if !status.Ok() {
		return status
	}
	if d.Usage.ThreadCount >= d.Quota.MaxThreads {
		return corestatus.QuotaExceeded
	}
	return corestatus.Success
}
