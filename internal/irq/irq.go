// Package irq implements the interrupt dispatcher: a fixed 256-slot
// routing table from vector to (domain, handler, endpoint cap), per
// spec.md §4.4. dispatch is the hot path and must not take a lock — it
// reads an atomic.Pointer[Entry] published with release semantics by
// register_handler, exactly the reader/writer split spec.md §4.4 and
// §9's "Lock-free IRQ dispatch" design note call for.
package irq

import (
	"sync"
	"sync/atomic"

	"github.com/DslsDZC/HIC-sub002/internal/capability"
	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
	"github.com/DslsDZC/HIC-sub002/internal/hal"
)

const NumVectors = 256

type TriggerFlags uint32

const (
	FlagEdge TriggerFlags = 1 << iota
	FlagLevel
	FlagShared
)

// HandlerFunc is the same-privilege-level indirect call spec.md §4.4
// describes. Core-0 never switches privilege to invoke it.
type HandlerFunc func(vector uint32)

// Entry is one routing-table slot. Once published it is never mutated in
// place; register_handler builds a new Entry and republishes it, which
// is what makes concurrent dispatch/register_handler races on the same
// vector resolve to either the pre-update or post-update entry, never a
// torn mix (spec.md §8's concurrency boundary case).
type Entry struct {
	DomainID    int32
	HandlerAddr uintptr
	Handler     HandlerFunc
	EndpointCap uint32
	Flags       TriggerFlags
	Enabled     bool
	Initialized bool
}

// Dispatcher is the IRQ routing-table singleton.
type Dispatcher struct {
	mu      sync.Mutex
	table   [NumVectors]atomic.Pointer[Entry]
	caps    *capability.System
	machine hal.HAL
}

func New(caps *capability.System, machine hal.HAL) *Dispatcher {
	return &Dispatcher{caps: caps, machine: machine}
}

// ControllerInit publishes the build-time routing table once, with a
// full memory barrier before interrupts are unmasked for the first time
// — spec.md §5's "freshly-initialized routing table is published with a
// full memory barrier" ordering guarantee.
func (d *Dispatcher) ControllerInit(initial map[uint32]Entry) corestatus.Code {
	d.mu.Lock()
	defer d.mu.Unlock()
	for vector, e := range initial {
		if vector >= NumVectors {
			return corestatus.InvalidParam
		}
		entry := e
		entry.Initialized = true
		d.table[vector].Store(&entry)
	}
	d.machine.FullBarrier()
	return corestatus.Success
}

// RegisterHandler installs or replaces the route for vector. Replacing
// an already-initialized route requires callerDomain to pass a REVOKE
// capability check against the route's currently-installed endpoint cap
// — spec.md §3's "may be replaced only by an operation that passes
// capability check against the designated endpoint cap" — so an
// unrelated domain can never hijack another domain's interrupt route.
func (d *Dispatcher) RegisterHandler(callerDomain int32, vector uint32, domainID int32, handlerAddr uintptr, handler HandlerFunc, endpointCap uint32, flags TriggerFlags) corestatus.Code {
	if vector >= NumVectors || handlerAddr == 0 {
		return corestatus.InvalidParam
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing := d.table[vector].Load(); existing != nil && existing.Initialized {
		if status := d.caps.CheckAccess(callerDomain, existing.EndpointCap, capability.RightRevoke); !status.Ok() {
			return status
		}
	}

	entry := &Entry{
		DomainID:    domainID,
		HandlerAddr: handlerAddr,
		Handler:     handler,
		EndpointCap: endpointCap,
		Flags:       flags,
		Enabled:     false,
		Initialized: true,
	}
	d.machine.WriteBarrier()
	d.table[vector].Store(entry)
	return corestatus.Success
}

func (d *Dispatcher) Enable(vector uint32) corestatus.Code {
	return d.setEnabled(vector, true)
}

func (d *Dispatcher) Disable(vector uint32) corestatus.Code {
	return d.setEnabled(vector, false)
}

func (d *Dispatcher) setEnabled(vector uint32, enabled bool) corestatus.Code {
	if vector >= NumVectors {
		return corestatus.InvalidParam
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.table[vector].Load()
	if existing == nil || !existing.Initialized {
		return corestatus.InvalidState
	}
	updated := *existing
	updated.Enabled = enabled
	d.table[vector].Store(&updated)
	return corestatus.Success
}

// legacy PIC vectors: the first 32 (0-31) route through the 8259-style
// command port; vectors >=32 are delivered via the MMIO-mapped
// controller (GIC-style), per spec.md §4.4.
const (
	picEOIVector = 32
	picEOIValue  = 0x20
	gicEOIAddr   = uintptr(0xFFFF00000000_1010) // GICC_EOIR-style offset, simulated
)

// Dispatch is the hot path: one cache-line read (the atomic.Pointer
// load), one capability check, one indirect call, one MMIO/port write —
// the latency budget spec.md §4.4 names. It takes no lock.
func (d *Dispatcher) Dispatch(vector uint32) corestatus.Code {
	if vector >= NumVectors {
		return corestatus.InvalidParam
	}

	d.machine.ReadBarrier()
	entry := d.table[vector].Load()
	if entry == nil || !entry.Initialized || entry.HandlerAddr == 0 || !entry.Enabled {
		return corestatus.InvalidState
	}

	if status := d.caps.CheckAccess(entry.DomainID, entry.EndpointCap, 0); !status.Ok() {
		return status
	}

	entry.Handler(vector)

	if vector < picEOIVector {
		port := hal.PIC1CommandPort
		if vector >= 8 {
			port = hal.PIC2CommandPort
		}
		d.machine.PortOut8(port, picEOIValue)
	} else {
		d.machine.MMIOWrite32(gicEOIAddr, vector)
	}
	return corestatus.Success
}

// Snapshot returns a read-only copy of every initialized route, for the
// invariant monitor's route-integrity check (invariant 9).
func (d *Dispatcher) Snapshot() [NumVectors]Entry {
	var out [NumVectors]Entry
	for v := 0; v < NumVectors; v++ {
		if e := d.table[v].Load(); e != nil {
			out[v] = *e
		}
	}
	return out
}
