// Package monitor implements the invariant monitor: a topologically
// ordered sweep of pure predicates over read-only snapshots of the PMM,
// capability table, domain table, IRQ dispatcher, and platform config,
// per spec.md §4.6. It is the last subsystem in the dependency order —
// every other package is a collaborator it observes, never mutates.
package monitor

import (
	"fmt"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"

	"github.com/DslsDZC/HIC-sub002/internal/audit"
	"github.com/DslsDZC/HIC-sub002/internal/capability"
	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
	"github.com/DslsDZC/HIC-sub002/internal/domain"
	"github.com/DslsDZC/HIC-sub002/internal/hal"
	"github.com/DslsDZC/HIC-sub002/internal/irq"
	"github.com/DslsDZC/HIC-sub002/internal/platformconfig"
	"github.com/DslsDZC/HIC-sub002/internal/pmm"
)

// State is the monitor's own small state machine, observable via
// GetState: CheckAll moves Idle -> Checking -> (Idle | Violated). The
// monitor stays Violated until the next CheckAll starts over from
// Checking; no recovery step exists and StateRecovering is never entered.
type State int32

const (
	StateIdle State = iota
	StateChecking
	StateViolated
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateChecking:
		return "Checking"
	case StateViolated:
		return "Violated"
	case StateRecovering:
		return "Recovering"
	default:
		return "Unknown"
	}
}

// WaitForEdge is one edge of the thread wait-for graph invariant 5 walks:
// Waiter blocks on a resource currently held by Holder.
type WaitForEdge struct {
	Waiter int32
	Holder int32
}

// ThreadGraph supplies the wait-for edges for deadlock detection. Core-0
// has no thread subsystem of its own (scheduling is an external
// collaborator per spec.md §1); NoThreads below is the zero-edge default
// a hosted build wires in until a real scheduler is attached.
type ThreadGraph interface {
	WaitForEdges() []WaitForEdge
}

// NoThreads is the default ThreadGraph: no threads, trivially acyclic.
type NoThreads struct{}

func (NoThreads) WaitForEdges() []WaitForEdge { return nil }

// Stats is the counter block get_stats reports.
type Stats struct {
	TotalChecks     uint64
	Violations      uint64
	LastViolationID int32
}

// Monitor is the invariant-monitor singleton.
type Monitor struct {
	mu sync.Mutex

	state State
	stats Stats

	pmm     *pmm.Manager
	caps    *capability.System
	domains *domain.Table
	irqd    *irq.Dispatcher
	threads ThreadGraph
	config  platformconfig.Config

	machine hal.HAL
	sink    audit.Sink
	log     *logrus.Logger
}

func New(pmmMgr *pmm.Manager, caps *capability.System, domains *domain.Table, irqd *irq.Dispatcher, threads ThreadGraph, config platformconfig.Config, machine hal.HAL, sink audit.Sink, log *logrus.Logger) *Monitor {
	if threads == nil {
		threads = NoThreads{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{
		pmm: pmmMgr, caps: caps, domains: domains, irqd: irqd,
		threads: threads, config: config, machine: machine, sink: sink, log: log,
	}
}

func (m *Monitor) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// sweepSnapshot is the read-only view every predicate runs over — deep
// copies of the four singletons' state plus the static config and the
// thread wait-for graph, so a predicate can never observe a mutation
// mid-sweep and never needs to re-enter any subsystem's lock.
type sweepSnapshot struct {
	frames        []pmm.FrameInfo
	totalPhysical uint64
	caps          []capability.Entry
	domains       []domain.Domain
	irqs          [irq.NumVectors]irq.Entry
	config        platformconfig.Config
	edges         []WaitForEdge
}

func (m *Monitor) snapshot(edges []WaitForEdge) *sweepSnapshot {
	ids := m.domains.ActiveIDs()
	doms := make([]domain.Domain, 0, len(ids))
	for _, id := range ids {
		d, status := m.domains.GetInfo(id)
		if status.Ok() {
			doms = append(doms, d)
		}
	}

	stats := m.pmm.GetStats()

	raw := &sweepSnapshot{
		frames:        m.pmm.Snapshot(),
		totalPhysical: uint64(stats.TotalPages) * pmm.PageSize,
		caps:          m.caps.Snapshot(),
		domains:       doms,
		irqs:          m.irqd.Snapshot(),
		config:        m.config,
		edges:         edges,
	}
	// deepcopy.Copy stands in for the "pure predicate over a read-only
	// snapshot" design note: every field above is already a value copy,
	// but this guarantees no predicate can alias back into
	// subsystem-owned memory even if a future field grows a pointer.
	// deepcopy skips unexported struct fields, so each field is copied on
	// its own rather than the whole sweepSnapshot at once.
	return &sweepSnapshot{
		frames:        deepcopy.Copy(raw.frames).([]pmm.FrameInfo),
		totalPhysical: raw.totalPhysical,
		caps:          deepcopy.Copy(raw.caps).([]capability.Entry),
		domains:       deepcopy.Copy(raw.domains).([]domain.Domain),
		irqs:          deepcopy.Copy(raw.irqs).([irq.NumVectors]irq.Entry),
		config:        deepcopy.Copy(raw.config).(platformconfig.Config),
		edges:         deepcopy.Copy(raw.edges).([]WaitForEdge),
	}
}

func (s *sweepSnapshot) domainByID(id int32) (domain.Domain, bool) {
	for _, d := range s.domains {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Domain{}, false
}

func (s *sweepSnapshot) capByID(id uint32) (capability.Entry, bool) {
	for _, c := range s.caps {
		if c.CapID == id {
			return c, true
		}
	}
	return capability.Entry{}, false
}

// invariant pairs an id with its predicate. The slice order is the
// topological order design notes §9 require: an invariant never runs
// before the ones it declares a dependency on.
type invariant struct {
	id   int32
	name string
	run  func(s *sweepSnapshot) bool
}

var invariants = []invariant{
	{1, "capability conservation", checkCapabilityConservation},
	{2, "memory isolation", checkMemoryIsolation},
	{3, "derivation monotonicity", checkDerivationMonotonicity},
	{4, "quota conservation", checkQuotaConservation},
	{5, "deadlock freedom", checkDeadlockFreedom},
	{6, "type safety", checkTypeSafety},
	{7, "config integrity", checkConfigIntegrity},
	{8, "config disjointness", checkConfigDisjointness},
	{9, "IRQ route integrity", checkIRQRouteIntegrity},
}

// CheckAll runs every invariant in topological order against a fresh
// snapshot. The first failure halts the sweep: it raises the monitor to
// Violated, records the violating id, emits a SECURITY_VIOLATION audit
// event, and halts the CPU uniformly — this implementation never
// logs-and-continues, the policy the open design question resolved to.
//
// edges overrides the wired ThreadGraph for this one sweep; pass nil to
// use the wired graph.
func (m *Monitor) CheckAll(edges []WaitForEdge) corestatus.Code {
	m.mu.Lock()
	m.state = StateChecking
	m.stats.TotalChecks++
	m.mu.Unlock()

	if edges == nil {
		edges = m.threads.WaitForEdges()
	}
	snap := m.snapshot(edges)

	for _, inv := range invariants {
		if inv.run(snap) {
			continue
		}

		m.mu.Lock()
		m.state = StateViolated
		m.stats.Violations++
		m.stats.LastViolationID = inv.id
		m.mu.Unlock()

		if m.sink != nil {
			m.sink.Emit(audit.Event{
				Kind:      audit.KindSecurityViolation,
				Timestamp: m.machine.Timestamp(),
				Success:   false,
				Payload:   [4]uint64{uint64(inv.id)},
				Detail:    fmt.Sprintf("invariant %d (%s) violated", inv.id, inv.name),
			})
		}
		m.log.WithFields(logrus.Fields{"invariant": inv.id, "name": inv.name}).Error("invariant violated, halting")
		m.machine.Halt()
		return corestatus.InvalidState
	}

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
	return corestatus.Success
}

// Run sweeps using the wired ThreadGraph — the hook other subsystems
// call through after a mutation spec.md §4.6 names (domain_destroy,
// syscall return), where there is no per-call override of the wait-for
// graph to supply.
func (m *Monitor) Run() corestatus.Code {
	return m.CheckAll(nil)
}

// GetReport renders a short human-readable status block, the get_report
// text report spec.md §6 names.
func (m *Monitor) GetReport() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf(
		"monitor: state=%s total_checks=%d violations=%d last_violation_id=%d",
		m.state, m.stats.TotalChecks, m.stats.Violations, m.stats.LastViolationID,
	)
}
