package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DslsDZC/HIC-sub002/internal/audit"
	"github.com/DslsDZC/HIC-sub002/internal/capability"
	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
	"github.com/DslsDZC/HIC-sub002/internal/domain"
	"github.com/DslsDZC/HIC-sub002/internal/hal"
	"github.com/DslsDZC/HIC-sub002/internal/irq"
	"github.com/DslsDZC/HIC-sub002/internal/platformconfig"
	"github.com/DslsDZC/HIC-sub002/internal/pmm"
)

func validConfig() platformconfig.Config {
	return platformconfig.Config{
		UARTBase:     0x9000000,
		UARTBaud:     115200,
		MaxDomains:   8,
		CapTableSize: 4096,
		MemoryRegions: []platformconfig.MemoryRegion{
			{Base: 0x100000, Size: 0x1000000},
		},
		IRQTable: []platformconfig.IRQEntry{
			{Vector: 33, Domain: 0, Handler: "uart_irq"},
		},
	}
}

type harness struct {
	mon     *Monitor
	pmm     *pmm.Manager
	caps    *capability.System
	domains *domain.Table
	irqd    *irq.Dispatcher
	sim     *hal.Sim
	sink    *audit.RingSink
}

func newHarness(t *testing.T, cfg platformconfig.Config) *harness {
	t.Helper()
	p := pmm.New()
	require.Equal(t, corestatus.Success, p.AddRegion(0x100000, 0x3FF00000))
	caps := capability.New(256)
	domains := domain.New(8, p, caps)
	caps.SetDomainHandles(domains)
	sim := hal.NewSim()
	irqd := irq.New(caps, sim)
	sink := audit.NewRingSink(16, nil)

	mon := New(p, caps, domains, irqd, nil, cfg, sim, sink, nil)
	domains.SetMonitor(mon)
	return &harness{mon: mon, pmm: p, caps: caps, domains: domains, irqd: irqd, sim: sim, sink: sink}
}

// TestRevokeThenCheckAllDoesNotFalseHalt pins down the capability
// conservation bookkeeping (invariant 1): a plain create-then-revoke must
// leave live_caps(d) == initial_quota(d)+granted(d)-revoked(d), not trip
// a false violation the way an unrevoked domain handle used to.
func TestRevokeThenCheckAllDoesNotFalseHalt(t *testing.T) {
	h := newHarness(t, validConfig())

	id, status := h.domains.Create(0, domain.Invalid, domain.Quota{
		MaxMemory: 0x10000, MaxThreads: 4, MaxCaps: 4, CPUQuotaPercent: 10,
	})
	require.Equal(t, corestatus.Success, status)

	c, status := h.caps.CreateMemory(id, 0x1000, 0x1000, capability.RightRead)
	require.Equal(t, corestatus.Success, status)
	require.Equal(t, corestatus.Success, h.caps.Revoke(c))

	require.Equal(t, corestatus.Success, h.mon.CheckAll(nil))
	require.Equal(t, StateIdle, h.mon.GetState())
	require.False(t, h.sim.Halted)
}

// TestDestroyRunsInvariantSweep confirms domain.Table.Destroy triggers a
// monitor sweep (spec.md §4.6's "invoked after every domain_destroy"),
// and that destroying a domain holding live capabilities does not itself
// trip capability conservation for the domain being torn down.
func TestDestroyRunsInvariantSweep(t *testing.T) {
	h := newHarness(t, validConfig())

	id, status := h.domains.Create(0, domain.Invalid, domain.Quota{
		MaxMemory: 0x10000, MaxThreads: 4, MaxCaps: 4, CPUQuotaPercent: 10,
	})
	require.Equal(t, corestatus.Success, status)

	_, status = h.caps.CreateMemory(id, 0x1000, 0x1000, capability.RightRead)
	require.Equal(t, corestatus.Success, status)

	require.Equal(t, corestatus.Success, h.domains.Destroy(id))
	require.Equal(t, StateIdle, h.mon.GetState())
	require.False(t, h.sim.Halted)
	require.Equal(t, uint64(1), h.mon.GetStats().TotalChecks)
}

func TestCheckAllPassesOnFreshSystem(t *testing.T) {
	h := newHarness(t, validConfig())
	require.Equal(t, corestatus.Success, h.mon.CheckAll(nil))
	require.Equal(t, StateIdle, h.mon.GetState())
	require.False(t, h.sim.Halted)
	stats := h.mon.GetStats()
	require.Equal(t, uint64(1), stats.TotalChecks)
	require.Equal(t, uint64(0), stats.Violations)
}

// TestScenario5QuotaViolationHalts mirrors the spec's concrete scenario:
// two domains configured with cpu_quota_percent=60 each trips invariant 4
// (quota conservation), sets last_violation_id=4, transitions the
// monitor to Violated, and halts.
func TestScenario5QuotaViolationHalts(t *testing.T) {
	h := newHarness(t, validConfig())

	_, status := h.domains.Create(0, domain.Invalid, domain.Quota{
		MaxMemory: 0x1000, MaxThreads: 4, MaxCaps: 4, CPUQuotaPercent: 60,
	})
	require.Equal(t, corestatus.Success, status)
	_, status = h.domains.Create(0, domain.Invalid, domain.Quota{
		MaxMemory: 0x1000, MaxThreads: 4, MaxCaps: 4, CPUQuotaPercent: 60,
	})
	require.Equal(t, corestatus.Success, status)

	got := h.mon.CheckAll(nil)
	require.Equal(t, corestatus.InvalidState, got)
	require.Equal(t, StateViolated, h.mon.GetState())
	require.True(t, h.sim.Halted)

	stats := h.mon.GetStats()
	require.Equal(t, int32(4), stats.LastViolationID)
	require.Equal(t, uint64(1), stats.Violations)
	require.Equal(t, 1, h.sink.Len())
	require.False(t, h.sink.Recent(1)[0].Success)
}

func TestCheckDerivationMonotonicityCatchesWideningTamperedSnapshot(t *testing.T) {
	s := &sweepSnapshot{
		caps: []capability.Entry{
			{CapID: 1, Type: capability.TypeMemory, Rights: capability.RightRead, Owner: 0},
			{CapID: 2, Type: capability.TypeDerive, Rights: capability.RightRead | capability.RightWrite, Owner: 0,
				Derive: capability.DerivePayload{ParentCap: 1, SubRights: capability.RightRead | capability.RightWrite}},
		},
	}
	require.False(t, checkDerivationMonotonicity(s))
}

func TestCheckDeadlockFreedomDetectsCycle(t *testing.T) {
	s := &sweepSnapshot{edges: []WaitForEdge{
		{Waiter: 1, Holder: 2},
		{Waiter: 2, Holder: 3},
		{Waiter: 3, Holder: 1},
	}}
	require.False(t, checkDeadlockFreedom(s))
}

func TestCheckDeadlockFreedomAcceptsAcyclicChain(t *testing.T) {
	s := &sweepSnapshot{edges: []WaitForEdge{
		{Waiter: 1, Holder: 2},
		{Waiter: 2, Holder: 3},
	}}
	require.True(t, checkDeadlockFreedom(s))
}

func TestCheckIRQRouteIntegrityCatchesDanglingEndpointCap(t *testing.T) {
	var irqs [irq.NumVectors]irq.Entry
	irqs[33] = irq.Entry{Initialized: true, HandlerAddr: 0xdeadbeef, EndpointCap: 77}
	s := &sweepSnapshot{irqs: irqs}
	require.False(t, checkIRQRouteIntegrity(s))
}

func TestCheckConfigIntegrityRejectsInvalidConfig(t *testing.T) {
	h := newHarness(t, platformconfig.Config{})
	got := h.mon.CheckAll(nil)
	require.Equal(t, corestatus.InvalidState, got)
	require.Equal(t, int32(7), h.mon.GetStats().LastViolationID)
}
