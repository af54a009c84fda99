package sysgate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DslsDZC/HIC-sub002/internal/audit"
	"github.com/DslsDZC/HIC-sub002/internal/capability"
	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
	"github.com/DslsDZC/HIC-sub002/internal/domain"
	"github.com/DslsDZC/HIC-sub002/internal/hal"
	"github.com/DslsDZC/HIC-sub002/internal/pmm"
)

type fakeEndpoint struct {
	target    int32
	resolveOK bool
	delivered bool
	reply     [4]uint64
}

func (f *fakeEndpoint) Resolve(capability.EndpointPayload) (int32, bool) {
	return f.target, f.resolveOK
}

func (f *fakeEndpoint) DomainSwitch(int32, [4]uint64) ([4]uint64, bool) {
	return f.reply, f.delivered
}

func newTestGate(t *testing.T, ep Endpoint) (*Gate, *capability.System, *domain.Table, *audit.RingSink) {
	t.Helper()
	p := pmm.New()
	require.Equal(t, corestatus.Success, p.AddRegion(0x100000, 0x3FF00000))
	caps := capability.New(256)
	domains := domain.New(4, p, caps)
	caps.SetDomainHandles(domains)
	sink := audit.NewRingSink(16, nil)
	gate := New(caps, domains, ep, sink, hal.NewSim(), nil)
	return gate, caps, domains, sink
}

func TestIPCCallDeliversReplyAndAudits(t *testing.T) {
	ep := &fakeEndpoint{target: 1, resolveOK: true, delivered: true, reply: [4]uint64{42}}
	gate, caps, domains, sink := newTestGate(t, ep)

	callerID, status := domains.Create(0, domain.Invalid, domain.Quota{MaxMemory: 0x10000, MaxThreads: 1, MaxCaps: 4, CPUQuotaPercent: 10})
	require.Equal(t, corestatus.Success, status)
	targetID, status := domains.Create(0, domain.Invalid, domain.Quota{MaxMemory: 0x10000, MaxThreads: 1, MaxCaps: 4, CPUQuotaPercent: 10})
	require.Equal(t, corestatus.Success, status)
	ep.target = targetID

	endpointCap, status := caps.CreateEndpoint(callerID, targetID, 7, capability.RightRead)
	require.Equal(t, corestatus.Success, status)

	got := gate.Handle(callerID, IPCCall, uint64(endpointCap), 0, 0, 0)
	require.Equal(t, corestatus.Success, got)
	require.Equal(t, 1, sink.Len())
	require.True(t, sink.Recent(1)[0].Success)
}

func TestIPCCallWithoutReadRightIsPermissionDenied(t *testing.T) {
	ep := &fakeEndpoint{resolveOK: true, delivered: true}
	gate, caps, domains, _ := newTestGate(t, ep)

	callerID, _ := domains.Create(0, domain.Invalid, domain.Quota{MaxMemory: 0x10000, MaxThreads: 1, MaxCaps: 4, CPUQuotaPercent: 10})
	endpointCap, _ := caps.CreateEndpoint(callerID, 0, 1, 0)

	got := gate.Handle(callerID, IPCCall, uint64(endpointCap), 0, 0, 0)
	require.Equal(t, corestatus.Permission, got)
}

func TestIPCCallFailsOnUndeliveredSwitch(t *testing.T) {
	ep := &fakeEndpoint{resolveOK: true, delivered: false}
	gate, caps, domains, _ := newTestGate(t, ep)

	callerID, _ := domains.Create(0, domain.Invalid, domain.Quota{MaxMemory: 0x10000, MaxThreads: 1, MaxCaps: 4, CPUQuotaPercent: 10})
	targetID, _ := domains.Create(0, domain.Invalid, domain.Quota{MaxMemory: 0x10000, MaxThreads: 1, MaxCaps: 4, CPUQuotaPercent: 10})
	ep.target = targetID
	endpointCap, _ := caps.CreateEndpoint(callerID, targetID, 1, capability.RightRead)

	got := gate.Handle(callerID, IPCCall, uint64(endpointCap), 0, 0, 0)
	require.Equal(t, corestatus.InvalidState, got)
}

func TestUnknownSyscallNumberIsNotSupportedAndAudited(t *testing.T) {
	gate, _, _, sink := newTestGate(t, &fakeEndpoint{})
	got := gate.Handle(0, Num(99), 0, 0, 0, 0)
	require.Equal(t, corestatus.NotSupported, got)

	events := sink.Recent(1)
	require.Len(t, events, 1)
	require.False(t, events[0].Success)
	require.Equal(t, uint64(99), events[0].Payload[0])
}

func TestCapTransferAndDeriveRouteThroughCapabilitySystem(t *testing.T) {
	gate, caps, domains, _ := newTestGate(t, &fakeEndpoint{})
	fromID, _ := domains.Create(0, domain.Invalid, domain.Quota{MaxMemory: 0x10000, MaxThreads: 1, MaxCaps: 4, CPUQuotaPercent: 10})
	toID, _ := domains.Create(0, domain.Invalid, domain.Quota{MaxMemory: 0x10000, MaxThreads: 1, MaxCaps: 4, CPUQuotaPercent: 10})

	c, status := caps.CreateMemory(fromID, 0x1000, 0x1000, capability.RightRead|capability.RightGrant)
	require.Equal(t, corestatus.Success, status)

	got := gate.Handle(fromID, CapTransfer, uint64(c), uint64(toID), 0, 0)
	require.Equal(t, corestatus.Success, got)
	require.Equal(t, corestatus.Success, caps.CheckAccess(toID, c, capability.RightRead))

	derivedRaw := gate.Handle(toID, CapDerive, uint64(c), uint64(capability.RightRead), 0, 0)
	require.Equal(t, corestatus.Success, derivedRaw)

	got = gate.Handle(toID, CapRevoke, uint64(c), 0, 0, 0)
	require.Equal(t, corestatus.Success, got)
	require.Equal(t, corestatus.CapInvalid, caps.CheckAccess(toID, c, capability.RightRead))
}
