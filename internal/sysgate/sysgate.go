// Package sysgate implements the syscall gate: the sole entry point from
// lesser-privileged domains into Core-0, per spec.md §4.5. It depends on
// capability, domain, audit, and monitor — it runs the invariant sweep
// once after every syscall returns, per spec.md §4.6.
package sysgate

import (
	"github.com/DslsDZC/HIC-sub002/internal/audit"
	"github.com/DslsDZC/HIC-sub002/internal/capability"
	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
	"github.com/DslsDZC/HIC-sub002/internal/domain"
	"github.com/DslsDZC/HIC-sub002/internal/hal"
	"github.com/DslsDZC/HIC-sub002/internal/monitor"
)

// Num identifies one of the four syscall numbers spec.md §4.5 names.
type Num int32

const (
	IPCCall Num = iota
	CapTransfer
	CapDerive
	CapRevoke
)

// Endpoint resolves an endpoint capability to the domain it targets, the
// half of IPC_CALL the syscall gate itself cannot know without a caller-
// supplied callback — a real build wires this to the endpoint registry;
// tests and the demo wire it to a closure over a fixed map.
type Endpoint interface {
	// Resolve returns the target domain for an endpoint capability's
	// EndpointPayload and reports whether the switch should proceed.
	Resolve(payload capability.EndpointPayload) (targetDomain int32, ok bool)
	// DomainSwitch performs the synchronous call into targetDomain,
	// carrying message, and returns whatever the callee replies with
	// plus whether the callee actually replied (false on a failed
	// switch, per spec.md §4.5's "blocks until the callee replies or
	// the switch fails").
	DomainSwitch(targetDomain int32, message [4]uint64) (reply [4]uint64, delivered bool)
}

// Gate is the syscall-handler singleton.
type Gate struct {
	caps     *capability.System
	domains  *domain.Table
	endpoint Endpoint
	sink     audit.Sink
	machine  hal.HAL
	monitor  *monitor.Monitor
}

func New(caps *capability.System, domains *domain.Table, endpoint Endpoint, sink audit.Sink, machine hal.HAL, mon *monitor.Monitor) *Gate {
	return &Gate{caps: caps, domains: domains, endpoint: endpoint, sink: sink, machine: machine, monitor: mon}
}

// Handle is syscall_handler(num, a1..a4): it dispatches on num, writes the
// resulting status through the HAL return mechanism, and always emits an
// audit record — success or failure — carrying the syscall number, per
// spec.md §4.5. Unknown numbers return NotSupported without touching any
// subsystem, and the audit record still carries the attempted number.
//
// The invariant monitor runs once after every syscall returns, per
// spec.md §4.6 — its own verdict never overrides the syscall's status;
// a violation halts the machine from inside Monitor.Run itself.
func (g *Gate) Handle(caller int32, num Num, a1, a2, a3, a4 uint64) corestatus.Code {
	status, reply := g.dispatch(caller, num, a1, a2, a3, a4)

	g.machine.SyscallReturn(int64(status))
	if g.sink != nil {
		g.sink.Emit(audit.Event{
			Kind:      audit.KindSyscall,
			Timestamp: g.machine.Timestamp(),
			Domain:    caller,
			Success:   status.Ok(),
			Payload:   [4]uint64{uint64(num), a1, reply},
		})
	}
	if g.monitor != nil {
		g.monitor.Run()
	}
	return status
}

func (g *Gate) dispatch(caller int32, num Num, a1, a2, a3, a4 uint64) (corestatus.Code, uint64) {
	switch num {
	case IPCCall:
		return g.ipcCall(caller, uint32(a1))
	case CapTransfer:
		return g.caps.Transfer(caller, int32(a2), uint32(a1)), 0
	case CapDerive:
		newCap, status := g.caps.Derive(caller, uint32(a1), capability.Rights(a2))
		return status, uint64(newCap)
	case CapRevoke:
		return g.caps.Revoke(uint32(a1)), 0
	default:
		return corestatus.NotSupported, 0
	}
}

// ipcCall implements IPC_CALL: verify the endpoint cap carries RightRead
// (the minimum needed to address it at all), resolve its target, and
// perform a synchronous domain_switch. No cancellation path exists — a
// callee that never replies blocks the caller until the endpoint cap is
// revoked out from under it or an external timeout fires, exactly as
// spec.md §4.5 and §6's suspension-point list describe.
func (g *Gate) ipcCall(caller int32, endpointCap uint32) (corestatus.Code, uint64) {
	if status := g.caps.CheckAccess(caller, endpointCap, capability.RightRead); !status.Ok() {
		return status, 0
	}
	entry, status := g.caps.GetInfo(endpointCap)
	if !status.Ok() {
		return status, 0
	}
	if entry.Type != capability.TypeEndpoint {
		return corestatus.InvalidParam, 0
	}

	target, ok := g.endpoint.Resolve(entry.Endpoint)
	if !ok {
		return corestatus.InvalidState, 0
	}
	if !g.domains.IsActive(target) {
		return corestatus.InvalidDomain, 0
	}

	reply, delivered := g.endpoint.DomainSwitch(target, [4]uint64{uint64(endpointCap)})
	if !delivered {
		return corestatus.InvalidState, 0
	}
	return corestatus.Success, reply[0]
}
