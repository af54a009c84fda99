// Package kernel wires the PMM, capability system, domain table, IRQ
// dispatcher, syscall gate, and invariant monitor into the single
// "kernel context" object design notes §9 calls for in place of
// package-level globals, and drives the boot sequence spec.md §8
// scenario 1 describes.
package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/DslsDZC/HIC-sub002/internal/audit"
	"github.com/DslsDZC/HIC-sub002/internal/bootinfo"
	"github.com/DslsDZC/HIC-sub002/internal/capability"
	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
	"github.com/DslsDZC/HIC-sub002/internal/domain"
	"github.com/DslsDZC/HIC-sub002/internal/hal"
	"github.com/DslsDZC/HIC-sub002/internal/irq"
	"github.com/DslsDZC/HIC-sub002/internal/monitor"
	"github.com/DslsDZC/HIC-sub002/internal/platformconfig"
	"github.com/DslsDZC/HIC-sub002/internal/pmm"
	"github.com/DslsDZC/HIC-sub002/internal/sysgate"
)

// CoreDomainQuota is the Core-0 domain's quota, per spec.md §8 scenario
// 1: max_memory=0x100000, max_threads=16, max_caps=1024, cpu=100.
var CoreDomainQuota = domain.Quota{
	MaxMemory:       0x100000,
	MaxThreads:      16,
	MaxCaps:         1024,
	CPUQuotaPercent: 100,
}

// Context is every subsystem singleton, wired together and owned by one
// object instead of package-level state.
type Context struct {
	PMM        *pmm.Manager
	Caps       *capability.System
	Domains    *domain.Table
	IRQ        *irq.Dispatcher
	Syscalls   *sysgate.Gate
	Monitor    *monitor.Monitor
	Machine    hal.HAL
	Audit      audit.Sink
	Config     platformconfig.Config
	CoreDomain int32

	log *logrus.Logger
}

// New constructs every subsystem against machine and config but does not
// yet carve out any memory region or create Core-0 — call Boot for that.
func New(machine hal.HAL, config platformconfig.Config, endpoint sysgate.Endpoint, log *logrus.Logger) *Context {
	if log == nil {
		log = logrus.StandardLogger()
	}
	sink := audit.NewRingSink(1024, log)

	p := pmm.New()
	caps := capability.New(config.CapTableSize)
	domains := domain.New(config.MaxDomains, p, caps)
	caps.SetDomainHandles(domains)
	irqd := irq.New(caps, machine)
	mon := monitor.New(p, caps, domains, irqd, nil, config, machine, sink, log)
	domains.SetMonitor(mon)
	gate := sysgate.New(caps, domains, endpoint, sink, machine, mon)

	return &Context{
		PMM: p, Caps: caps, Domains: domains, IRQ: irqd, Syscalls: gate, Monitor: mon,
		Machine: machine, Audit: sink, Config: config, CoreDomain: domain.Invalid,
		log: log,
	}
}

// Boot runs the sequence spec.md §8 scenario 1 describes: register every
// usable memory-map region with the PMM, then create the Core-0 domain
// with CoreDomainQuota and FlagTrusted. The newly created domain's id is
// recorded as Context.CoreDomain and the monitor is run once before
// returning, matching the "invoked after every domain_create" rule in
// spec.md §4.6.
func (c *Context) Boot(info bootinfo.Info) corestatus.Code {
	if !info.Valid() {
		return corestatus.InvalidParam
	}

	for _, e := range info.MemMap {
		if e.Type != bootinfo.MemUsable {
			continue
		}
		if status := c.PMM.AddRegion(e.Base, e.Length); !status.Ok() {
			return status
		}
	}

	id, status := c.Domains.Create(domain.FlagTrusted, domain.Invalid, CoreDomainQuota)
	if !status.Ok() {
		return status
	}
	c.Domains.SetInitialCapCount(id, 0)
	if status := c.Domains.MarkRunning(id); !status.Ok() {
		return status
	}
	c.CoreDomain = id

	c.Audit.Emit(audit.Event{
		Kind:      audit.KindDomainCreate,
		Timestamp: c.Machine.Timestamp(),
		Domain:    id,
		Success:   true,
	})

	return c.Monitor.CheckAll(nil)
}

// Report renders a one-line summary of the current kernel state, printed
// by the demo binary's "boot" and "selftest" subcommands.
func (c *Context) Report() string {
	stats := c.PMM.GetStats()
	return fmt.Sprintf(
		"core_domain=%d pmm{total=%d used=%d free=%d reserved=%d} %s",
		c.CoreDomain, stats.TotalPages, stats.UsedPages, stats.FreePages, stats.ReservedPages,
		c.Monitor.GetReport(),
	)
}
