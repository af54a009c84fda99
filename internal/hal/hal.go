// Package hal declares the hardware abstraction surface Core-0 depends on
// but does not implement: CPU halt/idle, interrupt masking, timestamps,
// memory barriers, physical/virtual address translation, port and MMIO
// I/O, and the architecture's syscall-return mechanism. The real,
// architecture-specific HAL (PIC/GIC programming, page-table flush,
// bootloader handoff) is an external collaborator per the core's scope
// and is never implemented in this repository; this package only pins
// down the interface shape every subsystem here is written against, plus
// a simulated implementation used by tests and the demo entry point.
package hal

// HAL is the hardware surface every Core-0 subsystem is coded against.
// A production boot wires a real architecture-specific implementation;
// this repository ships only Sim (below) and, on Linux, HostLinux, a thin
// golang.org/x/sys/unix-backed variant that takes its timestamps from the
// host clock and its MMIO space from an anonymous mapping. Neither one
// performs real port I/O; both record port writes in memory.
type HAL interface {
	Halt()
	Idle()

	// DisableInterrupts masks interrupts on the current CPU and returns
	// the prior enabled/disabled flag so the caller can restore it.
	DisableInterrupts() (prevEnabled bool)
	RestoreInterrupts(prevEnabled bool)

	Timestamp() uint64

	FullBarrier()
	ReadBarrier()
	WriteBarrier()

	PhysToVirt(phys uintptr) uintptr

	PortOut8(port uint16, val uint8)
	PortIn8(port uint16) uint8

	MMIOWrite32(addr uintptr, val uint32)
	MMIORead32(addr uintptr) uint32

	// SyscallReturn writes status into the architecture's syscall return
	// register. No-op on the simulated HAL; recorded for assertions.
	SyscallReturn(status int64)
}
