//go:build linux

package hal

import (
	"sync"

	"golang.org/x/sys/unix"
)

// HostLinux is a HAL backed by real host facilities where the kernel lets
// an unprivileged process reach them: CLOCK_MONOTONIC for Timestamp, and
// an anonymous mmap region standing in for the MMIO address space (actual
// port I/O and physical MMIO still require privileges and architecture
// support this repository does not attempt to provide — those calls fall
// back to the same recording behavior as Sim). The demo binary and the
// tests use Sim; nothing in this repository constructs a HostLinux.
type HostLinux struct {
	mu    sync.Mutex
	ena   bool
	mmio  []byte
	ports map[uint16]uint8

	LastSyscallReturn int64
}

const hostLinuxMMIOSize = 1 << 20

// NewHostLinux mmaps a private anonymous region to back MMIORead32/Write32
// and reports an error if the mapping fails (e.g. under a sandboxed
// seccomp profile that denies mmap(MAP_ANONYMOUS)).
func NewHostLinux() (*HostLinux, error) {
	data, err := unix.Mmap(-1, 0, hostLinuxMMIOSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &HostLinux{ena: true, mmio: data, ports: make(map[uint16]uint8)}, nil
}

func (h *HostLinux) Close() error {
	return unix.Munmap(h.mmio)
}

func (h *HostLinux) Halt() {}
func (h *HostLinux) Idle() {}

func (h *HostLinux) DisableInterrupts() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.ena
	h.ena = false
	return prev
}

func (h *HostLinux) RestoreInterrupts(prev bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ena = prev
}

func (h *HostLinux) Timestamp() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1_000_000_000 + uint64(ts.Nsec)
}

func (h *HostLinux) FullBarrier()  {}
func (h *HostLinux) ReadBarrier()  {}
func (h *HostLinux) WriteBarrier() {}

func (h *HostLinux) PhysToVirt(phys uintptr) uintptr { return phys }

func (h *HostLinux) PortOut8(port uint16, val uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ports[port] = val
}

func (h *HostLinux) PortIn8(port uint16) uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ports[port]
}

func (h *HostLinux) MMIOWrite32(addr uintptr, val uint32) {
	off := addr % uintptr(len(h.mmio)-3)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mmio[off] = byte(val)
	h.mmio[off+1] = byte(val >> 8)
	h.mmio[off+2] = byte(val >> 16)
	h.mmio[off+3] = byte(val >> 24)
}

func (h *HostLinux) MMIORead32(addr uintptr) uint32 {
	off := addr % uintptr(len(h.mmio)-3)
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint32(h.mmio[off]) | uint32(h.mmio[off+1])<<8 |
		uint32(h.mmio[off+2])<<16 | uint32(h.mmio[off+3])<<24
}

func (h *HostLinux) SyscallReturn(status int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastSyscallReturn = status
}
