package hal

import (
	"sync"
	"sync/atomic"
)

// Sim is an in-memory HAL used by subsystem tests and the demo entry
// point. It models MMIO/port space as plain maps guarded by a mutex and
// the interrupt-enable flag as a single atomic bool, so concurrent
// dispatch/register_handler races can be exercised under `go test -race`
// the same way the real lock-free table publication would be.
type Sim struct {
	mu  sync.Mutex
	ts  uint64
	ena atomic.Bool

	ports map[uint16]uint8
	mmio  map[uintptr]uint32

	// PortWrites/MMIOWrites record every write in order, so tests can
	// assert on the exact EOI write the dispatcher issues after the
	// handler returns (0x20 to a PIC command port for vectors below 32,
	// an MMIO write for the rest, including scenario 4's vector 33).
	PortWrites []PortWrite
	MMIOWrites []MMIOWrite

	LastSyscallReturn int64

	// Halted records whether Halt has been called, so tests can assert
	// on the integrity-failure halt path (spec.md §7) without a real CPU
	// to stop.
	Halted bool
}

type PortWrite struct {
	Port uint16
	Val  uint8
}

type MMIOWrite struct {
	Addr uintptr
	Val  uint32
}

// NewSim returns a Sim with interrupts initially enabled, matching the
// state the core expects once boot hands off control.
func NewSim() *Sim {
	s := &Sim{
		ports: make(map[uint16]uint8),
		mmio:  make(map[uintptr]uint32),
	}
	s.ena.Store(true)
	return s
}

func (s *Sim) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Halted = true
}
func (s *Sim) Idle() {}

func (s *Sim) DisableInterrupts() bool {
	prev := s.ena.Swap(false)
	return prev
}

func (s *Sim) RestoreInterrupts(prev bool) {
	s.ena.Store(prev)
}

func (s *Sim) Timestamp() uint64 {
	return atomic.AddUint64(&s.ts, 1)
}

func (s *Sim) FullBarrier()  {}
func (s *Sim) ReadBarrier()  {}
func (s *Sim) WriteBarrier() {}

func (s *Sim) PhysToVirt(phys uintptr) uintptr { return phys }

func (s *Sim) PortOut8(port uint16, val uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[port] = val
	s.PortWrites = append(s.PortWrites, PortWrite{Port: port, Val: val})
}

func (s *Sim) PortIn8(port uint16) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ports[port]
}

func (s *Sim) MMIOWrite32(addr uintptr, val uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mmio[addr] = val
	s.MMIOWrites = append(s.MMIOWrites, MMIOWrite{Addr: addr, Val: val})
}

func (s *Sim) MMIORead32(addr uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mmio[addr]
}

func (s *Sim) SyscallReturn(status int64) {
	atomic.StoreInt64(&s.LastSyscallReturn, status)
}

// Legacy PIC ports, named the way the interrupt dispatcher's design notes
// describe them: vectors below 32 EOI through the PIC command port.
const (
	PIC1CommandPort uint16 = 0x20
	PIC2CommandPort uint16 = 0xA0
	PICEOI          uint8  = 0x20
)
