package capability

import (
	"github.com/google/uuid"

	"github.com/DslsDZC/HIC-sub002/internal/corestatus"
)

// CreateMemory allocates a Memory-typed capability naming [base,base+size)
// with rights, owned by owner, and installs a handle for it in owner's
// capability array. The region itself is not carved out of the PMM here
// — that is domain.Create's job; this only mints the unforgeable
// reference to a region the caller already owns.
func (s *System) CreateMemory(owner int32, base, size uint64, rights Rights) (uint32, corestatus.Code) {
	if size == 0 {
		return 0, corestatus.InvalidParam
	}
	return s.create(owner, Entry{
		Type:   TypeMemory,
		Rights: rights,
		Memory: MemoryPayload{Base: base, Size: size},
	})
}

func (s *System) CreateMMIO(owner int32, base, size uint64, rights Rights) (uint32, corestatus.Code) {
	if size == 0 {
		return 0, corestatus.InvalidParam
	}
	return s.create(owner, Entry{
		Type:   TypeMMIO,
		Rights: rights,
		MMIO:   MMIOPayload{Base: base, Size: size},
	})
}

func (s *System) CreateIRQ(owner int32, vector uint32, rights Rights) (uint32, corestatus.Code) {
	if vector > 255 {
		return 0, corestatus.InvalidParam
	}
	return s.create(owner, Entry{
		Type:   TypeIRQ,
		Rights: rights,
		IRQ:    IRQPayload{Vector: vector},
	})
}

func (s *System) CreateEndpoint(owner int32, targetDomain int32, endpointID uint64, rights Rights) (uint32, corestatus.Code) {
	return s.create(owner, Entry{
		Type:     TypeEndpoint,
		Rights:   rights,
		Endpoint: EndpointPayload{TargetDomain: targetDomain, EndpointID: endpointID},
	})
}

// CreateService mints a Service capability carrying a fresh UUID, per
// spec.md §3's "service UUID" payload field.
func (s *System) CreateService(owner int32, rights Rights) (uint32, corestatus.Code) {
	return s.create(owner, Entry{
		Type:    TypeService,
		Rights:  rights,
		Service: ServicePayload{UUID: uuid.New()},
	})
}

// create is the shared typed-constructor body: allocate a slot, populate
// it from template (Owner/CapID/RefCount get filled in here), publish it,
// and install a handle in the owner's capability array. If the handle
// insert fails (quota exceeded), the slot is rolled back and freed —
// construction never partially commits.
func (s *System) create(owner int32, template Entry) (uint32, corestatus.Code) {
	s.mu.Lock()
	idx, ok := s.allocSlot()
	if !ok {
		s.mu.Unlock()
		return 0, corestatus.NoResource
	}

	template.CapID = idx
	template.Owner = owner
	template.RefCount = 1
	s.entries[idx].Store(&template)
	s.mu.Unlock()

	if s.domains != nil {
		if status := s.domains.InsertHandle(owner, idx); !status.Ok() {
			s.mu.Lock()
			s.entries[idx].Store(nil)
			s.freeSlot(idx)
			s.mu.Unlock()
			return 0, status
		}
	}

	return idx, corestatus.Success
}
