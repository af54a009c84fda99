package capability

import "github.com/DslsDZC/HIC-sub002/internal/corestatus"

// Transfer moves ownership of cap from one domain to another, per
// spec.md §4.2: (1) the source must hold cap with GRANT right, (2) a
// handle is inserted into the destination (QuotaExceeded if its array is
// full), (3) the source handle is removed. Both sides succeed or neither
// is modified — the destination insert is attempted before the source
// removal, and rolled back if the removal somehow fails, so there is no
// window where the capability is simultaneously absent from both
// domains or present in both.
func (s *System) Transfer(from, to int32, capID uint32) corestatus.Code {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, live := s.loadLocked(capID)
	if !live {
		return corestatus.CapInvalid
	}
	if entry.Owner != from {
		return corestatus.Permission
	}
	if entry.Rights&RightGrant != RightGrant {
		return corestatus.Permission
	}
	if s.domains != nil && !s.domains.HasHandle(from, capID) {
		return corestatus.Permission
	}

	if s.domains != nil {
		if status := s.domains.InsertHandle(to, capID); !status.Ok() {
			return status
		}
		if status := s.domains.RemoveHandle(from, capID); !status.Ok() {
			// Roll back the destination insert: neither side keeps it.
			s.domains.RemoveHandle(to, capID)
			return status
		}
	}

	updated := *entry
	updated.Owner = to
	s.entries[capID].Store(&updated)
	return corestatus.Success
}
