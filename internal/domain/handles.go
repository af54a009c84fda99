package domain

import "github.com/DslsDZC/HIC-sub002/internal/corestatus"

// HasHandle, InsertHandle, and RemoveHandle satisfy
// capability.DomainHandles, letting the capability system reach into a
// domain's handle array during create, transfer, derive and revoke
// without importing this package.

func (t *Table) HasHandle(domainID int32, capID uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(domainID)
	if !status.Ok() {
		return false
	}
	for i := range d.handles {
		if d.handles[i].used && d.handles[i].capID == capID {
			return true
		}
	}
	return false
}

func (t *Table) InsertHandle(domainID int32, capID uint32) corestatus.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(domainID)
	if !status.Ok() {
		return status
	}
	for i := range d.handles {
		if !d.handles[i].used {
			d.handles[i] = handle{used: true, capID: capID, token: t.nextToken()}
			d.Usage.Granted++
			return corestatus.Success
		}
	}
	return corestatus.QuotaExceeded
}

func (t *Table) RemoveHandle(domainID int32, capID uint32) corestatus.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(domainID)
	if !status.Ok() {
		return status
	}
	for i := range d.handles {
		if d.handles[i].used && d.handles[i].capID == capID {
			d.handles[i] = handle{}
			d.Usage.Revoked++
			return corestatus.Success
		}
	}
	return corestatus.CapInvalid
}

// CountCapabilities returns the number of live (used) handle slots —
// the monitor's direct-observation half of invariant 1, checked against
// the InitialCapCount+Granted-Revoked bookkeeping identity.
func (t *Table) CountCapabilities(id int32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, status := t.activeLocked(id)
	if !status.Ok() {
		return 0
	}
	n := 0
	for i := range d.handles {
		if d.handles[i].used {
			n++
		}
	}
	return n
}
