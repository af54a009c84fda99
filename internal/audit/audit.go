// Package audit defines the event sink Core-0 emits into after every
// syscall, on Core-0's creation at boot, and on every invariant
// violation. KindPMMAlloc and KindException are defined, but nothing in
// this repository emits them. The durable audit-log ring buffer is an external
// collaborator per spec.md §1; this package only pins down the Sink
// interface the core writes to, plus an in-memory RingSink used by tests
// and the demo binary.
package audit

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindDomainCreate      Kind = "DOMAIN_CREATE"
	KindSyscall           Kind = "SYSCALL"
	KindPMMAlloc          Kind = "PMM_ALLOC"
	KindException         Kind = "EXCEPTION"
	KindSecurityViolation Kind = "SECURITY_VIOLATION"
)

// Event is one audit record, per spec.md §6: timestamp, domain,
// success/failure, and a 4-word payload, plus a free-form Detail string
// carrying whatever diagnostic context the emitting subsystem attached
// (see corestatus's diagnostic-wrapping note in SPEC_FULL.md §7).
type Event struct {
	Kind      Kind
	Timestamp uint64
	Domain    int32
	Success   bool
	Payload   [4]uint64
	Detail    string
}

// Sink is the interface the core emits audit events into.
type Sink interface {
	Emit(Event)
}

// RingSink is a fixed-capacity ring buffer of the most recent events,
// mirroring the production audit log's shape closely enough for tests
// and the demo to assert against, backed by a logrus logger for the
// human-readable side channel spec.md §7 calls the "detailed diagnostic
// channel".
type RingSink struct {
	mu     sync.Mutex
	buf    []Event
	cap    int
	next   int
	filled bool

	log *logrus.Logger
}

// NewRingSink allocates a ring of the given capacity. log may be nil, in
// which case logrus.StandardLogger() is used.
func NewRingSink(capacity int, log *logrus.Logger) *RingSink {
	if capacity <= 0 {
		capacity = 256
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RingSink{
		buf: make([]Event, capacity),
		cap: capacity,
		log: log,
	}
}

func (r *RingSink) Emit(e Event) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.filled = true
	}
	r.mu.Unlock()

	fields := logrus.Fields{
		"kind":    e.Kind,
		"domain":  e.Domain,
		"success": e.Success,
		"ts":      e.Timestamp,
	}
	if e.Detail != "" {
		fields["detail"] = e.Detail
	}
	entry := r.log.WithFields(fields)
	if e.Success {
		entry.Debug("audit event")
	} else {
		entry.Warn("audit event")
	}
}

// Recent returns up to n most-recently-emitted events, oldest first.
func (r *RingSink) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.next
	if r.filled {
		total = r.cap
	}
	if n <= 0 || n > total {
		n = total
	}

	out := make([]Event, 0, n)
	start := r.next - n
	for i := 0; i < n; i++ {
		idx := (start + i + r.cap) % r.cap
		out = append(out, r.buf[idx])
	}
	return out
}

// Len reports how many events are currently stored (capped at capacity).
func (r *RingSink) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		return r.cap
	}
	return r.next
}
