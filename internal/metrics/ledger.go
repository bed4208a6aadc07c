// Package metrics records per-operation timing and byte counts for transfer
// runs. A Ledger is constructed explicitly and handed to whatever needs it;
// it is written concurrently by task goroutines and read once the run is done.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// OperationStats is a snapshot of one named operation's accumulated metrics.
type OperationStats struct {
	// Count is how many times the operation was started.
	Count int

	// Bytes is the cumulative bytes recorded for the operation.
	Bytes int64

	// Duration covers the most recent start/end window. Zero while the
	// operation is still in progress.
	Duration time.Duration

	// InProgress reports whether a started window has not ended yet.
	InProgress bool
}

type operation struct {
	start      time.Time
	end        time.Time
	inProgress bool
	bytes      int64
	count      int
}

// Ledger accumulates operation metrics under a single lock. The zero value is
// not usable; construct with NewLedger.
type Ledger struct {
	mu  sync.Mutex
	ops map[string]*operation
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{ops: make(map[string]*operation)}
}

// Start stamps the start of a window for the named operation and counts the
// invocation. Starting an operation that is already in progress restarts its
// window.
func (l *Ledger) Start(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	op := l.op(name)
	op.start = time.Now()
	op.inProgress = true
	op.count++
}

// End stamps the end of the named operation's window. Unknown names and
// operations not in progress are ignored.
func (l *Ledger) End(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	op, ok := l.ops[name]
	if !ok || !op.inProgress {
		return
	}
	op.end = time.Now()
	op.inProgress = false
}

// AddBytes accumulates transferred bytes for the named operation, creating
// the entry if it does not exist yet.
func (l *Ledger) AddBytes(name string, n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.op(name).bytes += n
}

// Stats returns a snapshot for one operation. The second return is false for
// an unknown name.
func (l *Ledger) Stats(name string) (OperationStats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	op, ok := l.ops[name]
	if !ok {
		return OperationStats{}, false
	}
	return snapshot(op), true
}

// Snapshot returns a copy of every operation's stats keyed by name.
func (l *Ledger) Snapshot() map[string]OperationStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]OperationStats, len(l.ops))
	for name, op := range l.ops {
		out[name] = snapshot(op)
	}
	return out
}

// Report renders the ledger as a human-readable performance summary.
// Operations are listed in name order; entries that were never started are
// skipped.
func (l *Ledger) Report() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.ops))
	for name := range l.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("=== PERFORMANCE REPORT ===\n")

	for _, name := range names {
		op := l.ops[name]
		if op.count == 0 {
			continue
		}

		fmt.Fprintf(&b, "Operation: %s\n", name)
		fmt.Fprintf(&b, "  Count: %d\n", op.count)

		if op.inProgress {
			b.WriteString("  Status: In progress\n\n")
			continue
		}

		duration := op.end.Sub(op.start)
		fmt.Fprintf(&b, "  Duration: %d ms\n", duration.Milliseconds())

		if op.bytes > 0 {
			seconds := duration.Seconds()
			if seconds > 0 {
				mb := float64(op.bytes) / (1024.0 * 1024.0)
				fmt.Fprintf(&b, "  Data transferred: %.2f MB\n", mb)
				fmt.Fprintf(&b, "  Transfer rate: %.2f MB/s\n", mb/seconds)
			}
		}

		b.WriteString("\n")
	}

	return b.String()
}

// Reset clears every operation. Entries are only ever removed in bulk.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops = make(map[string]*operation)
}

// op returns the named entry, creating it if needed. Callers hold l.mu.
func (l *Ledger) op(name string) *operation {
	o, ok := l.ops[name]
	if !ok {
		o = &operation{}
		l.ops[name] = o
	}
	return o
}

func snapshot(op *operation) OperationStats {
	s := OperationStats{
		Count:      op.count,
		Bytes:      op.bytes,
		InProgress: op.inProgress,
	}
	if !op.inProgress && !op.start.IsZero() {
		s.Duration = op.end.Sub(op.start)
	}
	return s
}
