package view

import "sync"

// LogEntry records a single peer selection made by a PeerSelector.
type LogEntry struct {
	// SubscriberID identifies the subscriber (selector instance) that made
	// the selection.
	SubscriberID string

	// Address is the address that was selected.
	Address string

	// UnixMillis is the wall-clock time of the selection, in milliseconds
	// since the Unix epoch.
	UnixMillis int64
}

// Log records the sequence of peers handed out by selectors created via
// View.CreateSubscriber, for later inspection (e.g. by tests, or by an
// operator diagnosing skewed peer selection). It is the Go counterpart of
// the ring-buffer vector log kept by the reference implementation.
type Log interface {
	// Append records a single selection event.
	Append(entry LogEntry)

	// Snapshot returns a copy of every entry recorded so far, oldest
	// first.
	Snapshot() []LogEntry
}

// VectorLog is the default Log implementation: an unbounded,
// mutex-guarded slice. It is safe for concurrent use by multiple
// selectors sharing the same View.
type VectorLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewVectorLog creates an empty VectorLog.
func NewVectorLog() *VectorLog {
	return &VectorLog{}
}

// Append implements Log.
func (l *VectorLog) Append(entry LogEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Snapshot implements Log.
func (l *VectorLog) Snapshot() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)

	return out
}
