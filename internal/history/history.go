package history

import (
	"errors"
	"sync"
)

// ErrNoPriorVersion is returned by Revert when fewer than two snapshots
// exist: there is no "previous" distinct from the current tip.
var ErrNoPriorVersion = errors.New("no prior version")

// Log is an append-only sequence of whole-document snapshots, truncated from
// the tail on revert. Each participant keeps their own log of locally-typed
// revisions; remotely-received content is never recorded.
type Log struct {
	mu       sync.Mutex
	versions []string
}

func NewLog() *Log { return &Log{} }

// Record appends a snapshot unconditionally.
func (l *Log) Record(doc string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.versions = append(l.versions, doc)
}

// Revert returns the second-most-recent snapshot and discards the most
// recent one. With fewer than two entries it fails and mutates nothing.
// Repeated calls walk backward one step at a time.
func (l *Log) Revert() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.versions) < 2 {
		return "", ErrNoPriorVersion
	}
	prev := l.versions[len(l.versions)-2]
	l.versions = l.versions[:len(l.versions)-1]
	return prev, nil
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.versions)
}

// Snapshot returns a copy of the recorded versions, oldest first.
func (l *Log) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.versions))
	copy(out, l.versions)
	return out
}
