package session

import (
	"context"
	"sync"
)

// Locked serializes access to a DocumentSession from several goroutines,
// such as the MCP server and the autosave scheduler. Every call runs on the
// session as if from a single event thread.
type Locked struct {
	mu sync.Mutex
	s  *DocumentSession
}

// NewLocked wraps s.
func NewLocked(s *DocumentSession) *Locked {
	return &Locked{s: s}
}

// Do runs fn with exclusive access to the session.
func (l *Locked) Do(fn func(s *DocumentSession) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.s)
}

// View is Do for read-only callers that return a value.
func View[T any](l *Locked, fn func(s *DocumentSession) (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.s)
}

// DocumentID returns the id of the wrapped document.
func (l *Locked) DocumentID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.ID()
}

// Autosave runs DocumentSession.Autosave under the lock.
func (l *Locked) Autosave(ctx context.Context) (bool, error) {
	return View(l, func(s *DocumentSession) (bool, error) { return s.Autosave(ctx) })
}
