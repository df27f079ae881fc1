// Package registry maps call identifiers to bridging sessions and governs
// their lifecycle: insert on stream start, delayed eviction after the call
// ends so late transcript queries still resolve.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/voicelink/voicelink/pkg/bridge/session"
)

type entry struct {
	session *session.Session
	timer   *time.Timer
}

// Registry is the only cross-session shared structure. All methods are safe
// for concurrent use; mutation is insert-on-start and remove-on-eviction.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds or replaces the session for callID. A pending eviction for a
// replaced entry is cancelled.
func (r *Registry) Register(callID string, s *session.Session) {
	if callID == "" || s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[callID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	r.entries[callID] = &entry{session: s}
}

// Get returns the session for callID.
func (r *Registry) Get(callID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[callID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Active returns the sorted call identifiers currently registered.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ScheduleEviction removes callID after delay. The entry stays queryable for
// the full delay; after it fires the entry is removed unconditionally.
// Scheduling again resets the timer.
func (r *Registry) ScheduleEviction(callID string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[callID]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	if delay <= 0 {
		delete(r.entries, callID)
		return
	}
	e.timer = time.AfterFunc(delay, func() {
		r.evict(callID)
	})
}

func (r *Registry) evict(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, callID)
}
