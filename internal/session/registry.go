package session

import (
	"log/slog"
	"sync"

	"github.com/adaptcast/webrtc-multicast/internal/metrics"
)

// Registry is the single source of truth mapping viewer identity to session.
// All mutations go through its lock; at no instant do two live sessions share
// an id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// SessionInfo is a point-in-time view of one session, for the admin API.
type SessionInfo struct {
	ID    string `json:"id"`
	Mode  string `json:"mode"`
	State string `json:"state"`
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Upsert returns a freshly inserted session for id. If a live session already
// exists, its teardown is triggered and completion awaited before the new one
// is created, so the old and new instance never both hold a media branch. The
// wait is on the predecessor's completion channel, never a fixed delay.
func (r *Registry) Upsert(id string, create func() *Session) *Session {
	for {
		r.mu.Lock()
		old, exists := r.sessions[id]
		if !exists {
			s := create()
			r.sessions[id] = s
			metrics.ActiveSessions.Set(float64(len(r.sessions)))
			r.mu.Unlock()
			return s
		}
		r.mu.Unlock()

		slog.Info("replacing live session", "id", id)
		old.Teardown(ReasonReplaced)
		<-old.Closed()
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes the registry entry for id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}

// removeSession deletes the entry only if it still maps to s; a replacement
// session registered under the same id is left untouched.
func (r *Registry) removeSession(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[id]; ok && current == s {
		delete(r.sessions, id)
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns a copy of the current session set for the admin API.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, SessionInfo{
			ID:    s.ID(),
			Mode:  s.Mode().String(),
			State: s.State().String(),
		})
	}
	return infos
}

// Shutdown tears down every live session and waits for each to finish.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.Teardown(ReasonShutdown)
	}
	for _, s := range live {
		<-s.Closed()
	}
}
