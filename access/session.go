package access

import (
	"sync"

	"fixmyarea-be/models"
)

// Session is one signed-in caller. It carries the caller's role once resolved, so role
// lookups happen at most once per session until the role is invalidated.
type Session struct {
	id       string
	callerID string

	mu       sync.Mutex
	role     models.Role
	resolved bool
	closed   bool
	// gen advances on every invalidation so lookups started earlier cannot cache.
	gen uint64
}

func (s *Session) ID() string { return s.id }

func (s *Session) CallerID() string { return s.callerID }

// Closed reports whether the session was signed out or discarded.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// cachedRole returns the cached role, if any, and the generation a lookup must present
// to cacheRole.
func (s *Session) cachedRole() (models.Role, bool, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role, s.resolved, s.gen
}

// cacheRole stores r unless the session was invalidated or closed after generation gen
// was read.
func (s *Session) cacheRole(r models.Role, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		return
	}
	s.role = r
	s.resolved = true
}

func (s *Session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.role = ""
	s.resolved = false
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.closed = true
	s.role = ""
	s.resolved = false
}

// Sessions is the registry of live sessions, keyed by session id.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*Session)}
}

// Open starts a fresh session for callerID, replacing any session with the same id.
func (r *Sessions) Open(sessionID, callerID string) *Session {
	s := &Session{id: sessionID, callerID: callerID}
	r.mu.Lock()
	old := r.byID[sessionID]
	r.byID[sessionID] = s
	r.mu.Unlock()
	if old != nil {
		old.close()
	}
	return s
}

// Resume returns the live session for sessionID if it belongs to callerID. A session
// owned by someone else is discarded and a new one opened, never handed over.
func (r *Sessions) Resume(sessionID, callerID string) *Session {
	r.mu.RLock()
	s, ok := r.byID[sessionID]
	r.mu.RUnlock()
	if ok && s.callerID == callerID && !s.Closed() {
		return s
	}
	return r.Open(sessionID, callerID)
}

// Close discards a session and its cached role.
func (r *Sessions) Close(sessionID string) {
	r.mu.Lock()
	s := r.byID[sessionID]
	delete(r.byID, sessionID)
	r.mu.Unlock()
	if s != nil {
		s.close()
	}
}

// CloseCaller discards every session of callerID.
func (r *Sessions) CloseCaller(callerID string) {
	for _, s := range r.take(callerID, true) {
		s.close()
	}
}

// InvalidateCaller drops the cached role in every session of callerID; the next check
// reads the role from the store again.
func (r *Sessions) InvalidateCaller(callerID string) {
	for _, s := range r.take(callerID, false) {
		s.invalidate()
	}
}

func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Sessions) take(callerID string, remove bool) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for id, s := range r.byID {
		if s.callerID != callerID {
			continue
		}
		out = append(out, s)
		if remove {
			delete(r.byID, id)
		}
	}
	return out
}
