// Package session holds the per-process client session: who this client is,
// which backend mode was selected at startup, and the session-scoped admin
// state.
package session

import (
	"sync"

	"formboard/api/internal/store"
)

// Mode is the persistence and admin-resolution mode, fixed at startup.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

type Session struct {
	identity *store.ClientIdentity
	mode     Mode

	mu         sync.RWMutex
	localAdmin bool
	claim      *store.AdminClaim
}

// New creates a session. identity may be nil when the local store is
// unavailable.
func New(identity *store.ClientIdentity, mode Mode) *Session {
	return &Session{identity: identity, mode: mode}
}

func (s *Session) Mode() Mode {
	return s.mode
}

// Identity returns a copy of the client identity, or nil.
func (s *Session) Identity() *store.ClientIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

// LocalAdmin reports the session-scoped local admin flag.
func (s *Session) LocalAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localAdmin
}

func (s *Session) SetLocalAdmin(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localAdmin = on
}

// Claim returns the last known content of the remote admin slot.
func (s *Session) Claim() *store.AdminClaim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claim == nil {
		return nil
	}
	claim := *s.claim
	return &claim
}

func (s *Session) SetClaim(claim *store.AdminClaim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if claim == nil {
		s.claim = nil
		return
	}
	copied := *claim
	s.claim = &copied
}
