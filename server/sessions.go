package server

import (
	"sync"

	"classifieds_ad_publisher/adform"
)

// sessionStore keeps the live authoring sessions, one Machine per session.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*adform.Machine
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*adform.Machine)}
}

func (s *sessionStore) set(m *adform.Machine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[m.ID()] = m
}

// get only returns sessions owned by sellerID; someone else's session looks
// the same as a missing one.
func (s *sessionStore) get(id, sellerID string) (*adform.Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[id]
	if !ok || m.SellerID() != sellerID {
		return nil, false
	}
	return m, true
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// closeAll abandons every session, for shutdown.
func (s *sessionStore) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*adform.Machine)
	s.mu.Unlock()
	for _, m := range sessions {
		m.Close()
	}
}
