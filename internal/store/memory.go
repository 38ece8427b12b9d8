package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process store used by tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	cases    map[string]Case
	prompts  map[string]string
	sessions map[string]Session
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:    make(map[string]Case),
		prompts:  make(map[string]string),
		sessions: make(map[string]Session),
	}
}

func (s *MemoryStore) CreateCase(ctx context.Context, c Case) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.cases[c.ID] = c
	return c, nil
}

func (s *MemoryStore) GetCase(ctx context.Context, id string) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) TouchCase(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return ErrNotFound
	}
	c.LastActivityAt = at
	s.cases[id] = c
	return nil
}

func (s *MemoryStore) PutScoringPrompt(ctx context.Context, caseID, instructions string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[caseID] = instructions
	return nil
}

func (s *MemoryStore) ScoringPrompt(ctx context.Context, caseID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[caseID], nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(session), nil
}

func (s *MemoryStore) createLocked(session Session) Session {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	s.sessions[session.ID] = session
	s.order = append(s.order, session.ID)
	return session
}

func (s *MemoryStore) UpdateSession(ctx context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}
	session.CreatedAt = existing.CreatedAt
	session.UpdatedAt = time.Now().UTC()
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) FindSessionByConversationID(ctx context.Context, conversationID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.findByConversationLocked(conversationID)
	return session, ok, nil
}

func (s *MemoryStore) findByConversationLocked(conversationID string) (Session, bool) {
	if conversationID == "" {
		return Session{}, false
	}
	for _, id := range s.order {
		if s.sessions[id].ConversationID == conversationID {
			return s.sessions[id], true
		}
	}
	return Session{}, false
}

// ResolveSession holds the lock for the whole find-or-create, which is what
// makes it safe under duplicate webhook delivery.
func (s *MemoryStore) ResolveSession(ctx context.Context, caseID, conversationID string, stubAfter time.Time) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.findByConversationLocked(conversationID); ok {
		return session, nil
	}

	var stub *Session
	for _, id := range s.order {
		candidate := s.sessions[id]
		if candidate.CaseID != caseID || !candidate.IsStub() {
			continue
		}
		if candidate.CreatedAt.Before(stubAfter) {
			continue
		}
		if stub == nil || candidate.CreatedAt.After(stub.CreatedAt) {
			c := candidate
			stub = &c
		}
	}
	if stub != nil {
		return *stub, nil
	}

	return s.createLocked(Session{CaseID: caseID, ConversationID: conversationID}), nil
}
