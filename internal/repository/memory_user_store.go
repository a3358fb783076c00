package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// MemoryUserStore resolves usernames to ids in process.
type MemoryUserStore struct {
	mu     sync.Mutex
	users  map[string]model.User
	nextID uint64
}

// NewMemoryUserStore returns an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]model.User)}
}

// ResolveOrCreateUser returns the id for username, creating a STUDENT
// user the first time the name is seen.
func (s *MemoryUserStore) ResolveOrCreateUser(ctx context.Context, username string) (uint64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, model.ErrInvalidUsername
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		return u.ID, nil
	}
	s.nextID++
	s.users[username] = model.User{ID: s.nextID, Username: username, Role: model.RoleStudent}
	return s.nextID, nil
}

// GetByUsername returns the user with the given name.
func (s *MemoryUserStore) GetByUsername(ctx context.Context, username string) (*model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.TrimSpace(username)]
	if !ok {
		return nil, false
	}
	return &u, true
}
