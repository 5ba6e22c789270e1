package identity

import (
	"context"
	"sync"
)

type RepositoryStub struct {
	mu     sync.Mutex
	nextId int
	users  map[string]Identity
	roles  map[Role]int
}

// NewRepositoryStub returns a stub provisioned with every RequiredRoles entry.
func NewRepositoryStub() *RepositoryStub {
	roles := map[Role]int{}
	for i, r := range RequiredRoles {
		roles[r] = i + 1
	}
	return &RepositoryStub{users: map[string]Identity{}, roles: roles}
}

func (s *RepositoryStub) GetByUid(_ context.Context, uid string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.users[uid]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return id, nil
}

func (s *RepositoryStub) CreateUser(_ context.Context, uid string, username string, roles []Role) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	id := Identity{UserId: s.nextId, Uid: uid, Username: username, Roles: roles}
	s.users[uid] = id
	return id, nil
}

func (s *RepositoryStub) ListRoles(_ context.Context) (map[Role]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make(map[Role]int, len(s.roles))
	for k, v := range s.roles {
		roles[k] = v
	}
	return roles, nil
}

// RemoveRole simulates a database where role was never provisioned.
func (s *RepositoryStub) RemoveRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, role)
}
