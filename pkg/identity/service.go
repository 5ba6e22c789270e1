package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/klokku/treasury/internal/apperr"
)

type Service interface {
	CurrentUser(ctx context.Context) (Identity, error)
	// CreateUser provisions a user with roles. Only administrators may call it.
	CreateUser(ctx context.Context, uid string, username string, roles []Role) (Identity, error)
	// Resolve loads the identity behind an authenticated uid.
	Resolve(ctx context.Context, uid string) (Identity, error)
}

type ServiceImpl struct {
	repo Repository
}

func NewService(repo Repository) *ServiceImpl {
	return &ServiceImpl{repo: repo}
}

func (s *ServiceImpl) CurrentUser(ctx context.Context) (Identity, error) {
	id, err := Current(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	return id, nil
}

func (s *ServiceImpl) CreateUser(ctx context.Context, uid string, username string, roles []Role) (Identity, error) {
	actor, err := Current(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if !actor.HasRole(RoleAdministrator) {
		return Identity{}, apperr.Permission(actor.UserId, string(RoleAdministrator))
	}
	uid, username = strings.TrimSpace(uid), strings.TrimSpace(username)
	if uid == "" || username == "" {
		return Identity{}, apperr.Validation("uid and username are required")
	}
	for _, role := range roles {
		if !slices.Contains(RequiredRoles, role) {
			return Identity{}, apperr.Validation("unknown role %q", role)
		}
	}
	if _, err := s.repo.GetByUid(ctx, uid); err == nil {
		return Identity{}, apperr.Conflict("user", uid, "uid already registered")
	} else if !errors.Is(err, ErrUserNotFound) {
		return Identity{}, err
	}
	return s.repo.CreateUser(ctx, uid, username, slices.Compact(slices.Sorted(slices.Values(roles))))
}

func (s *ServiceImpl) Resolve(ctx context.Context, uid string) (Identity, error) {
	return s.repo.GetByUid(ctx, uid)
}
