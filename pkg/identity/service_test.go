package identity

import (
	"context"
	"testing"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func as(roles ...Role) context.Context {
	return WithIdentity(context.Background(), Identity{UserId: 100, Uid: "admin", Username: "admin", Roles: roles})
}

func TestServiceImpl_CreateUser(t *testing.T) {
	t.Run("should create user with deduplicated roles", func(t *testing.T) {
		// given
		service := NewService(NewRepositoryStub())

		// when
		created, err := service.CreateUser(as(RoleAdministrator), " uid-1 ", "maria", []Role{RoleCashier, RoleAccountant, RoleCashier})

		// then
		require.NoError(t, err)
		assert.Equal(t, "uid-1", created.Uid)
		assert.Equal(t, []Role{RoleAccountant, RoleCashier}, created.Roles)
		resolved, err := service.Resolve(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.Equal(t, created.UserId, resolved.UserId)
	})

	t.Run("should require administrator", func(t *testing.T) {
		service := NewService(NewRepositoryStub())

		_, err := service.CreateUser(as(RoleAccountant), "uid-1", "maria", nil)

		assert.ErrorIs(t, err, apperr.ErrPermission)
	})

	t.Run("should reject unknown role and duplicate uid", func(t *testing.T) {
		service := NewService(NewRepositoryStub())
		admin := as(RoleAdministrator)

		_, err := service.CreateUser(admin, "uid-1", "maria", []Role{"auditor"})
		assert.ErrorIs(t, err, apperr.ErrValidation)

		_, err = service.CreateUser(admin, "uid-1", "maria", nil)
		require.NoError(t, err)
		_, err = service.CreateUser(admin, "uid-1", "other", nil)
		assert.ErrorIs(t, err, apperr.ErrStateConflict)
	})

	t.Run("should fail without identity", func(t *testing.T) {
		service := NewService(NewRepositoryStub())

		_, err := service.CurrentUser(context.Background())

		assert.ErrorIs(t, err, ErrNoIdentity)
		assert.ErrorIs(t, err, apperr.ErrPermission)
	})
}
