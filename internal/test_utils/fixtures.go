package test_utils

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/pkg/identity"
	"github.com/stretchr/testify/require"
)

// ContextAs returns a context carrying an identity with the given roles.
func ContextAs(userId int, roles ...identity.Role) context.Context {
	return identity.WithIdentity(context.Background(), identity.Identity{
		UserId:   userId,
		Uid:      fmt.Sprintf("uid-%d", userId),
		Username: fmt.Sprintf("user%d", userId),
		Roles:    roles,
	})
}

// CreateUser inserts a user holding roles and returns a context acting as that user.
func CreateUser(t *testing.T, db *pgxpool.Pool, username string, roles ...identity.Role) context.Context {
	t.Helper()
	ctx := context.Background()

	var userId int
	err := db.QueryRow(ctx, `INSERT INTO users (uid, username) VALUES ($1, $2) RETURNING id`,
		"uid-"+username, username).Scan(&userId)
	require.NoError(t, err)
	for _, role := range roles {
		_, err := db.Exec(ctx, `INSERT INTO user_role (user_id, role_id) SELECT $1, id FROM role WHERE name = $2`,
			userId, string(role))
		require.NoError(t, err)
	}

	return identity.WithIdentity(ctx, identity.Identity{
		UserId:   userId,
		Uid:      "uid-" + username,
		Username: username,
		Roles:    roles,
	})
}

func CreateFundCluster(t *testing.T, db *pgxpool.Pool, code string) int {
	t.Helper()
	var id int
	err := db.QueryRow(context.Background(), `INSERT INTO fund_cluster (code, name) VALUES ($1, $2) RETURNING id`,
		code, "Fund "+code).Scan(&id)
	require.NoError(t, err)
	return id
}

func CreateObjectOfExpenditure(t *testing.T, db *pgxpool.Pool, code string) int {
	t.Helper()
	var id int
	err := db.QueryRow(context.Background(), `INSERT INTO object_of_expenditure (code, name) VALUES ($1, $2) RETURNING id`,
		code, "Object "+code).Scan(&id)
	require.NoError(t, err)
	return id
}
