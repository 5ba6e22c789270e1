package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrUserNotFound = errors.New("user not found")

type Repository interface {
	GetByUid(ctx context.Context, uid string) (Identity, error)
	CreateUser(ctx context.Context, uid string, username string, roles []Role) (Identity, error)
	ListRoles(ctx context.Context) (map[Role]int, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) GetByUid(ctx context.Context, uid string) (Identity, error) {
	query := `SELECT u.id, u.uid, u.username, COALESCE(array_agg(r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
				FROM users u
				LEFT JOIN user_role ur ON ur.user_id = u.id
				LEFT JOIN role r ON r.id = ur.role_id
				WHERE u.uid = $1
				GROUP BY u.id, u.uid, u.username`

	var id Identity
	var roles []string
	err := r.db.QueryRow(ctx, query, uid).Scan(&id.UserId, &id.Uid, &id.Username, &roles)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Debugf("user with uid %s not found", uid)
		return Identity{}, ErrUserNotFound
	} else if err != nil {
		log.Errorf("failed to get user: %v", err)
		return Identity{}, err
	}
	for _, role := range roles {
		id.Roles = append(id.Roles, Role(role))
	}
	return id, nil
}

func (r *repositoryImpl) CreateUser(ctx context.Context, uid string, username string, roles []Role) (Identity, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Identity{}, err
	}
	defer tx.Rollback(ctx)

	var userId int
	err = tx.QueryRow(ctx, `INSERT INTO users (uid, username) VALUES ($1, $2) RETURNING id`, uid, username).Scan(&userId)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return Identity{}, err
	}
	for _, role := range roles {
		tag, err := tx.Exec(ctx, `INSERT INTO user_role (user_id, role_id) SELECT $1, id FROM role WHERE name = $2`, userId, string(role))
		if err != nil {
			err := fmt.Errorf("could not execute query: %w", err)
			log.Error(err)
			return Identity{}, err
		}
		if tag.RowsAffected() == 0 {
			return Identity{}, fmt.Errorf("role %s is not provisioned", role)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Identity{}, fmt.Errorf("could not commit transaction: %w", err)
	}
	return Identity{UserId: userId, Uid: uid, Username: username, Roles: roles}, nil
}

func (r *repositoryImpl) ListRoles(ctx context.Context) (map[Role]int, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM role`)
	if err != nil {
		err := fmt.Errorf("could not query roles: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	roles := map[Role]int{}
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		roles[Role(name)] = id
	}
	return roles, rows.Err()
}
