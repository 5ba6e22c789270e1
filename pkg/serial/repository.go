package serial

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// WithTx returns a repository whose statements run on q.
	WithTx(q database.Queryer) Repository
	// Next atomically increments the counter of scopeKey, creating it at 1 when absent.
	Next(ctx context.Context, scopeKey string) (int64, error)
	// DefineRange bounds scopeKey to [start, end]. Already issued values are never reissued.
	DefineRange(ctx context.Context, scopeKey string, start int64, end int64) error
	// Current returns the last issued value and the optional end of the series.
	Current(ctx context.Context, scopeKey string) (int64, *int64, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx database.Queryer
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(q database.Queryer) Repository {
	return &repositoryImpl{db: r.db, tx: q}
}

func (r *repositoryImpl) getQueryer() database.Queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repositoryImpl) Next(ctx context.Context, scopeKey string) (int64, error) {
	// The conflict branch takes the row lock, so concurrent callers of one scope serialize here
	// while other scopes proceed in parallel.
	query := `INSERT INTO sequence_counter (scope_key, value) VALUES ($1, 1)
				ON CONFLICT (scope_key) DO UPDATE
					SET value = sequence_counter.value + 1, updated_at = now()
					WHERE sequence_counter.end_value IS NULL OR sequence_counter.value < sequence_counter.end_value
				RETURNING value`

	var value int64
	err := r.getQueryer().QueryRow(ctx, query, scopeKey).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.SeriesExhausted(scopeKey)
	}
	if err != nil {
		err := fmt.Errorf("could not allocate serial for %s: %w", scopeKey, err)
		log.Error(err)
		return 0, err
	}
	return value, nil
}

func (r *repositoryImpl) DefineRange(ctx context.Context, scopeKey string, start int64, end int64) error {
	query := `INSERT INTO sequence_counter (scope_key, value, end_value) VALUES ($1, $2, $3)
				ON CONFLICT (scope_key) DO UPDATE
					SET value = GREATEST(sequence_counter.value, EXCLUDED.value),
						end_value = EXCLUDED.end_value,
						updated_at = now()
					WHERE sequence_counter.value <= EXCLUDED.end_value
				RETURNING value`

	var value int64
	err := r.getQueryer().QueryRow(ctx, query, scopeKey, start-1, end).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Conflict("series", scopeKey, "numbers beyond %d were already issued", end)
	}
	if err != nil {
		err := fmt.Errorf("could not define range for %s: %w", scopeKey, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *repositoryImpl) Current(ctx context.Context, scopeKey string) (int64, *int64, error) {
	query := `SELECT value, end_value FROM sequence_counter WHERE scope_key = $1`

	var value int64
	var end *int64
	err := r.getQueryer().QueryRow(ctx, query, scopeKey).Scan(&value, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		err := fmt.Errorf("could not read serial for %s: %w", scopeKey, err)
		log.Error(err)
		return 0, nil, err
	}
	return value, end, nil
}
