package serial

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/test_utils"
	"github.com/klokku/treasury/pkg/identity"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, *pgxpool.Pool, Repository) {
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	return ctx, db, NewRepo(db)
}

func TestRepositoryImpl_Next(t *testing.T) {
	t.Run("should issue 50 distinct gapless numbers to concurrent callers", func(t *testing.T) {
		// given
		_, db, repo := setupTestRepository(t)
		allocator := NewAllocator(repo, database.NewTransactor(db), nil)
		cashier := test_utils.ContextAs(7, identity.RoleCashier)
		scope := Scope{Series: SeriesOfficialReceipt, FiscalYear: 2025}
		results := make([]int64, 50)

		// when
		var g errgroup.Group
		for i := range results {
			g.Go(func() error {
				number, err := allocator.Allocate(cashier, scope)
				results[i] = number.Value
				return err
			})
		}
		require.NoError(t, g.Wait())

		// then
		slices.Sort(results)
		for i, value := range results {
			assert.Equal(t, int64(i+1), value)
		}
	})

	t.Run("should not consume a number when the transaction rolls back", func(t *testing.T) {
		// given
		ctx, db, repo := setupTestRepository(t)
		allocator := NewAllocator(repo, database.NewTransactor(db), nil)
		scope := Scope{Series: SeriesDV, FiscalYear: 2025}
		rollback := errors.New("document insert failed")

		// when
		err := database.NewTransactor(db).WithTransaction(ctx, func(q database.Queryer) error {
			_, err := allocator.AllocateTx(ctx, q, scope)
			require.NoError(t, err)
			return rollback
		})
		require.ErrorIs(t, err, rollback)
		current, _, err := allocator.Current(ctx, scope)

		// then
		require.NoError(t, err)
		assert.Equal(t, int64(0), current.Value)
	})

	t.Run("should fail with exhausted series at the end of a range", func(t *testing.T) {
		// given
		ctx, _, repo := setupTestRepository(t)
		require.NoError(t, repo.DefineRange(ctx, "OR:2025", 1, 2))

		// when
		first, err1 := repo.Next(ctx, "OR:2025")
		second, err2 := repo.Next(ctx, "OR:2025")
		_, err3 := repo.Next(ctx, "OR:2025")

		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, int64(1), first)
		assert.Equal(t, int64(2), second)
		assert.ErrorIs(t, err3, apperr.ErrSeriesExhausted)
		value, end, err := repo.Current(ctx, "OR:2025")
		require.NoError(t, err)
		assert.Equal(t, int64(2), value)
		require.NotNil(t, end)
		assert.Equal(t, int64(2), *end)
	})
}

func TestRepositoryImpl_DefineRange(t *testing.T) {
	t.Run("should refuse a range ending below issued numbers", func(t *testing.T) {
		// given
		ctx, _, repo := setupTestRepository(t)
		for range 3 {
			_, err := repo.Next(ctx, "OR:2025")
			require.NoError(t, err)
		}

		// when
		err := repo.DefineRange(ctx, "OR:2025", 1, 2)

		// then
		assert.ErrorIs(t, err, apperr.ErrStateConflict)
	})

	t.Run("should start a fresh range at its first value", func(t *testing.T) {
		// given
		ctx, _, repo := setupTestRepository(t)
		require.NoError(t, repo.DefineRange(ctx, "OR:2025", 5001, 6000))

		// when
		value, err := repo.Next(ctx, "OR:2025")

		// then
		require.NoError(t, err)
		assert.Equal(t, int64(5001), value)
	})
}

func TestRepositoryImpl_Current(t *testing.T) {
	ctx, _, repo := setupTestRepository(t)

	value, end, err := repo.Current(ctx, "DV:2030")

	require.NoError(t, err)
	assert.Equal(t, int64(0), value)
	assert.Nil(t, end)
}
