package disbursement

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/event_bus"
	"github.com/klokku/treasury/internal/test_utils"
	"github.com/klokku/treasury/internal/utils"
	"github.com/klokku/treasury/pkg/identity"
	"github.com/klokku/treasury/pkg/ledger"
	"github.com/klokku/treasury/pkg/serial"
	"github.com/klokku/treasury/pkg/workflow"
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

type dbFixture struct {
	db            *pgxpool.Pool
	service       *ServiceImpl
	engine        *workflow.EngineImpl
	fundClusterId int
	objectId      int
	clerk         context.Context
	cashier       context.Context
	approvers     []context.Context
}

func setupTestService(t *testing.T) dbFixture {
	t.Helper()
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})

	catalog, err := identity.LoadRoleCatalog(ctx, identity.NewRepo(db), identity.RequiredRoles)
	require.NoError(t, err)
	tx := database.NewTransactor(db)
	bus := event_bus.NewEventBus()
	engine := workflow.NewEngine(workflow.NewRepo(db), tx, catalog, bus, utils.SystemClock{})
	allocator := serial.NewAllocator(serial.NewRepo(db), tx, bus)

	return dbFixture{
		db:            db,
		service:       NewService(NewRepo(db), ledger.NewRepo(db), engine, allocator, tx, bus, utils.SystemClock{}),
		engine:        engine,
		fundClusterId: test_utils.CreateFundCluster(t, db, "01"),
		objectId:      test_utils.CreateObjectOfExpenditure(t, db, "5020101000"),
		clerk:         test_utils.CreateUser(t, db, "clerk"),
		cashier:       test_utils.CreateUser(t, db, "cashier", identity.RoleCashier),
		approvers: []context.Context{
			test_utils.CreateUser(t, db, "head", identity.RoleDivisionHead),
			test_utils.CreateUser(t, db, "budget", identity.RoleBudgetOfficer),
			test_utils.CreateUser(t, db, "accountant", identity.RoleAccountant),
			test_utils.CreateUser(t, db, "director", identity.RoleDirector),
		},
	}
}

func (f dbFixture) givenApprovedDV(t *testing.T, amount string) Voucher {
	t.Helper()
	v, err := f.service.CreateDV(f.clerk, Voucher{
		FundClusterId:       f.fundClusterId,
		ObjectExpenditureId: f.objectId,
		Payee:               "Juan Dela Cruz",
		Amount:              money(amount),
		FiscalYear:          2025,
	})
	require.NoError(t, err)
	for _, approver := range f.approvers {
		_, err := f.engine.ApproveStage(approver, v.Id, "ok")
		require.NoError(t, err)
	}
	approved, err := f.service.GetDV(f.clerk, v.Id)
	require.NoError(t, err)
	return approved
}

func TestRepositoryImpl_VoucherLifecycle(t *testing.T) {
	t.Run("should store voucher through workflow and payment", func(t *testing.T) {
		// given
		f := setupTestService(t)
		v := f.givenApprovedDV(t, "1234.56")
		require.Equal(t, VoucherApproved, v.Status)
		assert.Equal(t, "DV-2025-0001", v.DvNo)

		// when
		p, err := f.service.CreatePayment(f.cashier, v.Id, PaymentCheck, money("1234.56"))
		require.NoError(t, err)
		_, err = f.service.IssuePayment(f.cashier, p.Id, "Juan Dela Cruz", fixedNow)
		require.NoError(t, err)
		cleared, err := f.service.ClearPayment(f.cashier, p.Id, fixedNow.AddDate(0, 0, 2))
		require.NoError(t, err)

		// then
		assert.Equal(t, PaymentCleared, cleared.Status)
		assert.Equal(t, "CHK-2025-01-000001", *cleared.CheckNo)
		paid, err := f.service.GetDV(f.clerk, v.Id)
		require.NoError(t, err)
		assert.Equal(t, VoucherPaid, paid.Status)

		var checkNo string
		var reconciled bool
		err = f.db.QueryRow(context.Background(),
			`SELECT check_no, reconciled FROM check_disbursement WHERE payment_id = $1`, p.Id).Scan(&checkNo, &reconciled)
		require.NoError(t, err)
		assert.Equal(t, *cleared.CheckNo, checkNo)
		assert.False(t, reconciled)

		status := VoucherPaid
		listed, err := f.service.ListDVs(f.clerk, &status)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, v.Id, listed[0].Id)
	})

	t.Run("should roll back voucher number when workflow cannot start", func(t *testing.T) {
		// given
		f := setupTestService(t)
		catalog := identity.NewRoleCatalog(map[identity.Role]int{identity.RoleDivisionHead: 2})
		tx := database.NewTransactor(f.db)
		engine := workflow.NewEngine(workflow.NewRepo(f.db), tx, catalog, nil, utils.SystemClock{})
		service := NewService(NewRepo(f.db), ledger.NewRepo(f.db), engine,
			serial.NewAllocator(serial.NewRepo(f.db), tx, nil), tx, nil, utils.SystemClock{})

		// when
		_, err := service.CreateDV(f.clerk, Voucher{
			FundClusterId: f.fundClusterId, ObjectExpenditureId: f.objectId, Payee: "Supplier",
			Amount: money("10"), FiscalYear: 2025,
		})

		// then
		require.Error(t, err)
		vouchers, err := service.ListDVs(f.clerk, nil)
		require.NoError(t, err)
		assert.Empty(t, vouchers)
		value, _, err := serial.NewRepo(f.db).Current(context.Background(), "DV:2025")
		require.NoError(t, err)
		assert.Equal(t, int64(0), value)
	})
}

func TestRepositoryImpl_ConcurrentPayments(t *testing.T) {
	t.Run("should create exactly one live payment under contention", func(t *testing.T) {
		// given
		f := setupTestService(t)
		v := f.givenApprovedDV(t, "500")
		const attempts = 10

		// when
		results := make([]error, attempts)
		var g errgroup.Group
		for i := range attempts {
			g.Go(func() error {
				_, results[i] = f.service.CreatePayment(f.cashier, v.Id, PaymentCheck, money("500"))
				return nil
			})
		}
		require.NoError(t, g.Wait())

		// then
		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
		}
		assert.Equal(t, 1, succeeded)

		payments, err := f.service.ListPayments(f.cashier, v.Id)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, "CHK-2025-01-000001", *payments[0].CheckNo)
	})
}
