package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/event_bus"
	"github.com/klokku/treasury/internal/test_utils"
	"github.com/klokku/treasury/internal/utils"
	"github.com/klokku/treasury/pkg/identity"
	"github.com/klokku/treasury/pkg/serial"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var budgetOfficerCtx = test_utils.ContextAs(1, identity.RoleBudgetOfficer)
var staffCtx = test_utils.ContextAs(2)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func setupService(t *testing.T) (*ServiceImpl, *RepositoryStub) {
	t.Helper()
	repo := NewRepositoryStub()
	allocator := serial.NewAllocator(serial.NewRepositoryStub(), database.StubTransactor{}, nil)
	clock := &utils.MockClock{FixedNow: fixedNow}
	return NewService(repo, database.StubTransactor{}, allocator, event_bus.NewEventBus(), clock), repo
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.Equal(t, expected, actual.StringFixed(2))
}

// givenAppropriation creates a fund cluster, an object of expenditure and an appropriation of amount.
func givenAppropriation(t *testing.T, service *ServiceImpl, amount string) (Appropriation, int) {
	t.Helper()
	fc, err := service.CreateFundCluster(budgetOfficerCtx, "01", "Regular Agency Fund")
	require.NoError(t, err)
	object, err := service.CreateObjectOfExpenditure(budgetOfficerCtx, "5020101000", "Travelling Expenses - Local")
	require.NoError(t, err)
	appropriation, err := service.CreateAppropriation(budgetOfficerCtx, Appropriation{
		FundClusterId: fc.Id,
		Year:          2025,
		Amount:        money(amount),
		Reference:     "GAA 2025",
	})
	require.NoError(t, err)
	return appropriation, object.Id
}

func givenAllotment(t *testing.T, service *ServiceImpl, amount string) Allotment {
	t.Helper()
	appropriation, objectId := givenAppropriation(t, service, amount)
	allotment, err := service.CreateAllotment(budgetOfficerCtx, Allotment{
		AppropriationId:       appropriation.Id,
		ObjectOfExpenditureId: objectId,
		Amount:                money(amount),
		Class:                 "MOOE",
	})
	require.NoError(t, err)
	return allotment
}

func TestServiceImpl_CreateAppropriation(t *testing.T) {
	t.Run("should keep amount and creator", func(t *testing.T) {
		service, _ := setupService(t)

		appropriation, _ := givenAppropriation(t, service, "1000.5")

		assertMoney(t, "1000.50", appropriation.Amount)
		assert.Equal(t, 1, appropriation.CreatedBy)
	})

	t.Run("should reject amount finer than a centavo", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		fc, err := service.CreateFundCluster(budgetOfficerCtx, "01", "Regular Agency Fund")
		require.NoError(t, err)

		// when
		_, err = service.CreateAppropriation(budgetOfficerCtx, Appropriation{
			FundClusterId: fc.Id, Year: 2025, Amount: money("1000.005"), Reference: "GAA 2025",
		})

		// then
		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperr.KindValidation, appErr.Kind)
		assert.Equal(t, "1000.005", appErr.Details["amount"])
	})

	t.Run("should require reference", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		fc, err := service.CreateFundCluster(budgetOfficerCtx, "01", "Regular Agency Fund")
		require.NoError(t, err)

		// when
		_, err = service.CreateAppropriation(budgetOfficerCtx, Appropriation{FundClusterId: fc.Id, Year: 2025, Amount: money("1")})

		// then
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("should reject unknown fund cluster", func(t *testing.T) {
		service, _ := setupService(t)

		_, err := service.CreateAppropriation(budgetOfficerCtx, Appropriation{
			FundClusterId: 99, Year: 2025, Amount: money("1"), Reference: "GAA",
		})

		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("should require budget officer", func(t *testing.T) {
		service, _ := setupService(t)

		_, err := service.CreateAppropriation(test_utils.ContextAs(3, identity.RoleAccountant), Appropriation{
			FundClusterId: 1, Year: 2025, Amount: money("1"), Reference: "GAA",
		})

		assert.ErrorIs(t, err, apperr.ErrPermission)
	})

	t.Run("should fail without identity", func(t *testing.T) {
		service, _ := setupService(t)

		_, err := service.CreateAppropriation(context.Background(), Appropriation{})

		assert.ErrorIs(t, err, identity.ErrNoIdentity)
	})
}

func TestServiceImpl_CreateAllotment(t *testing.T) {
	t.Run("should reject allotment above appropriation", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		appropriation, objectId := givenAppropriation(t, service, "1000000")

		// when
		_, err := service.CreateAllotment(budgetOfficerCtx, Allotment{
			AppropriationId:       appropriation.Id,
			ObjectOfExpenditureId: objectId,
			Amount:                money("1000001"),
			Class:                 "MOOE",
		})

		// then
		require.ErrorIs(t, err, apperr.ErrBudgetExceeded)
		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "appropriation", appErr.Entity)
		assert.Equal(t, "1.00", appErr.Details["shortfall"])
		assert.Equal(t, "1000000.00", appErr.Details["available"])
	})

	t.Run("should count existing allotments against the appropriation", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		appropriation, objectId := givenAppropriation(t, service, "1000")
		allotment := Allotment{
			AppropriationId:       appropriation.Id,
			ObjectOfExpenditureId: objectId,
			Amount:                money("600"),
			Class:                 "MOOE",
		}
		_, err := service.CreateAllotment(budgetOfficerCtx, allotment)
		require.NoError(t, err)

		// when
		allotment.Amount = money("400")
		_, exactFit := service.CreateAllotment(budgetOfficerCtx, allotment)
		allotment.Amount = money("0.01")
		_, overflow := service.CreateAllotment(budgetOfficerCtx, allotment)

		// then
		assert.NoError(t, exactFit)
		assert.ErrorIs(t, overflow, apperr.ErrBudgetExceeded)
		allotments, err := service.ListAllotments(budgetOfficerCtx, appropriation.Id)
		require.NoError(t, err)
		assert.Len(t, allotments, 2)
	})

	t.Run("should require positive amount and class", func(t *testing.T) {
		service, _ := setupService(t)
		appropriation, objectId := givenAppropriation(t, service, "1000")

		_, zeroAmount := service.CreateAllotment(budgetOfficerCtx, Allotment{
			AppropriationId: appropriation.Id, ObjectOfExpenditureId: objectId, Amount: decimal.Zero, Class: "MOOE",
		})
		_, noClass := service.CreateAllotment(budgetOfficerCtx, Allotment{
			AppropriationId: appropriation.Id, ObjectOfExpenditureId: objectId, Amount: money("1"),
		})

		assert.ErrorIs(t, zeroAmount, apperr.ErrValidation)
		assert.ErrorIs(t, noClass, apperr.ErrValidation)
	})

	t.Run("should reject sub-centavo amounts before the ceiling check", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "1000")

		// when
		_, allotErr := service.CreateAllotment(budgetOfficerCtx, Allotment{
			AppropriationId: allotment.AppropriationId, ObjectOfExpenditureId: allotment.ObjectOfExpenditureId,
			Amount: money("0.001"), Class: "MOOE",
		})
		_, obligErr := service.CreateObligation(staffCtx, Obligation{
			AllotmentId: allotment.Id, Payee: "Acme Supplies", Amount: money("999.999"),
		})

		// then
		assert.ErrorIs(t, allotErr, apperr.ErrValidation)
		assert.ErrorIs(t, obligErr, apperr.ErrValidation)
	})
}

func TestServiceImpl_Obligations(t *testing.T) {
	t.Run("should exhaust allotment and refuse approval of a further obligation", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "500000")
		first, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("500000")})
		require.NoError(t, err)
		second, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier B", Amount: money("1")})
		require.NoError(t, err)

		// when
		_, err = service.ApproveObligation(budgetOfficerCtx, first.Id)
		require.NoError(t, err)
		availability, availabilityErr := service.GetBudgetAvailability(budgetOfficerCtx, allotment.Id)
		_, secondErr := service.ApproveObligation(budgetOfficerCtx, second.Id)

		// then
		require.NoError(t, availabilityErr)
		assertMoney(t, "0.00", availability.UnobligatedBalance)
		assert.ErrorIs(t, secondErr, apperr.ErrBudgetExceeded)
		stored, err := service.GetObligation(budgetOfficerCtx, second.Id)
		require.NoError(t, err)
		assert.Equal(t, ObligationPending, stored.Status)
	})

	t.Run("should refuse creation beyond unobligated balance", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "100")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("100")})
		require.NoError(t, err)
		_, err = service.ApproveObligation(budgetOfficerCtx, o.Id)
		require.NoError(t, err)

		// when
		_, err = service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier B", Amount: money("0.01")})

		// then
		assert.ErrorIs(t, err, apperr.ErrBudgetExceeded)
	})

	t.Run("should record approver and issue ORS number", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "1000")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("250.50")})
		require.NoError(t, err)
		assert.Equal(t, ObligationPending, o.Status)
		assert.Nil(t, o.OrsNumber)

		// when
		approved, err := service.ApproveObligation(budgetOfficerCtx, o.Id)

		// then
		require.NoError(t, err)
		assert.Equal(t, ObligationApproved, approved.Status)
		require.NotNil(t, approved.OrsNumber)
		assert.Equal(t, "ORS-2025-01-0001", *approved.OrsNumber)
		require.NotNil(t, approved.ApprovedBy)
		assert.Equal(t, 1, *approved.ApprovedBy)
		require.NotNil(t, approved.ApprovedAt)
		assert.Equal(t, fixedNow, *approved.ApprovedAt)
	})

	t.Run("should not approve twice", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "1000")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("10")})
		require.NoError(t, err)
		_, err = service.ApproveObligation(budgetOfficerCtx, o.Id)
		require.NoError(t, err)

		// when
		_, err = service.ApproveObligation(budgetOfficerCtx, o.Id)

		// then
		require.ErrorIs(t, err, apperr.ErrStateConflict)
		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "approved", appErr.Details["status"])
	})

	t.Run("should reject with remarks and block later approval", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "1000")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("10")})
		require.NoError(t, err)

		// when
		_, missingRemarks := service.RejectObligation(budgetOfficerCtx, o.Id, "  ")
		rejected, err := service.RejectObligation(budgetOfficerCtx, o.Id, "no supporting documents")
		require.NoError(t, err)
		_, approveErr := service.ApproveObligation(budgetOfficerCtx, o.Id)

		// then
		assert.ErrorIs(t, missingRemarks, apperr.ErrValidation)
		assert.Equal(t, ObligationRejected, rejected.Status)
		require.NotNil(t, rejected.Remarks)
		assert.Equal(t, "no supporting documents", *rejected.Remarks)
		assert.ErrorIs(t, approveErr, apperr.ErrStateConflict)
	})

	t.Run("should not let requesting staff approve", func(t *testing.T) {
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "1000")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("10")})
		require.NoError(t, err)

		_, err = service.ApproveObligation(staffCtx, o.Id)

		assert.ErrorIs(t, err, apperr.ErrPermission)
	})

	t.Run("should report unknown obligation", func(t *testing.T) {
		service, _ := setupService(t)

		_, err := service.ApproveObligation(budgetOfficerCtx, 404)

		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestServiceImpl_GetBudgetAvailability(t *testing.T) {
	t.Run("should return identical values on repeated reads", func(t *testing.T) {
		// given
		service, repo := setupService(t)
		allotment := givenAllotment(t, service, "1000")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("300")})
		require.NoError(t, err)
		_, err = service.ApproveObligation(budgetOfficerCtx, o.Id)
		require.NoError(t, err)
		repo.SetDisbursed(allotment.Id, money("120.25"))

		// when
		first, err1 := service.GetBudgetAvailability(staffCtx, allotment.Id)
		second, err2 := service.GetBudgetAvailability(staffCtx, allotment.Id)

		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, first, second)
		assertMoney(t, "1000.00", first.Appropriation)
		assertMoney(t, "1000.00", first.Allotment)
		assertMoney(t, "300.00", first.Obligation)
		assertMoney(t, "120.25", first.Disbursement)
		assertMoney(t, "700.00", first.UnobligatedBalance)
		assertMoney(t, "579.75", first.AvailableBalance)
	})

	t.Run("should ignore pending obligations", func(t *testing.T) {
		service, _ := setupService(t)
		allotment := givenAllotment(t, service, "1000")
		_, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("300")})
		require.NoError(t, err)

		availability, err := service.GetBudgetAvailability(staffCtx, allotment.Id)

		require.NoError(t, err)
		assertMoney(t, "1000.00", availability.UnobligatedBalance)
	})
}
