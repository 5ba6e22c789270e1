package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/event_bus"
	"github.com/klokku/treasury/internal/tracing"
	"github.com/klokku/treasury/internal/utils"
	"github.com/klokku/treasury/pkg/identity"
	"github.com/klokku/treasury/pkg/serial"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type Service interface {
	CreateFundCluster(ctx context.Context, code string, name string) (FundCluster, error)
	ListFundClusters(ctx context.Context) ([]FundCluster, error)
	CreateObjectOfExpenditure(ctx context.Context, code string, name string) (ObjectOfExpenditure, error)
	ListObjectsOfExpenditure(ctx context.Context) ([]ObjectOfExpenditure, error)

	CreateAppropriation(ctx context.Context, appropriation Appropriation) (Appropriation, error)
	GetAppropriation(ctx context.Context, id int) (Appropriation, error)
	// CreateAllotment fails with a budget exceeded error when the appropriation cannot cover the amount.
	CreateAllotment(ctx context.Context, allotment Allotment) (Allotment, error)
	GetAllotment(ctx context.Context, id int) (Allotment, error)
	ListAllotments(ctx context.Context, appropriationId int) ([]Allotment, error)

	// CreateObligation records a pending commitment against the unobligated balance of an allotment.
	CreateObligation(ctx context.Context, obligation Obligation) (Obligation, error)
	// ApproveObligation re-checks the allotment balance and issues the ORS number.
	ApproveObligation(ctx context.Context, id int) (Obligation, error)
	RejectObligation(ctx context.Context, id int, remarks string) (Obligation, error)
	GetObligation(ctx context.Context, id int) (Obligation, error)
	ListObligations(ctx context.Context, allotmentId int) ([]Obligation, error)

	GetBudgetAvailability(ctx context.Context, allotmentId int) (Availability, error)
}

type ServiceImpl struct {
	repo      Repository
	tx        database.Transactor
	allocator serial.Allocator
	eventBus  *event_bus.EventBus
	clock     utils.Clock
}

func NewService(repo Repository, tx database.Transactor, allocator serial.Allocator, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, tx: tx, allocator: allocator, eventBus: eventBus, clock: clock}
}

// budgetOfficer returns the acting identity when it may maintain the ledger.
func budgetOfficer(ctx context.Context) (identity.Identity, error) {
	actor, err := identity.Current(ctx)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if !actor.Satisfies(identity.RoleBudgetOfficer) {
		return identity.Identity{}, apperr.Permission(actor.UserId, string(identity.RoleBudgetOfficer))
	}
	return actor, nil
}

func (s *ServiceImpl) publish(ctx context.Context, eventType event_bus.EventType, actorId int, entityType string, entityId int, oldValues, newValues map[string]any) {
	s.eventBus.PublishAndForget(event_bus.NewEvent(ctx, eventType, event_bus.EntityChanged{
		ActorId:    actorId,
		EntityType: entityType,
		EntityId:   entityId,
		OldValues:  oldValues,
		NewValues:  newValues,
	}))
}

func (s *ServiceImpl) CreateFundCluster(ctx context.Context, code string, name string) (FundCluster, error) {
	if _, err := budgetOfficer(ctx); err != nil {
		return FundCluster{}, err
	}
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	if code == "" || name == "" {
		return FundCluster{}, apperr.Validation("fund cluster code and name are required")
	}
	return s.repo.CreateFundCluster(ctx, FundCluster{Code: code, Name: name})
}

func (s *ServiceImpl) ListFundClusters(ctx context.Context) ([]FundCluster, error) {
	return s.repo.ListFundClusters(ctx)
}

func (s *ServiceImpl) CreateObjectOfExpenditure(ctx context.Context, code string, name string) (ObjectOfExpenditure, error) {
	if _, err := budgetOfficer(ctx); err != nil {
		return ObjectOfExpenditure{}, err
	}
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	if code == "" || name == "" {
		return ObjectOfExpenditure{}, apperr.Validation("object of expenditure code and name are required")
	}
	return s.repo.CreateObjectOfExpenditure(ctx, ObjectOfExpenditure{Code: code, Name: name})
}

func (s *ServiceImpl) ListObjectsOfExpenditure(ctx context.Context) ([]ObjectOfExpenditure, error) {
	return s.repo.ListObjectsOfExpenditure(ctx)
}

func (s *ServiceImpl) CreateAppropriation(ctx context.Context, a Appropriation) (created Appropriation, err error) {
	ctx, span := tracing.Start(ctx, "ledger.CreateAppropriation")
	defer func() { tracing.End(span, err) }()

	actor, err := budgetOfficer(ctx)
	if err != nil {
		return Appropriation{}, err
	}
	a.Reference = strings.TrimSpace(a.Reference)
	if err := ValidateAmount("amount", a.Amount); err != nil {
		return Appropriation{}, err
	}
	switch {
	case a.FundClusterId <= 0:
		return Appropriation{}, apperr.Validation("fund cluster is required")
	case a.Year < 1900 || a.Year > 9999:
		return Appropriation{}, apperr.Validation("year %d is out of range", a.Year)
	case a.Amount.IsNegative():
		return Appropriation{}, apperr.Validation("appropriation amount must not be negative")
	case a.Reference == "":
		return Appropriation{}, apperr.Validation("reference is required")
	}
	if _, err := s.repo.GetFundCluster(ctx, a.FundClusterId); err != nil {
		return Appropriation{}, err
	}

	a.CreatedBy = actor.UserId
	created, err = s.repo.CreateAppropriation(ctx, a)
	if err != nil {
		return Appropriation{}, err
	}
	s.publish(ctx, event_bus.AppropriationCreated, actor.UserId, "appropriation", created.Id, nil, map[string]any{
		"fundClusterId": created.FundClusterId,
		"year":          created.Year,
		"amount":        created.Amount.StringFixed(2),
		"reference":     created.Reference,
	})
	return created, nil
}

func (s *ServiceImpl) GetAppropriation(ctx context.Context, id int) (Appropriation, error) {
	return s.repo.GetAppropriation(ctx, id)
}

func (s *ServiceImpl) CreateAllotment(ctx context.Context, a Allotment) (created Allotment, err error) {
	ctx, span := tracing.Start(ctx, "ledger.CreateAllotment", attribute.Int("ledger.appropriation_id", a.AppropriationId))
	defer func() { tracing.End(span, err) }()

	actor, err := budgetOfficer(ctx)
	if err != nil {
		return Allotment{}, err
	}
	a.Class = strings.TrimSpace(a.Class)
	if err := ValidateAmount("amount", a.Amount); err != nil {
		return Allotment{}, err
	}
	switch {
	case a.AppropriationId <= 0:
		return Allotment{}, apperr.Validation("appropriation is required")
	case a.ObjectOfExpenditureId <= 0:
		return Allotment{}, apperr.Validation("object of expenditure is required")
	case !a.Amount.IsPositive():
		return Allotment{}, apperr.Validation("allotment amount must be positive")
	case a.Class == "":
		return Allotment{}, apperr.Validation("allotment class is required")
	}
	a.CreatedBy = actor.UserId

	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		appropriation, err := repo.LockAppropriation(ctx, a.AppropriationId)
		if err != nil {
			return err
		}
		if _, err := repo.GetObjectOfExpenditure(ctx, a.ObjectOfExpenditureId); err != nil {
			return err
		}
		allotted, err := repo.SumAllotments(ctx, a.AppropriationId)
		if err != nil {
			return err
		}
		available := Money(appropriation.Amount.Sub(allotted))
		if a.Amount.GreaterThan(available) {
			return budgetExceeded("appropriation", appropriation.Id, a.Amount, available)
		}
		created, err = repo.CreateAllotment(ctx, a)
		return err
	})
	if err != nil {
		return Allotment{}, err
	}

	s.publish(ctx, event_bus.AllotmentCreated, actor.UserId, "allotment", created.Id, nil, map[string]any{
		"appropriationId": created.AppropriationId,
		"amount":          created.Amount.StringFixed(2),
		"class":           created.Class,
	})
	return created, nil
}

func budgetExceeded(ceiling string, id int, requested, available decimal.Decimal) *apperr.Error {
	return apperr.BudgetExceeded(ceiling, id,
		requested.StringFixed(2), available.StringFixed(2), Money(requested.Sub(available)).StringFixed(2))
}

func (s *ServiceImpl) GetAllotment(ctx context.Context, id int) (Allotment, error) {
	return s.repo.GetAllotment(ctx, id)
}

func (s *ServiceImpl) ListAllotments(ctx context.Context, appropriationId int) ([]Allotment, error) {
	if _, err := s.repo.GetAppropriation(ctx, appropriationId); err != nil {
		return nil, err
	}
	return s.repo.ListAllotments(ctx, appropriationId)
}

func (s *ServiceImpl) CreateObligation(ctx context.Context, o Obligation) (created Obligation, err error) {
	ctx, span := tracing.Start(ctx, "ledger.CreateObligation", attribute.Int("ledger.allotment_id", o.AllotmentId))
	defer func() { tracing.End(span, err) }()

	actor, err := identity.Current(ctx)
	if err != nil {
		return Obligation{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	o.Payee = strings.TrimSpace(o.Payee)
	if err := ValidateAmount("amount", o.Amount); err != nil {
		return Obligation{}, err
	}
	switch {
	case o.AllotmentId <= 0:
		return Obligation{}, apperr.Validation("allotment is required")
	case o.Payee == "":
		return Obligation{}, apperr.Validation("payee is required")
	case !o.Amount.IsPositive():
		return Obligation{}, apperr.Validation("obligation amount must be positive")
	}
	o.Status = ObligationPending
	o.CreatedBy = actor.UserId
	o.OrsNumber, o.Remarks, o.ApprovedBy, o.ApprovedAt = nil, nil, nil, nil

	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		allotment, err := repo.LockAllotment(ctx, o.AllotmentId)
		if err != nil {
			return err
		}
		if err := checkUnobligated(ctx, repo, allotment, o.Amount); err != nil {
			return err
		}
		created, err = repo.CreateObligation(ctx, o)
		return err
	})
	if err != nil {
		return Obligation{}, err
	}

	s.publish(ctx, event_bus.ObligationCreated, actor.UserId, "obligation", created.Id, nil, map[string]any{
		"allotmentId": created.AllotmentId,
		"payee":       created.Payee,
		"amount":      created.Amount.StringFixed(2),
		"status":      string(created.Status),
	})
	return created, nil
}

// checkUnobligated must run while the allotment row is locked.
func checkUnobligated(ctx context.Context, repo Repository, allotment Allotment, amount decimal.Decimal) error {
	approved, err := repo.SumApprovedObligations(ctx, allotment.Id)
	if err != nil {
		return err
	}
	unobligated := Money(allotment.Amount.Sub(approved))
	if amount.GreaterThan(unobligated) {
		return budgetExceeded("allotment", allotment.Id, amount, unobligated)
	}
	return nil
}

func (s *ServiceImpl) ApproveObligation(ctx context.Context, id int) (approved Obligation, err error) {
	ctx, span := tracing.Start(ctx, "ledger.ApproveObligation", attribute.Int("ledger.obligation_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := budgetOfficer(ctx)
	if err != nil {
		return Obligation{}, err
	}

	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		unlocked, err := repo.GetObligation(ctx, id)
		if err != nil {
			return err
		}
		// allotment first, then the obligation
		allotment, err := repo.LockAllotment(ctx, unlocked.AllotmentId)
		if err != nil {
			return err
		}
		o, err := repo.LockObligation(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != ObligationPending {
			return apperr.StateConflict("obligation", id, string(o.Status), "approve")
		}
		if err := checkUnobligated(ctx, repo, allotment, o.Amount); err != nil {
			return err
		}
		appropriation, err := repo.GetAppropriation(ctx, allotment.AppropriationId)
		if err != nil {
			return err
		}
		ors, err := s.allocator.AllocateTx(ctx, q, serial.Scope{
			Series:        serial.SeriesORS,
			FiscalYear:    appropriation.Year,
			FundClusterId: appropriation.FundClusterId,
		})
		if err != nil {
			return err
		}

		orsNumber := ors.String()
		now := s.clock.Now()
		o.Status = ObligationApproved
		o.OrsNumber = &orsNumber
		o.ApprovedBy = &actor.UserId
		o.ApprovedAt = &now
		approved, err = repo.UpdateObligationStatus(ctx, o)
		return err
	})
	if err != nil {
		return Obligation{}, err
	}

	s.publish(ctx, event_bus.ObligationApproved, actor.UserId, "obligation", id,
		map[string]any{"status": string(ObligationPending)},
		map[string]any{"status": string(approved.Status), "orsNumber": *approved.OrsNumber},
	)
	return approved, nil
}

func (s *ServiceImpl) RejectObligation(ctx context.Context, id int, remarks string) (rejected Obligation, err error) {
	ctx, span := tracing.Start(ctx, "ledger.RejectObligation", attribute.Int("ledger.obligation_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := budgetOfficer(ctx)
	if err != nil {
		return Obligation{}, err
	}
	remarks = strings.TrimSpace(remarks)
	if remarks == "" {
		return Obligation{}, apperr.Validation("remarks are required to reject an obligation")
	}

	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		o, err := repo.LockObligation(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != ObligationPending {
			return apperr.StateConflict("obligation", id, string(o.Status), "reject")
		}
		now := s.clock.Now()
		o.Status = ObligationRejected
		o.Remarks = &remarks
		o.ApprovedBy = &actor.UserId
		o.ApprovedAt = &now
		rejected, err = repo.UpdateObligationStatus(ctx, o)
		return err
	})
	if err != nil {
		return Obligation{}, err
	}

	s.publish(ctx, event_bus.ObligationRejected, actor.UserId, "obligation", id,
		map[string]any{"status": string(ObligationPending)},
		map[string]any{"status": string(rejected.Status), "remarks": remarks},
	)
	return rejected, nil
}

func (s *ServiceImpl) GetObligation(ctx context.Context, id int) (Obligation, error) {
	return s.repo.GetObligation(ctx, id)
}

func (s *ServiceImpl) ListObligations(ctx context.Context, allotmentId int) ([]Obligation, error) {
	if _, err := s.repo.GetAllotment(ctx, allotmentId); err != nil {
		return nil, err
	}
	return s.repo.ListObligations(ctx, allotmentId)
}

// GetBudgetAvailability re-reads committed state on every call.
func (s *ServiceImpl) GetBudgetAvailability(ctx context.Context, allotmentId int) (Availability, error) {
	return s.repo.GetAvailability(ctx, allotmentId)
}
