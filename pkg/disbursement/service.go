package disbursement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/event_bus"
	"github.com/klokku/treasury/internal/tracing"
	"github.com/klokku/treasury/internal/utils"
	"github.com/klokku/treasury/pkg/identity"
	"github.com/klokku/treasury/pkg/ledger"
	"github.com/klokku/treasury/pkg/serial"
	"github.com/klokku/treasury/pkg/workflow"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type Service interface {
	// CreateDV numbers the voucher and starts its approval workflow in one transaction.
	CreateDV(ctx context.Context, voucher Voucher) (Voucher, error)
	GetDV(ctx context.Context, id int) (Voucher, error)
	ListDVs(ctx context.Context, status *VoucherStatus) ([]Voucher, error)
	UpdateDV(ctx context.Context, id int, update VoucherUpdate) (Voucher, error)
	CancelDV(ctx context.Context, id int, reason string) (Voucher, error)

	// CreatePayment requires an approved voucher without a live payment.
	CreatePayment(ctx context.Context, dvId int, paymentType PaymentType, amount decimal.Decimal) (Payment, error)
	GetPayment(ctx context.Context, id int) (Payment, error)
	ListPayments(ctx context.Context, dvId int) ([]Payment, error)
	IssuePayment(ctx context.Context, id int, receivedBy string, receivedDate time.Time) (Payment, error)
	// ClearPayment marks the voucher paid.
	ClearPayment(ctx context.Context, id int, clearDate time.Time) (Payment, error)
	CancelPayment(ctx context.Context, id int, reason string) (Payment, error)
	MarkStale(ctx context.Context, id int) (Payment, error)
}

type ServiceImpl struct {
	repo       Repository
	ledgerRepo ledger.Repository
	engine     workflow.Engine
	allocator  serial.Allocator
	tx         database.Transactor
	eventBus   *event_bus.EventBus
	clock      utils.Clock
}

func NewService(
	repo Repository,
	ledgerRepo ledger.Repository,
	engine workflow.Engine,
	allocator serial.Allocator,
	tx database.Transactor,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
) *ServiceImpl {
	return &ServiceImpl{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		engine:     engine,
		allocator:  allocator,
		tx:         tx,
		eventBus:   eventBus,
		clock:      clock,
	}
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

func voucherValues(v Voucher) map[string]any {
	values := map[string]any{
		"dvNo":                v.DvNo,
		"payee":               v.Payee,
		"particulars":         v.Particulars,
		"amount":              v.Amount.StringFixed(2),
		"status":              string(v.Status),
		"objectExpenditureId": v.ObjectExpenditureId,
	}
	if v.ObligationId != nil {
		values["obligationId"] = *v.ObligationId
	}
	return values
}

func (s *ServiceImpl) CreateDV(ctx context.Context, v Voucher) (created Voucher, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.CreateDV", attribute.Int("disbursement.fund_cluster_id", v.FundClusterId))
	defer func() { tracing.End(span, err) }()

	actor, err := identity.Current(ctx)
	if err != nil {
		return Voucher{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	v.Payee = strings.TrimSpace(v.Payee)
	if err := ledger.ValidateAmount("amount", v.Amount); err != nil {
		return Voucher{}, err
	}
	switch {
	case v.FundClusterId <= 0:
		return Voucher{}, apperr.Validation("fund cluster is required")
	case v.ObjectExpenditureId <= 0:
		return Voucher{}, apperr.Validation("object of expenditure is required")
	case v.Payee == "":
		return Voucher{}, apperr.Validation("payee is required")
	case !v.Amount.IsPositive():
		return Voucher{}, apperr.Validation("voucher amount must be positive")
	case v.FiscalYear < 1900 || v.FiscalYear > 9999:
		return Voucher{}, apperr.Validation("fiscal year %d is out of range", v.FiscalYear)
	}
	v.Status = VoucherDraft
	v.CreatedBy = actor.UserId
	v.CancelReason = nil

	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		ledgerRepo := s.ledgerRepo.WithTx(q)
		if _, err := ledgerRepo.GetFundCluster(ctx, v.FundClusterId); err != nil {
			return err
		}
		if _, err := ledgerRepo.GetObjectOfExpenditure(ctx, v.ObjectExpenditureId); err != nil {
			return err
		}
		if v.ObligationId != nil {
			if err := s.checkObligation(ctx, repo, ledgerRepo, *v.ObligationId, 0, v.Amount); err != nil {
				return err
			}
		}

		number, err := s.allocator.AllocateTx(ctx, q, serial.Scope{Series: serial.SeriesDV, FiscalYear: v.FiscalYear})
		if err != nil {
			return err
		}
		v.DvNo = number.String()
		created, err = repo.CreateVoucher(ctx, v)
		if err != nil {
			return err
		}

		stages, err := s.engine.Initialize(ctx, q, created.Id)
		if err != nil {
			return err
		}
		created.Status = VoucherStatus(workflow.PendingStatus(stages[0].Name))
		created, err = repo.UpdateVoucher(ctx, created)
		return err
	})
	if err != nil {
		return Voucher{}, err
	}

	s.publish(ctx, event_bus.VoucherCreated, actor.UserId, "disbursement_voucher", created.Id, nil, voucherValues(created))
	return created, nil
}

// checkObligation verifies that an approved obligation still covers amount once the other live
// vouchers drawn on it are counted. The obligation row stays locked until the transaction ends.
func (s *ServiceImpl) checkObligation(ctx context.Context, repo Repository, ledgerRepo ledger.Repository, obligationId int, voucherId int, amount decimal.Decimal) error {
	obligation, err := ledgerRepo.LockObligation(ctx, obligationId)
	if err != nil {
		return err
	}
	if obligation.Status != ledger.ObligationApproved {
		return apperr.StateConflict("obligation", obligationId, string(obligation.Status), "disburse against")
	}
	drawn, err := repo.SumLiveVouchers(ctx, obligationId, voucherId)
	if err != nil {
		return err
	}
	remaining := ledger.Money(obligation.Amount.Sub(drawn))
	if amount.GreaterThan(remaining) {
		return apperr.BudgetExceeded("obligation", obligationId,
			amount.StringFixed(2), remaining.StringFixed(2), ledger.Money(amount.Sub(remaining)).StringFixed(2))
	}
	return nil
}

func (s *ServiceImpl) GetDV(ctx context.Context, id int) (Voucher, error) {
	return s.repo.GetVoucher(ctx, id)
}

func (s *ServiceImpl) ListDVs(ctx context.Context, status *VoucherStatus) ([]Voucher, error) {
	return s.repo.ListVouchers(ctx, status)
}

func (s *ServiceImpl) UpdateDV(ctx context.Context, id int, update VoucherUpdate) (updated Voucher, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.UpdateDV", attribute.Int("disbursement.dv_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := identity.Current(ctx)
	if err != nil {
		return Voucher{}, fmt.Errorf("failed to get current identity: %w", err)
	}

	var before Voucher
	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		v, err := repo.LockVoucher(ctx, id)
		if err != nil {
			return err
		}
		if v.Status != VoucherDraft {
			return apperr.StateConflict("disbursement_voucher", id, string(v.Status), "update")
		}
		before = v

		if update.Payee != nil {
			v.Payee = strings.TrimSpace(*update.Payee)
			if v.Payee == "" {
				return apperr.Validation("payee is required")
			}
		}
		if update.Particulars != nil {
			v.Particulars = *update.Particulars
		}
		if update.ObjectExpenditureId != nil {
			if _, err := s.ledgerRepo.WithTx(q).GetObjectOfExpenditure(ctx, *update.ObjectExpenditureId); err != nil {
				return err
			}
			v.ObjectExpenditureId = *update.ObjectExpenditureId
		}
		if update.Amount != nil {
			if err := ledger.ValidateAmount("amount", *update.Amount); err != nil {
				return err
			}
			v.Amount = *update.Amount
			if !v.Amount.IsPositive() {
				return apperr.Validation("voucher amount must be positive")
			}
			if v.ObligationId != nil {
				if err := s.checkObligation(ctx, repo, s.ledgerRepo.WithTx(q), *v.ObligationId, v.Id, v.Amount); err != nil {
					return err
				}
			}
		}
		updated, err = repo.UpdateVoucher(ctx, v)
		return err
	})
	if err != nil {
		return Voucher{}, err
	}

	s.publish(ctx, event_bus.VoucherUpdated, actor.UserId, "disbursement_voucher", id, voucherValues(before), voucherValues(updated))
	return updated, nil
}

func (s *ServiceImpl) CancelDV(ctx context.Context, id int, reason string) (cancelled Voucher, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.CancelDV", attribute.Int("disbursement.dv_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := identity.Current(ctx)
	if err != nil {
		return Voucher{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	reason = strings.TrimSpace(reason)

	var previous VoucherStatus
	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		v, err := repo.LockVoucher(ctx, id)
		if err != nil {
			return err
		}
		if v.CreatedBy != actor.UserId && !actor.Satisfies(identity.RoleAccountant) {
			return apperr.Permission(actor.UserId, string(identity.RoleAccountant))
		}
		if v.Status == VoucherPaid || v.Status == VoucherCancelled {
			return apperr.StateConflict("disbursement_voucher", id, string(v.Status), "cancel")
		}
		live, err := repo.LivePayment(ctx, id)
		if err != nil {
			return err
		}
		if live != nil {
			return apperr.Conflict("disbursement_voucher", id, "payment %d is %s", live.Id, live.Status).
				With("payment_id", live.Id).
				With("payment_status", live.Status)
		}

		previous = v.Status
		v.Status = VoucherCancelled
		v.CancelReason = nil
		if reason != "" {
			v.CancelReason = &reason
		}
		if cancelled, err = repo.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		return s.engine.Halt(ctx, q, id)
	})
	if err != nil {
		return Voucher{}, err
	}

	s.publish(ctx, event_bus.VoucherCancelled, actor.UserId, "disbursement_voucher", id,
		map[string]any{"status": string(previous)},
		map[string]any{"status": string(cancelled.Status), "reason": reason},
	)
	return cancelled, nil
}
