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
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// cashier returns the acting identity when it may handle payments.
func cashier(ctx context.Context) (identity.Identity, error) {
	actor, err := identity.Current(ctx)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if !actor.SatisfiesAny(identity.RoleCashier, identity.RoleAccountant) {
		return identity.Identity{}, apperr.Permission(actor.UserId, string(identity.RoleCashier))
	}
	return actor, nil
}

func (s *ServiceImpl) CreatePayment(ctx context.Context, dvId int, paymentType PaymentType, amount decimal.Decimal) (created Payment, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.CreatePayment", attribute.Int("disbursement.dv_id", dvId))
	defer func() { tracing.End(span, err) }()

	actor, err := cashier(ctx)
	if err != nil {
		return Payment{}, err
	}
	if !paymentType.Valid() {
		return Payment{}, apperr.Validation("unknown payment type %q", paymentType)
	}
	if err := ledger.ValidateAmount("amount", amount); err != nil {
		return Payment{}, err
	}

	err = s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		v, err := repo.LockVoucher(ctx, dvId)
		if err != nil {
			return err
		}
		if v.Status != VoucherApproved {
			return apperr.StateConflict("disbursement_voucher", dvId, string(v.Status), "create payment")
		}
		live, err := repo.LivePayment(ctx, dvId)
		if err != nil {
			return err
		}
		if live != nil {
			return apperr.Conflict("disbursement_voucher", dvId, "payment %d is already %s", live.Id, live.Status).
				With("payment_id", live.Id).
				With("payment_status", live.Status)
		}
		if !amount.Equal(v.Amount) {
			return apperr.Validation("payment amount %s must equal voucher amount %s", amount.StringFixed(2), v.Amount.StringFixed(2)).
				With("requested", amount.StringFixed(2)).
				With("expected", v.Amount.StringFixed(2))
		}

		p := Payment{DvId: dvId, PaymentType: paymentType, Amount: amount, Status: PaymentPending, CreatedBy: actor.UserId}
		if paymentType == PaymentCheck {
			number, err := s.allocator.AllocateTx(ctx, q, serial.Scope{
				Series:        serial.SeriesCheck,
				FiscalYear:    v.FiscalYear,
				FundClusterId: v.FundClusterId,
				DocumentType:  string(PaymentCheck),
			})
			if err != nil {
				return err
			}
			checkNo := number.String()
			p.CheckNo = &checkNo
		}
		created, err = repo.CreatePayment(ctx, p)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	s.publish(ctx, event_bus.PaymentCreated, actor.UserId, "payment", created.Id, nil, paymentValues(created))
	return created, nil
}

func paymentValues(p Payment) map[string]any {
	values := map[string]any{
		"dvId":        p.DvId,
		"paymentType": string(p.PaymentType),
		"amount":      p.Amount.StringFixed(2),
		"status":      string(p.Status),
	}
	if p.CheckNo != nil {
		values["checkNo"] = *p.CheckNo
	}
	return values
}

func (s *ServiceImpl) GetPayment(ctx context.Context, id int) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *ServiceImpl) ListPayments(ctx context.Context, dvId int) ([]Payment, error) {
	if _, err := s.repo.GetVoucher(ctx, dvId); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, dvId)
}

// progress moves payment id to target under the voucher and payment locks, taken in that order.
// apply may change the payment and the voucher before they are written back.
func (s *ServiceImpl) progress(
	ctx context.Context,
	actor identity.Identity,
	id int,
	target PaymentStatus,
	eventType event_bus.EventType,
	apply func(q database.Queryer, v *Voucher, p *Payment) error,
) (Payment, error) {
	var updated Payment
	var previous PaymentStatus
	err := s.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := s.repo.WithTx(q)
		unlocked, err := repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		v, err := repo.LockVoucher(ctx, unlocked.DvId)
		if err != nil {
			return err
		}
		p, err := repo.LockPayment(ctx, id)
		if err != nil {
			return err
		}
		if !p.Status.CanMoveTo(target) {
			return apperr.StateConflict("payment", id, string(p.Status), "move to "+string(target))
		}
		previous = p.Status
		voucherStatus := v.Status
		p.Status = target
		if err := apply(q, &v, &p); err != nil {
			return err
		}
		if v.Status != voucherStatus {
			if _, err := repo.UpdateVoucher(ctx, v); err != nil {
				return err
			}
		}
		updated, err = repo.UpdatePayment(ctx, p)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	s.publish(ctx, eventType, actor.UserId, "payment", id,
		map[string]any{"status": string(previous)},
		paymentValues(updated),
	)
	return updated, nil
}

func (s *ServiceImpl) IssuePayment(ctx context.Context, id int, receivedBy string, receivedDate time.Time) (issued Payment, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.IssuePayment", attribute.Int("disbursement.payment_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := cashier(ctx)
	if err != nil {
		return Payment{}, err
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		return Payment{}, apperr.Validation("receivedBy is required to issue a payment")
	}
	if receivedDate.IsZero() {
		receivedDate = utils.Today(s.clock)
	}

	return s.progress(ctx, actor, id, PaymentIssued, event_bus.PaymentIssued, func(_ database.Queryer, _ *Voucher, p *Payment) error {
		p.ReceivedBy = &receivedBy
		p.ReceivedDate = &receivedDate
		return nil
	})
}

func (s *ServiceImpl) ClearPayment(ctx context.Context, id int, clearDate time.Time) (cleared Payment, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.ClearPayment", attribute.Int("disbursement.payment_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := cashier(ctx)
	if err != nil {
		return Payment{}, err
	}
	if clearDate.IsZero() {
		clearDate = utils.Today(s.clock)
	}

	return s.progress(ctx, actor, id, PaymentCleared, event_bus.PaymentCleared, func(q database.Queryer, v *Voucher, p *Payment) error {
		if v.Status != VoucherApproved {
			return apperr.StateConflict("disbursement_voucher", v.Id, string(v.Status), "mark paid")
		}
		v.Status = VoucherPaid
		p.ClearDate = &clearDate
		if p.PaymentType != PaymentCheck {
			return nil
		}
		_, err := s.repo.WithTx(q).CreateCheckDisbursement(ctx, CheckDisbursement{
			PaymentId: p.Id,
			CheckNo:   *p.CheckNo,
			Amount:    p.Amount,
			ClearDate: clearDate,
		})
		return err
	})
}

func (s *ServiceImpl) CancelPayment(ctx context.Context, id int, reason string) (cancelled Payment, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.CancelPayment", attribute.Int("disbursement.payment_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := cashier(ctx)
	if err != nil {
		return Payment{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Payment{}, apperr.Validation("reason is required to cancel a payment")
	}

	return s.progress(ctx, actor, id, PaymentCancelled, event_bus.PaymentCancelled, func(_ database.Queryer, _ *Voucher, p *Payment) error {
		p.CancelReason = &reason
		return nil
	})
}

func (s *ServiceImpl) MarkStale(ctx context.Context, id int) (stale Payment, err error) {
	ctx, span := tracing.Start(ctx, "disbursement.MarkStale", attribute.Int("disbursement.payment_id", id))
	defer func() { tracing.End(span, err) }()

	actor, err := cashier(ctx)
	if err != nil {
		return Payment{}, err
	}
	return s.progress(ctx, actor, id, PaymentStale, event_bus.PaymentStale, func(database.Queryer, *Voucher, *Payment) error {
		return nil
	})
}
