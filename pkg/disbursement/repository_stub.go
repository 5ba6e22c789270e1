package disbursement

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/pkg/workflow"
	"github.com/shopspring/decimal"
)

// RepositoryStub keeps vouchers and payments in memory. It also serves as the workflow
// stub's voucher table, so both stubs observe the same voucher status.
type RepositoryStub struct {
	mu       sync.Mutex
	nextId   int
	vouchers map[int]Voucher
	payments map[int]Payment
	checks   []CheckDisbursement
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{vouchers: map[int]Voucher{}, payments: map[int]Payment{}}
}

func (s *RepositoryStub) WithTx(_ database.Queryer) Repository {
	return s
}

// CheckDisbursements returns the reconciliation rows written so far.
func (s *RepositoryStub) CheckDisbursements() []CheckDisbursement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.checks)
}

func (s *RepositoryStub) id() int {
	s.nextId++
	return s.nextId
}

func (s *RepositoryStub) CreateVoucher(_ context.Context, v Voucher) (Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Id = s.id()
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	s.vouchers[v.Id] = v
	return v, nil
}

func (s *RepositoryStub) GetVoucher(_ context.Context, id int) (Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[id]
	if !ok {
		return Voucher{}, apperr.NotFound("disbursement_voucher", id)
	}
	return v, nil
}

func (s *RepositoryStub) LockVoucher(ctx context.Context, id int) (Voucher, error) {
	return s.GetVoucher(ctx, id)
}

func (s *RepositoryStub) ListVouchers(_ context.Context, status *VoucherStatus) ([]Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Voucher, 0)
	for _, v := range s.vouchers {
		if status == nil || v.Status == *status {
			result = append(result, v)
		}
	}
	slices.SortFunc(result, func(a, b Voucher) int { return a.Id - b.Id })
	return result, nil
}

func (s *RepositoryStub) UpdateVoucher(_ context.Context, v Voucher) (Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.vouchers[v.Id]
	if !ok {
		return Voucher{}, apperr.NotFound("disbursement_voucher", v.Id)
	}
	existing.ObjectExpenditureId = v.ObjectExpenditureId
	existing.Payee = v.Payee
	existing.Particulars = v.Particulars
	existing.Amount = v.Amount
	existing.Status = v.Status
	existing.CancelReason = v.CancelReason
	existing.UpdatedAt = time.Now()
	s.vouchers[v.Id] = existing
	return existing, nil
}

func (s *RepositoryStub) SumLiveVouchers(_ context.Context, obligationId int, excludeId int) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, v := range s.vouchers {
		if v.ObligationId == nil || *v.ObligationId != obligationId || v.Id == excludeId {
			continue
		}
		if v.Status == VoucherCancelled || v.Status == VoucherRejected {
			continue
		}
		sum = sum.Add(v.Amount)
	}
	return sum, nil
}

func (s *RepositoryStub) CreatePayment(_ context.Context, p Payment) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.DvId == p.DvId && existing.Status != PaymentCancelled {
			return Payment{}, apperr.Conflict("disbursement_voucher", p.DvId, "voucher already has a live payment")
		}
	}
	p.Id = s.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.payments[p.Id] = p
	return p, nil
}

func (s *RepositoryStub) GetPayment(_ context.Context, id int) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, apperr.NotFound("payment", id)
	}
	return p, nil
}

func (s *RepositoryStub) LockPayment(ctx context.Context, id int) (Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *RepositoryStub) LivePayment(_ context.Context, dvId int) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.DvId == dvId && p.Status != PaymentCancelled {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *RepositoryStub) ListPayments(_ context.Context, dvId int) ([]Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Payment, 0)
	for _, p := range s.payments {
		if p.DvId == dvId {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b Payment) int { return a.Id - b.Id })
	return result, nil
}

func (s *RepositoryStub) UpdatePayment(_ context.Context, p Payment) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.payments[p.Id]
	if !ok {
		return Payment{}, apperr.NotFound("payment", p.Id)
	}
	existing.Status = p.Status
	existing.ReceivedBy = p.ReceivedBy
	existing.ReceivedDate = p.ReceivedDate
	existing.ClearDate = p.ClearDate
	existing.CancelReason = p.CancelReason
	existing.UpdatedAt = time.Now()
	s.payments[p.Id] = existing
	return existing, nil
}

func (s *RepositoryStub) CreateCheckDisbursement(_ context.Context, c CheckDisbursement) (CheckDisbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Id = s.id()
	s.checks = append(s.checks, c)
	return c, nil
}

func (s *RepositoryStub) LookupVoucher(dvId int) (workflow.StubVoucher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[dvId]
	if !ok {
		return workflow.StubVoucher{}, false
	}
	return workflow.StubVoucher{DvNo: v.DvNo, Payee: v.Payee, Amount: v.Amount, Status: string(v.Status)}, true
}

func (s *RepositoryStub) UpdateVoucherStatus(dvId int, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[dvId]
	if !ok {
		return false
	}
	v.Status = VoucherStatus(status)
	s.vouchers[dvId] = v
	return true
}

func (s *RepositoryStub) VoucherIds() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.vouchers))
	for id := range s.vouchers {
		ids = append(ids, id)
	}
	return ids
}
