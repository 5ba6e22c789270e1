package workflow

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/shopspring/decimal"
)

// StubVoucher is the part of a voucher the workflow reads and writes.
type StubVoucher struct {
	DvNo   string
	Payee  string
	Amount decimal.Decimal
	Status string
}

// VoucherTable lets the stub share voucher rows with another in-memory repository.
type VoucherTable interface {
	LookupVoucher(dvId int) (StubVoucher, bool)
	UpdateVoucherStatus(dvId int, status string) bool
	VoucherIds() []int
}

type RepositoryStub struct {
	mu       sync.Mutex
	nextId   int
	stages   map[int][]Stage
	vouchers VoucherTable
}

func NewRepositoryStub(vouchers VoucherTable) *RepositoryStub {
	if vouchers == nil {
		vouchers = NewVoucherTableStub()
	}
	return &RepositoryStub{stages: map[int][]Stage{}, vouchers: vouchers}
}

func (s *RepositoryStub) WithTx(_ database.Queryer) Repository {
	return s
}

func (s *RepositoryStub) InsertStages(_ context.Context, dvId int, stages []Stage) ([]Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stages[dvId]) > 0 {
		return nil, apperr.Conflict("disbursement_voucher", dvId, "workflow already initialized")
	}
	created := make([]Stage, len(stages))
	for i, st := range stages {
		s.nextId++
		st.Id = s.nextId
		st.DvId = dvId
		st.Status = StagePending
		created[i] = st
	}
	stored := slices.Clone(created)
	slices.SortFunc(stored, func(a, b Stage) int { return a.Order - b.Order })
	s.stages[dvId] = stored
	return created, nil
}

func (s *RepositoryStub) ListStages(_ context.Context, dvId int) ([]Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.stages[dvId]), nil
}

func (s *RepositoryStub) UpdateStage(_ context.Context, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stages := s.stages[stage.DvId]
	for i := range stages {
		if stages[i].Id == stage.Id {
			stages[i].Status = stage.Status
			stages[i].ApproverUserId = stage.ApproverUserId
			stages[i].ApproverUsername = stage.ApproverUsername
			stages[i].Comments = stage.Comments
			stages[i].ActionDate = stage.ActionDate
			return nil
		}
	}
	return apperr.NotFound("approval_workflow_stage", stage.Id)
}

func (s *RepositoryStub) SkipStagesAfter(_ context.Context, dvId int, order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stages := s.stages[dvId]
	for i := range stages {
		if stages[i].Order > order && stages[i].Status == StagePending {
			stages[i].Status = StageSkipped
		}
	}
	return nil
}

func (s *RepositoryStub) LockVoucher(_ context.Context, dvId int) (string, error) {
	v, ok := s.vouchers.LookupVoucher(dvId)
	if !ok {
		return "", apperr.NotFound("disbursement_voucher", dvId)
	}
	return v.Status, nil
}

func (s *RepositoryStub) SetVoucherStatus(_ context.Context, dvId int, status string) error {
	if !s.vouchers.UpdateVoucherStatus(dvId, status) {
		return apperr.NotFound("disbursement_voucher", dvId)
	}
	return nil
}

func (s *RepositoryStub) ListPending(_ context.Context, roleIds []int) ([]PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dvIds := s.vouchers.VoucherIds()
	slices.Sort(dvIds)

	pending := make([]PendingApproval, 0)
	for _, dvId := range dvIds {
		v, _ := s.vouchers.LookupVoucher(dvId)
		if !strings.HasPrefix(v.Status, "pending_") {
			continue
		}
		i, ok := current(s.stages[dvId])
		if !ok {
			continue
		}
		stage := s.stages[dvId][i]
		if roleIds != nil && !slices.Contains(roleIds, stage.ApproverRoleId) {
			continue
		}
		pending = append(pending, PendingApproval{DvId: dvId, DvNo: v.DvNo, Payee: v.Payee, Amount: v.Amount, Stage: stage})
	}
	return pending, nil
}

// VoucherTableStub is a standalone VoucherTable for workflow tests.
type VoucherTableStub struct {
	mu       sync.Mutex
	vouchers map[int]StubVoucher
}

func NewVoucherTableStub() *VoucherTableStub {
	return &VoucherTableStub{vouchers: map[int]StubVoucher{}}
}

func (t *VoucherTableStub) Put(dvId int, v StubVoucher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vouchers[dvId] = v
}

func (t *VoucherTableStub) LookupVoucher(dvId int) (StubVoucher, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vouchers[dvId]
	return v, ok
}

func (t *VoucherTableStub) UpdateVoucherStatus(dvId int, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vouchers[dvId]
	if !ok {
		return false
	}
	v.Status = status
	t.vouchers[dvId] = v
	return true
}

func (t *VoucherTableStub) VoucherIds() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.vouchers))
	for id := range t.vouchers {
		ids = append(ids, id)
	}
	return ids
}
