package ledger

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/shopspring/decimal"
)

// RepositoryStub keeps the ledger in memory. Locks are not modelled; service tests run sequentially.
type RepositoryStub struct {
	mu             sync.Mutex
	nextId         int
	fundClusters   map[int]FundCluster
	objects        map[int]ObjectOfExpenditure
	appropriations map[int]Appropriation
	allotments     map[int]Allotment
	obligations    map[int]Obligation
	disbursed      map[int]decimal.Decimal
}

func NewRepositoryStub() *RepositoryStub {
	s := &RepositoryStub{}
	s.Cleanup()
	return s
}

func (s *RepositoryStub) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId = 0
	s.fundClusters = map[int]FundCluster{}
	s.objects = map[int]ObjectOfExpenditure{}
	s.appropriations = map[int]Appropriation{}
	s.allotments = map[int]Allotment{}
	s.obligations = map[int]Obligation{}
	s.disbursed = map[int]decimal.Decimal{}
}

// SetDisbursed sets the paid voucher total reported for an allotment.
func (s *RepositoryStub) SetDisbursed(allotmentId int, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disbursed[allotmentId] = amount
}

func (s *RepositoryStub) WithTx(_ database.Queryer) Repository {
	return s
}

func (s *RepositoryStub) id() int {
	s.nextId++
	return s.nextId
}

func (s *RepositoryStub) CreateFundCluster(_ context.Context, fc FundCluster) (FundCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.fundClusters {
		if existing.Code == fc.Code {
			return FundCluster{}, apperr.Conflict("fund_cluster", fc.Code, "code already exists")
		}
	}
	fc.Id = s.id()
	s.fundClusters[fc.Id] = fc
	return fc, nil
}

func (s *RepositoryStub) GetFundCluster(_ context.Context, id int) (FundCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc, ok := s.fundClusters[id]
	if !ok {
		return FundCluster{}, apperr.NotFound("fund_cluster", id)
	}
	return fc, nil
}

func (s *RepositoryStub) ListFundClusters(_ context.Context) ([]FundCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]FundCluster, 0, len(s.fundClusters))
	for _, fc := range s.fundClusters {
		result = append(result, fc)
	}
	slices.SortFunc(result, func(a, b FundCluster) int { return strings.Compare(a.Code, b.Code) })
	return result, nil
}

func (s *RepositoryStub) CreateObjectOfExpenditure(_ context.Context, o ObjectOfExpenditure) (ObjectOfExpenditure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Id = s.id()
	s.objects[o.Id] = o
	return o, nil
}

func (s *RepositoryStub) GetObjectOfExpenditure(_ context.Context, id int) (ObjectOfExpenditure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return ObjectOfExpenditure{}, apperr.NotFound("object_of_expenditure", id)
	}
	return o, nil
}

func (s *RepositoryStub) ListObjectsOfExpenditure(_ context.Context) ([]ObjectOfExpenditure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]ObjectOfExpenditure, 0, len(s.objects))
	for _, o := range s.objects {
		result = append(result, o)
	}
	slices.SortFunc(result, func(a, b ObjectOfExpenditure) int { return strings.Compare(a.Code, b.Code) })
	return result, nil
}

func (s *RepositoryStub) CreateAppropriation(_ context.Context, a Appropriation) (Appropriation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Id = s.id()
	a.CreatedAt = time.Now()
	s.appropriations[a.Id] = a
	return a, nil
}

func (s *RepositoryStub) GetAppropriation(_ context.Context, id int) (Appropriation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appropriations[id]
	if !ok {
		return Appropriation{}, apperr.NotFound("appropriation", id)
	}
	return a, nil
}

func (s *RepositoryStub) LockAppropriation(ctx context.Context, id int) (Appropriation, error) {
	return s.GetAppropriation(ctx, id)
}

func (s *RepositoryStub) SumAllotments(_ context.Context, appropriationId int) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, a := range s.allotments {
		if a.AppropriationId == appropriationId {
			sum = sum.Add(a.Amount)
		}
	}
	return sum, nil
}

func (s *RepositoryStub) CreateAllotment(_ context.Context, a Allotment) (Allotment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Id = s.id()
	a.CreatedAt = time.Now()
	s.allotments[a.Id] = a
	return a, nil
}

func (s *RepositoryStub) GetAllotment(_ context.Context, id int) (Allotment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allotments[id]
	if !ok {
		return Allotment{}, apperr.NotFound("allotment", id)
	}
	return a, nil
}

func (s *RepositoryStub) LockAllotment(ctx context.Context, id int) (Allotment, error) {
	return s.GetAllotment(ctx, id)
}

func (s *RepositoryStub) ListAllotments(_ context.Context, appropriationId int) ([]Allotment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Allotment, 0)
	for _, a := range s.allotments {
		if a.AppropriationId == appropriationId {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(a, b Allotment) int { return a.Id - b.Id })
	return result, nil
}

func (s *RepositoryStub) SumApprovedObligations(_ context.Context, allotmentId int) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumApproved(allotmentId), nil
}

func (s *RepositoryStub) sumApproved(allotmentId int) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range s.obligations {
		if o.AllotmentId == allotmentId && o.Status == ObligationApproved {
			sum = sum.Add(o.Amount)
		}
	}
	return sum
}

func (s *RepositoryStub) CreateObligation(_ context.Context, o Obligation) (Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Id = s.id()
	o.CreatedAt = time.Now()
	s.obligations[o.Id] = o
	return o, nil
}

func (s *RepositoryStub) GetObligation(_ context.Context, id int) (Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.obligations[id]
	if !ok {
		return Obligation{}, apperr.NotFound("obligation", id)
	}
	return o, nil
}

func (s *RepositoryStub) LockObligation(ctx context.Context, id int) (Obligation, error) {
	return s.GetObligation(ctx, id)
}

func (s *RepositoryStub) ListObligations(_ context.Context, allotmentId int) ([]Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Obligation, 0)
	for _, o := range s.obligations {
		if o.AllotmentId == allotmentId {
			result = append(result, o)
		}
	}
	slices.SortFunc(result, func(a, b Obligation) int { return a.Id - b.Id })
	return result, nil
}

func (s *RepositoryStub) UpdateObligationStatus(_ context.Context, o Obligation) (Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.obligations[o.Id]
	if !ok {
		return Obligation{}, apperr.NotFound("obligation", o.Id)
	}
	existing.Status = o.Status
	existing.OrsNumber = o.OrsNumber
	existing.Remarks = o.Remarks
	existing.ApprovedBy = o.ApprovedBy
	existing.ApprovedAt = o.ApprovedAt
	s.obligations[o.Id] = existing
	return existing, nil
}

func (s *RepositoryStub) GetAvailability(_ context.Context, allotmentId int) (Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allotment, ok := s.allotments[allotmentId]
	if !ok {
		return Availability{}, apperr.NotFound("allotment", allotmentId)
	}
	appropriation := s.appropriations[allotment.AppropriationId]
	disbursed, ok := s.disbursed[allotmentId]
	if !ok {
		disbursed = decimal.Zero
	}
	return newAvailability(allotmentId, appropriation.Amount, allotment.Amount, s.sumApproved(allotmentId), disbursed), nil
}
