package serial

import (
	"context"
	"sync"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
)

type counter struct {
	value int64
	end   *int64
}

type RepositoryStub struct {
	mu       sync.Mutex
	counters map[string]*counter
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{counters: map[string]*counter{}}
}

func (s *RepositoryStub) WithTx(_ database.Queryer) Repository {
	return s
}

func (s *RepositoryStub) Next(_ context.Context, scopeKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[scopeKey]
	if !ok {
		c = &counter{}
		s.counters[scopeKey] = c
	}
	if c.end != nil && c.value >= *c.end {
		return 0, apperr.SeriesExhausted(scopeKey)
	}
	c.value++
	return c.value, nil
}

func (s *RepositoryStub) DefineRange(_ context.Context, scopeKey string, start int64, end int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[scopeKey]
	if !ok {
		s.counters[scopeKey] = &counter{value: start - 1, end: &end}
		return nil
	}
	if c.value > end {
		return apperr.Conflict("series", scopeKey, "numbers beyond %d were already issued", end)
	}
	c.value = max(c.value, start-1)
	c.end = &end
	return nil
}

func (s *RepositoryStub) Current(_ context.Context, scopeKey string) (int64, *int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[scopeKey]
	if !ok {
		return 0, nil, nil
	}
	return c.value, c.end, nil
}
