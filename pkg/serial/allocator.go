package serial

import (
	"context"
	"fmt"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/event_bus"
	"github.com/klokku/treasury/internal/tracing"
	"github.com/klokku/treasury/pkg/identity"
	"go.opentelemetry.io/otel/attribute"
)

type Allocator interface {
	// Allocate issues the next number of a standalone series in its own transaction.
	Allocate(ctx context.Context, scope Scope) (Number, error)
	// AllocateTx issues the next number on q, so the number is rolled back together with the
	// document that uses it.
	AllocateTx(ctx context.Context, q database.Queryer, scope Scope) (Number, error)
	DefineRange(ctx context.Context, scope Scope, start int64, end int64) error
	Current(ctx context.Context, scope Scope) (Number, *int64, error)
}

type AllocatorImpl struct {
	repo     Repository
	tx       database.Transactor
	eventBus *event_bus.EventBus
}

func NewAllocator(repo Repository, tx database.Transactor, eventBus *event_bus.EventBus) *AllocatorImpl {
	return &AllocatorImpl{repo: repo, tx: tx, eventBus: eventBus}
}

func (a *AllocatorImpl) Allocate(ctx context.Context, scope Scope) (number Number, err error) {
	ctx, span := tracing.Start(ctx, "serial.Allocate", attribute.String("serial.scope", scope.Key()))
	defer func() { tracing.End(span, err) }()

	if _, err := issuer(ctx); err != nil {
		return Number{}, err
	}
	if err := standalone(scope); err != nil {
		return Number{}, err
	}
	err = a.tx.WithTransaction(ctx, func(q database.Queryer) error {
		number, err = a.AllocateTx(ctx, q, scope)
		return err
	})
	if err != nil {
		return Number{}, err
	}
	return number, nil
}

func (a *AllocatorImpl) AllocateTx(ctx context.Context, q database.Queryer, scope Scope) (Number, error) {
	if err := scope.Validate(); err != nil {
		return Number{}, err
	}
	value, err := a.repo.WithTx(q).Next(ctx, scope.Key())
	if err != nil {
		return Number{}, err
	}
	return Number{Scope: scope, Value: value}, nil
}

func (a *AllocatorImpl) DefineRange(ctx context.Context, scope Scope, start int64, end int64) (err error) {
	ctx, span := tracing.Start(ctx, "serial.DefineRange", attribute.String("serial.scope", scope.Key()))
	defer func() { tracing.End(span, err) }()

	actor, err := issuer(ctx)
	if err != nil {
		return err
	}
	if err := standalone(scope); err != nil {
		return err
	}
	if start < 1 || end < start {
		return apperr.Validation("invalid range %d..%d", start, end)
	}
	if err := a.repo.DefineRange(ctx, scope.Key(), start, end); err != nil {
		return err
	}

	a.eventBus.PublishAndForget(event_bus.NewEvent(ctx, event_bus.SerialRangeDefined, event_bus.EntityChanged{
		ActorId:    actor.UserId,
		EntityType: "sequence_counter",
		NewValues:  map[string]any{"scope": scope.Key(), "start": start, "end": end},
	}))
	return nil
}

func (a *AllocatorImpl) Current(ctx context.Context, scope Scope) (Number, *int64, error) {
	if err := scope.Validate(); err != nil {
		return Number{}, nil, err
	}
	value, end, err := a.repo.Current(ctx, scope.Key())
	if err != nil {
		return Number{}, nil, err
	}
	return Number{Scope: scope, Value: value}, end, nil
}

// issuer is the identity allowed to draw on or bound a series by hand.
func issuer(ctx context.Context) (identity.Identity, error) {
	actor, err := identity.Current(ctx)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	if !actor.SatisfiesAny(identity.RoleCashier, identity.RoleAccountant) {
		return identity.Identity{}, apperr.Permission(actor.UserId, string(identity.RoleCashier))
	}
	return actor, nil
}

// standalone rejects series that are only issued together with their document.
func standalone(scope Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if !scope.Series.Standalone {
		return apperr.Validation("series %s is only issued with its document", scope.Series.Code).
			With("series", scope.Series.Code)
	}
	return nil
}
