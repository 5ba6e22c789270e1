package workflow

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
	"go.opentelemetry.io/otel/attribute"
)

type Engine interface {
	// Initialize creates every stage of dvId as pending inside the caller's transaction and
	// returns them in order.
	Initialize(ctx context.Context, q database.Queryer, dvId int) ([]Stage, error)
	// CurrentStage returns nil once the workflow is resolved.
	CurrentStage(ctx context.Context, dvId int) (*Stage, error)
	ApproveStage(ctx context.Context, dvId int, comments string) (Transition, error)
	// RejectStage halts the workflow permanently.
	RejectStage(ctx context.Context, dvId int, comments string) (Stage, error)
	// Halt skips every stage still pending, inside the caller's transaction.
	Halt(ctx context.Context, q database.Queryer, dvId int) error
	PendingForUser(ctx context.Context) ([]PendingApproval, error)
	History(ctx context.Context, dvId int) ([]Stage, error)
}

type EngineImpl struct {
	repo     Repository
	tx       database.Transactor
	roles    *identity.RoleCatalog
	eventBus *event_bus.EventBus
	clock    utils.Clock
}

func NewEngine(repo Repository, tx database.Transactor, roles *identity.RoleCatalog, eventBus *event_bus.EventBus, clock utils.Clock) *EngineImpl {
	return &EngineImpl{repo: repo, tx: tx, roles: roles, eventBus: eventBus, clock: clock}
}

func (e *EngineImpl) withRoles(stages []Stage) []Stage {
	for i := range stages {
		if role, ok := e.roles.Name(stages[i].ApproverRoleId); ok {
			stages[i].RequiredRole = role
		}
	}
	return stages
}

func (e *EngineImpl) Initialize(ctx context.Context, q database.Queryer, dvId int) ([]Stage, error) {
	stages := make([]Stage, 0, len(Stages))
	for _, def := range Stages {
		roleId, err := e.roles.Id(def.Role)
		if err != nil {
			return nil, fmt.Errorf("cannot initialize workflow of voucher %d: %w", dvId, err)
		}
		stages = append(stages, Stage{Name: def.Name, Order: def.Order, ApproverRoleId: roleId, RequiredRole: def.Role})
	}
	return e.repo.WithTx(q).InsertStages(ctx, dvId, stages)
}

func (e *EngineImpl) Halt(ctx context.Context, q database.Queryer, dvId int) error {
	return e.repo.WithTx(q).SkipStagesAfter(ctx, dvId, 0)
}

func (e *EngineImpl) CurrentStage(ctx context.Context, dvId int) (*Stage, error) {
	stages, err := e.History(ctx, dvId)
	if err != nil {
		return nil, err
	}
	i, ok := current(stages)
	if !ok {
		return nil, nil
	}
	return &stages[i], nil
}

// lockCurrent locks the voucher and returns its stages and the index of the current one.
func (e *EngineImpl) lockCurrent(ctx context.Context, repo Repository, dvId int, action string) ([]Stage, int, error) {
	status, err := repo.LockVoucher(ctx, dvId)
	if err != nil {
		return nil, 0, err
	}
	if !IsPendingStatus(status) {
		return nil, 0, apperr.StateConflict("disbursement_voucher", dvId, status, action)
	}
	stages, err := repo.ListStages(ctx, dvId)
	if err != nil {
		return nil, 0, err
	}
	i, ok := current(stages)
	if !ok {
		return nil, 0, apperr.StateConflict("disbursement_voucher", dvId, status, action)
	}
	return e.withRoles(stages), i, nil
}

func (e *EngineImpl) resolve(actor identity.Identity, stage *Stage, status StageStatus, comments string) {
	now := e.clock.Now()
	stage.Status = status
	stage.ApproverUserId = &actor.UserId
	stage.ApproverUsername = &actor.Username
	stage.ActionDate = &now
	stage.Comments = nil
	if comments != "" {
		stage.Comments = &comments
	}
}

func (e *EngineImpl) ApproveStage(ctx context.Context, dvId int, comments string) (transition Transition, err error) {
	ctx, span := tracing.Start(ctx, "workflow.ApproveStage", attribute.Int("workflow.dv_id", dvId))
	defer func() { tracing.End(span, err) }()

	actor, err := identity.Current(ctx)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	comments = strings.TrimSpace(comments)

	err = e.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := e.repo.WithTx(q)
		stages, i, err := e.lockCurrent(ctx, repo, dvId, "approve stage")
		if err != nil {
			return err
		}
		stage := stages[i]
		if !actor.Satisfies(stage.RequiredRole) {
			return apperr.Permission(actor.UserId, string(stage.RequiredRole)).With("stage", stage.Name)
		}

		e.resolve(actor, &stage, StageApproved, comments)
		if err := repo.UpdateStage(ctx, stage); err != nil {
			return err
		}
		transition = Transition{Approved: stage, VoucherStatus: VoucherApproved}
		if next, ok := current(stages[i+1:]); ok {
			nextStage := stages[i+1+next]
			transition.Next = &nextStage
			transition.VoucherStatus = PendingStatus(nextStage.Name)
		}
		return repo.SetVoucherStatus(ctx, dvId, transition.VoucherStatus)
	})
	if err != nil {
		return Transition{}, err
	}

	e.eventBus.PublishAndForget(event_bus.NewEvent(ctx, event_bus.StageApproved, event_bus.EntityChanged{
		ActorId:    actor.UserId,
		EntityType: "approval_workflow_stage",
		EntityId:   transition.Approved.Id,
		OldValues:  map[string]any{"status": string(StagePending)},
		NewValues: map[string]any{
			"dvId":          dvId,
			"stage":         string(transition.Approved.Name),
			"status":        string(StageApproved),
			"voucherStatus": transition.VoucherStatus,
		},
	}))
	return transition, nil
}

func (e *EngineImpl) RejectStage(ctx context.Context, dvId int, comments string) (rejected Stage, err error) {
	ctx, span := tracing.Start(ctx, "workflow.RejectStage", attribute.Int("workflow.dv_id", dvId))
	defer func() { tracing.End(span, err) }()

	actor, err := identity.Current(ctx)
	if err != nil {
		return Stage{}, fmt.Errorf("failed to get current identity: %w", err)
	}
	comments = strings.TrimSpace(comments)
	if comments == "" {
		return Stage{}, apperr.Validation("comments are required to reject a stage")
	}

	err = e.tx.WithTransaction(ctx, func(q database.Queryer) error {
		repo := e.repo.WithTx(q)
		stages, i, err := e.lockCurrent(ctx, repo, dvId, "reject stage")
		if err != nil {
			return err
		}
		rejected = stages[i]
		if !actor.Satisfies(rejected.RequiredRole) {
			return apperr.Permission(actor.UserId, string(rejected.RequiredRole)).With("stage", rejected.Name)
		}

		e.resolve(actor, &rejected, StageRejected, comments)
		if err := repo.UpdateStage(ctx, rejected); err != nil {
			return err
		}
		if err := repo.SkipStagesAfter(ctx, dvId, rejected.Order); err != nil {
			return err
		}
		return repo.SetVoucherStatus(ctx, dvId, VoucherRejected)
	})
	if err != nil {
		return Stage{}, err
	}

	e.eventBus.PublishAndForget(event_bus.NewEvent(ctx, event_bus.StageRejected, event_bus.EntityChanged{
		ActorId:    actor.UserId,
		EntityType: "approval_workflow_stage",
		EntityId:   rejected.Id,
		OldValues:  map[string]any{"status": string(StagePending)},
		NewValues: map[string]any{
			"dvId":          dvId,
			"stage":         string(rejected.Name),
			"status":        string(StageRejected),
			"comments":      comments,
			"voucherStatus": VoucherRejected,
		},
	}))
	return rejected, nil
}

func (e *EngineImpl) PendingForUser(ctx context.Context) ([]PendingApproval, error) {
	actor, err := identity.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current identity: %w", err)
	}

	var roleIds []int
	if !actor.HasRole(identity.RoleAdministrator) {
		roleIds = []int{}
		for _, role := range actor.Roles {
			if id, err := e.roles.Id(role); err == nil {
				roleIds = append(roleIds, id)
			}
		}
		if len(roleIds) == 0 {
			return []PendingApproval{}, nil
		}
	}

	pending, err := e.repo.ListPending(ctx, roleIds)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if role, ok := e.roles.Name(pending[i].Stage.ApproverRoleId); ok {
			pending[i].Stage.RequiredRole = role
		}
	}
	return pending, nil
}

func (e *EngineImpl) History(ctx context.Context, dvId int) ([]Stage, error) {
	stages, err := e.repo.ListStages(ctx, dvId)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, apperr.NotFound("workflow", dvId)
	}
	return e.withRoles(stages), nil
}
