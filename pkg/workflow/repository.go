package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	WithTx(q database.Queryer) Repository
	// InsertStages stores all stages of a voucher in a single statement.
	InsertStages(ctx context.Context, dvId int, stages []Stage) ([]Stage, error)
	ListStages(ctx context.Context, dvId int) ([]Stage, error)
	UpdateStage(ctx context.Context, stage Stage) error
	SkipStagesAfter(ctx context.Context, dvId int, order int) error
	// LockVoucher returns the voucher status and holds its row lock until the transaction ends.
	LockVoucher(ctx context.Context, dvId int) (string, error)
	SetVoucherStatus(ctx context.Context, dvId int, status string) error
	// ListPending returns the current stage of every voucher in a running workflow whose
	// role is one of roleIds. A nil roleIds matches every role.
	ListPending(ctx context.Context, roleIds []int) ([]PendingApproval, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx database.Queryer
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(q database.Queryer) Repository {
	return &repositoryImpl{db: r.db, tx: q}
}

func (r *repositoryImpl) getQueryer() database.Queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repositoryImpl) InsertStages(ctx context.Context, dvId int, stages []Stage) ([]Stage, error) {
	names := make([]string, len(stages))
	orders := make([]int, len(stages))
	roleIds := make([]int, len(stages))
	for i, s := range stages {
		names[i], orders[i], roleIds[i] = string(s.Name), s.Order, s.ApproverRoleId
	}

	query := `INSERT INTO approval_workflow_stage (dv_id, stage, stage_order, approver_role_id, status)
				SELECT $1, s.stage, s.stage_order, s.role_id, 'pending'
				FROM unnest($2::text[], $3::int[], $4::int[]) AS s(stage, stage_order, role_id)
				ORDER BY s.stage_order
				RETURNING id, stage_order`
	rows, err := r.getQueryer().Query(ctx, query, dvId, names, orders, roleIds)
	if err != nil {
		err := fmt.Errorf("could not insert workflow stages: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	idsByOrder := map[int]int{}
	for rows.Next() {
		var id, order int
		if err := rows.Scan(&id, &order); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		idsByOrder[order] = id
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("could not insert workflow stages: %w", err)
		log.Error(err)
		return nil, err
	}

	created := make([]Stage, len(stages))
	for i, s := range stages {
		s.Id = idsByOrder[s.Order]
		s.DvId = dvId
		s.Status = StagePending
		created[i] = s
	}
	return created, nil
}

func (r *repositoryImpl) ListStages(ctx context.Context, dvId int) ([]Stage, error) {
	query := `SELECT s.id, s.dv_id, s.stage, s.stage_order, s.approver_role_id, s.approver_user_id, u.username,
					 s.status, s.comments, s.action_date
				FROM approval_workflow_stage s
				LEFT JOIN users u ON u.id = s.approver_user_id
				WHERE s.dv_id = $1
				ORDER BY s.stage_order`
	rows, err := r.getQueryer().Query(ctx, query, dvId)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	stages := make([]Stage, 0, len(Stages))
	for rows.Next() {
		var s Stage
		if err := rows.Scan(&s.Id, &s.DvId, &s.Name, &s.Order, &s.ApproverRoleId, &s.ApproverUserId, &s.ApproverUsername,
			&s.Status, &s.Comments, &s.ActionDate); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func (r *repositoryImpl) UpdateStage(ctx context.Context, s Stage) error {
	query := `UPDATE approval_workflow_stage
				SET status = $2, approver_user_id = $3, comments = $4, action_date = $5
				WHERE id = $1`
	_, err := r.getQueryer().Exec(ctx, query, s.Id, s.Status, s.ApproverUserId, s.Comments, s.ActionDate)
	if err != nil {
		err := fmt.Errorf("could not update stage %d: %w", s.Id, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *repositoryImpl) SkipStagesAfter(ctx context.Context, dvId int, order int) error {
	query := `UPDATE approval_workflow_stage SET status = 'skipped'
				WHERE dv_id = $1 AND stage_order > $2 AND status = 'pending'`
	_, err := r.getQueryer().Exec(ctx, query, dvId, order)
	if err != nil {
		err := fmt.Errorf("could not skip stages of voucher %d: %w", dvId, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *repositoryImpl) LockVoucher(ctx context.Context, dvId int) (string, error) {
	var status string
	err := r.getQueryer().QueryRow(ctx, `SELECT status FROM disbursement_voucher WHERE id = $1 FOR UPDATE`, dvId).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("disbursement_voucher", dvId)
	}
	if err != nil {
		err := fmt.Errorf("could not lock voucher %d: %w", dvId, err)
		log.Error(err)
		return "", err
	}
	return status, nil
}

func (r *repositoryImpl) SetVoucherStatus(ctx context.Context, dvId int, status string) error {
	tag, err := r.getQueryer().Exec(ctx,
		`UPDATE disbursement_voucher SET status = $2, updated_at = now() WHERE id = $1`, dvId, status)
	if err != nil {
		err := fmt.Errorf("could not set status of voucher %d: %w", dvId, err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("disbursement_voucher", dvId)
	}
	return nil
}

func (r *repositoryImpl) ListPending(ctx context.Context, roleIds []int) ([]PendingApproval, error) {
	query := `SELECT cur.id, cur.dv_id, cur.stage, cur.stage_order, cur.approver_role_id, cur.dv_no, cur.payee, cur.amount
				FROM (SELECT DISTINCT ON (s.dv_id) s.id, s.dv_id, s.stage, s.stage_order, s.approver_role_id,
							dv.dv_no, dv.payee, dv.amount
						FROM approval_workflow_stage s
						JOIN disbursement_voucher dv ON dv.id = s.dv_id
						WHERE s.status = 'pending' AND dv.status LIKE 'pending\_%'
						ORDER BY s.dv_id, s.stage_order) cur
				WHERE $1::int[] IS NULL OR cur.approver_role_id = ANY($1::int[])
				ORDER BY cur.dv_id`
	rows, err := r.getQueryer().Query(ctx, query, roleIds)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	pending := make([]PendingApproval, 0)
	for rows.Next() {
		var p PendingApproval
		if err := rows.Scan(&p.Stage.Id, &p.DvId, &p.Stage.Name, &p.Stage.Order, &p.Stage.ApproverRoleId,
			&p.DvNo, &p.Payee, &p.Amount); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		p.Stage.DvId = p.DvId
		p.Stage.Status = StagePending
		pending = append(pending, p)
	}
	return pending, rows.Err()
}
