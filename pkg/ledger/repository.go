package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// WithTx returns a repository whose statements run on q.
	WithTx(q database.Queryer) Repository

	CreateFundCluster(ctx context.Context, fundCluster FundCluster) (FundCluster, error)
	GetFundCluster(ctx context.Context, id int) (FundCluster, error)
	ListFundClusters(ctx context.Context) ([]FundCluster, error)
	CreateObjectOfExpenditure(ctx context.Context, object ObjectOfExpenditure) (ObjectOfExpenditure, error)
	GetObjectOfExpenditure(ctx context.Context, id int) (ObjectOfExpenditure, error)
	ListObjectsOfExpenditure(ctx context.Context) ([]ObjectOfExpenditure, error)

	CreateAppropriation(ctx context.Context, appropriation Appropriation) (Appropriation, error)
	GetAppropriation(ctx context.Context, id int) (Appropriation, error)
	// LockAppropriation reads the appropriation and holds its row lock until the transaction ends.
	LockAppropriation(ctx context.Context, id int) (Appropriation, error)
	SumAllotments(ctx context.Context, appropriationId int) (decimal.Decimal, error)

	CreateAllotment(ctx context.Context, allotment Allotment) (Allotment, error)
	GetAllotment(ctx context.Context, id int) (Allotment, error)
	LockAllotment(ctx context.Context, id int) (Allotment, error)
	ListAllotments(ctx context.Context, appropriationId int) ([]Allotment, error)
	SumApprovedObligations(ctx context.Context, allotmentId int) (decimal.Decimal, error)

	CreateObligation(ctx context.Context, obligation Obligation) (Obligation, error)
	GetObligation(ctx context.Context, id int) (Obligation, error)
	LockObligation(ctx context.Context, id int) (Obligation, error)
	ListObligations(ctx context.Context, allotmentId int) ([]Obligation, error)
	UpdateObligationStatus(ctx context.Context, obligation Obligation) (Obligation, error)

	// GetAvailability reads every balance of the allotment in a single statement.
	GetAvailability(ctx context.Context, allotmentId int) (Availability, error)
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

func queryFailed(err error) error {
	err = fmt.Errorf("could not execute query: %w", err)
	log.Error(err)
	return err
}

func (r *repositoryImpl) CreateFundCluster(ctx context.Context, fundCluster FundCluster) (FundCluster, error) {
	query := `INSERT INTO fund_cluster (code, name) VALUES ($1, $2) RETURNING id`
	err := r.getQueryer().QueryRow(ctx, query, fundCluster.Code, fundCluster.Name).Scan(&fundCluster.Id)
	if err != nil {
		return FundCluster{}, queryFailed(err)
	}
	return fundCluster, nil
}

func (r *repositoryImpl) GetFundCluster(ctx context.Context, id int) (FundCluster, error) {
	query := `SELECT id, code, name FROM fund_cluster WHERE id = $1`
	var fc FundCluster
	err := r.getQueryer().QueryRow(ctx, query, id).Scan(&fc.Id, &fc.Code, &fc.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return FundCluster{}, apperr.NotFound("fund_cluster", id)
	}
	if err != nil {
		return FundCluster{}, queryFailed(err)
	}
	return fc, nil
}

func (r *repositoryImpl) ListFundClusters(ctx context.Context) ([]FundCluster, error) {
	rows, err := r.getQueryer().Query(ctx, `SELECT id, code, name FROM fund_cluster ORDER BY code`)
	if err != nil {
		return nil, queryFailed(err)
	}
	defer rows.Close()

	fundClusters := make([]FundCluster, 0)
	for rows.Next() {
		var fc FundCluster
		if err := rows.Scan(&fc.Id, &fc.Code, &fc.Name); err != nil {
			return nil, queryFailed(err)
		}
		fundClusters = append(fundClusters, fc)
	}
	return fundClusters, rows.Err()
}

func (r *repositoryImpl) CreateObjectOfExpenditure(ctx context.Context, object ObjectOfExpenditure) (ObjectOfExpenditure, error) {
	query := `INSERT INTO object_of_expenditure (code, name) VALUES ($1, $2) RETURNING id`
	err := r.getQueryer().QueryRow(ctx, query, object.Code, object.Name).Scan(&object.Id)
	if err != nil {
		return ObjectOfExpenditure{}, queryFailed(err)
	}
	return object, nil
}

func (r *repositoryImpl) GetObjectOfExpenditure(ctx context.Context, id int) (ObjectOfExpenditure, error) {
	query := `SELECT id, code, name FROM object_of_expenditure WHERE id = $1`
	var o ObjectOfExpenditure
	err := r.getQueryer().QueryRow(ctx, query, id).Scan(&o.Id, &o.Code, &o.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return ObjectOfExpenditure{}, apperr.NotFound("object_of_expenditure", id)
	}
	if err != nil {
		return ObjectOfExpenditure{}, queryFailed(err)
	}
	return o, nil
}

func (r *repositoryImpl) ListObjectsOfExpenditure(ctx context.Context) ([]ObjectOfExpenditure, error) {
	rows, err := r.getQueryer().Query(ctx, `SELECT id, code, name FROM object_of_expenditure ORDER BY code`)
	if err != nil {
		return nil, queryFailed(err)
	}
	defer rows.Close()

	objects := make([]ObjectOfExpenditure, 0)
	for rows.Next() {
		var o ObjectOfExpenditure
		if err := rows.Scan(&o.Id, &o.Code, &o.Name); err != nil {
			return nil, queryFailed(err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func (r *repositoryImpl) CreateAppropriation(ctx context.Context, a Appropriation) (Appropriation, error) {
	query := `INSERT INTO appropriation (fund_cluster_id, year, amount, reference, description, created_by)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id, created_at`
	err := r.getQueryer().QueryRow(ctx, query, a.FundClusterId, a.Year, a.Amount, a.Reference, a.Description, a.CreatedBy).
		Scan(&a.Id, &a.CreatedAt)
	if err != nil {
		return Appropriation{}, queryFailed(err)
	}
	return a, nil
}

const appropriationColumns = `id, fund_cluster_id, year, amount, reference, description, created_by, created_at`

func scanAppropriation(row pgx.Row, id int) (Appropriation, error) {
	var a Appropriation
	err := row.Scan(&a.Id, &a.FundClusterId, &a.Year, &a.Amount, &a.Reference, &a.Description, &a.CreatedBy, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appropriation{}, apperr.NotFound("appropriation", id)
	}
	if err != nil {
		return Appropriation{}, queryFailed(err)
	}
	return a, nil
}

func (r *repositoryImpl) GetAppropriation(ctx context.Context, id int) (Appropriation, error) {
	query := `SELECT ` + appropriationColumns + ` FROM appropriation WHERE id = $1`
	return scanAppropriation(r.getQueryer().QueryRow(ctx, query, id), id)
}

func (r *repositoryImpl) LockAppropriation(ctx context.Context, id int) (Appropriation, error) {
	query := `SELECT ` + appropriationColumns + ` FROM appropriation WHERE id = $1 FOR UPDATE`
	return scanAppropriation(r.getQueryer().QueryRow(ctx, query, id), id)
}

func (r *repositoryImpl) SumAllotments(ctx context.Context, appropriationId int) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM allotment WHERE appropriation_id = $1`
	var sum decimal.Decimal
	if err := r.getQueryer().QueryRow(ctx, query, appropriationId).Scan(&sum); err != nil {
		return decimal.Zero, queryFailed(err)
	}
	return sum, nil
}

func (r *repositoryImpl) CreateAllotment(ctx context.Context, a Allotment) (Allotment, error) {
	query := `INSERT INTO allotment (appropriation_id, object_of_expenditure_id, mfo_pap_id, amount, class, purpose, created_by)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id, created_at`
	err := r.getQueryer().QueryRow(ctx, query,
		a.AppropriationId, a.ObjectOfExpenditureId, a.MfoPapId, a.Amount, a.Class, a.Purpose, a.CreatedBy,
	).Scan(&a.Id, &a.CreatedAt)
	if err != nil {
		return Allotment{}, queryFailed(err)
	}
	return a, nil
}

const allotmentColumns = `id, appropriation_id, object_of_expenditure_id, mfo_pap_id, amount, class, purpose, created_by, created_at`

func scanAllotment(row pgx.Row) (Allotment, error) {
	var a Allotment
	err := row.Scan(&a.Id, &a.AppropriationId, &a.ObjectOfExpenditureId, &a.MfoPapId, &a.Amount, &a.Class, &a.Purpose,
		&a.CreatedBy, &a.CreatedAt)
	return a, err
}

func (r *repositoryImpl) getAllotment(ctx context.Context, query string, id int) (Allotment, error) {
	a, err := scanAllotment(r.getQueryer().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Allotment{}, apperr.NotFound("allotment", id)
	}
	if err != nil {
		return Allotment{}, queryFailed(err)
	}
	return a, nil
}

func (r *repositoryImpl) GetAllotment(ctx context.Context, id int) (Allotment, error) {
	return r.getAllotment(ctx, `SELECT `+allotmentColumns+` FROM allotment WHERE id = $1`, id)
}

func (r *repositoryImpl) LockAllotment(ctx context.Context, id int) (Allotment, error) {
	return r.getAllotment(ctx, `SELECT `+allotmentColumns+` FROM allotment WHERE id = $1 FOR UPDATE`, id)
}

func (r *repositoryImpl) ListAllotments(ctx context.Context, appropriationId int) ([]Allotment, error) {
	query := `SELECT ` + allotmentColumns + ` FROM allotment WHERE appropriation_id = $1 ORDER BY id`
	rows, err := r.getQueryer().Query(ctx, query, appropriationId)
	if err != nil {
		return nil, queryFailed(err)
	}
	defer rows.Close()

	allotments := make([]Allotment, 0)
	for rows.Next() {
		a, err := scanAllotment(rows)
		if err != nil {
			return nil, queryFailed(err)
		}
		allotments = append(allotments, a)
	}
	return allotments, rows.Err()
}

func (r *repositoryImpl) SumApprovedObligations(ctx context.Context, allotmentId int) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM obligation WHERE allotment_id = $1 AND status = 'approved'`
	var sum decimal.Decimal
	if err := r.getQueryer().QueryRow(ctx, query, allotmentId).Scan(&sum); err != nil {
		return decimal.Zero, queryFailed(err)
	}
	return sum, nil
}

func (r *repositoryImpl) CreateObligation(ctx context.Context, o Obligation) (Obligation, error) {
	query := `INSERT INTO obligation (allotment_id, payee, particulars, amount, status, created_by)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id, created_at`
	err := r.getQueryer().QueryRow(ctx, query, o.AllotmentId, o.Payee, o.Particulars, o.Amount, o.Status, o.CreatedBy).
		Scan(&o.Id, &o.CreatedAt)
	if err != nil {
		return Obligation{}, queryFailed(err)
	}
	return o, nil
}

const obligationColumns = `id, allotment_id, payee, particulars, amount, status, ors_number, remarks, created_by,
				approved_by, approved_at, created_at`

func scanObligation(row pgx.Row) (Obligation, error) {
	var o Obligation
	err := row.Scan(&o.Id, &o.AllotmentId, &o.Payee, &o.Particulars, &o.Amount, &o.Status, &o.OrsNumber, &o.Remarks,
		&o.CreatedBy, &o.ApprovedBy, &o.ApprovedAt, &o.CreatedAt)
	return o, err
}

func (r *repositoryImpl) getObligation(ctx context.Context, query string, id int) (Obligation, error) {
	o, err := scanObligation(r.getQueryer().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Obligation{}, apperr.NotFound("obligation", id)
	}
	if err != nil {
		return Obligation{}, queryFailed(err)
	}
	return o, nil
}

func (r *repositoryImpl) GetObligation(ctx context.Context, id int) (Obligation, error) {
	return r.getObligation(ctx, `SELECT `+obligationColumns+` FROM obligation WHERE id = $1`, id)
}

func (r *repositoryImpl) LockObligation(ctx context.Context, id int) (Obligation, error) {
	return r.getObligation(ctx, `SELECT `+obligationColumns+` FROM obligation WHERE id = $1 FOR UPDATE`, id)
}

func (r *repositoryImpl) ListObligations(ctx context.Context, allotmentId int) ([]Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligation WHERE allotment_id = $1 ORDER BY id`
	rows, err := r.getQueryer().Query(ctx, query, allotmentId)
	if err != nil {
		return nil, queryFailed(err)
	}
	defer rows.Close()

	obligations := make([]Obligation, 0)
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, queryFailed(err)
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

func (r *repositoryImpl) UpdateObligationStatus(ctx context.Context, o Obligation) (Obligation, error) {
	query := `UPDATE obligation
				SET status = $2, ors_number = $3, remarks = $4, approved_by = $5, approved_at = $6
				WHERE id = $1`
	tag, err := r.getQueryer().Exec(ctx, query, o.Id, o.Status, o.OrsNumber, o.Remarks, o.ApprovedBy, o.ApprovedAt)
	if err != nil {
		return Obligation{}, queryFailed(err)
	}
	if tag.RowsAffected() == 0 {
		return Obligation{}, apperr.NotFound("obligation", o.Id)
	}
	return o, nil
}

func (r *repositoryImpl) GetAvailability(ctx context.Context, allotmentId int) (Availability, error) {
	query := `SELECT ap.amount,
					 al.amount,
					 (SELECT COALESCE(SUM(o.amount), 0) FROM obligation o
						WHERE o.allotment_id = al.id AND o.status = 'approved'),
					 (SELECT COALESCE(SUM(dv.amount), 0) FROM disbursement_voucher dv
						JOIN obligation o ON o.id = dv.obligation_id
						WHERE o.allotment_id = al.id AND dv.status = 'paid')
				FROM allotment al
				JOIN appropriation ap ON ap.id = al.appropriation_id
				WHERE al.id = $1`

	var appropriation, allotment, obligated, disbursed decimal.Decimal
	err := r.getQueryer().QueryRow(ctx, query, allotmentId).Scan(&appropriation, &allotment, &obligated, &disbursed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Availability{}, apperr.NotFound("allotment", allotmentId)
	}
	if err != nil {
		return Availability{}, queryFailed(err)
	}
	return newAvailability(allotmentId, appropriation, allotment, obligated, disbursed), nil
}
