package disbursement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/database"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	WithTx(q database.Queryer) Repository

	CreateVoucher(ctx context.Context, voucher Voucher) (Voucher, error)
	GetVoucher(ctx context.Context, id int) (Voucher, error)
	// LockVoucher reads the voucher and holds its row lock until the transaction ends.
	LockVoucher(ctx context.Context, id int) (Voucher, error)
	// ListVouchers returns all vouchers, or only those in status when it is not nil.
	ListVouchers(ctx context.Context, status *VoucherStatus) ([]Voucher, error)
	UpdateVoucher(ctx context.Context, voucher Voucher) (Voucher, error)
	// SumLiveVouchers totals the vouchers drawn on an obligation that are neither cancelled nor
	// rejected, leaving out excludeId.
	SumLiveVouchers(ctx context.Context, obligationId int, excludeId int) (decimal.Decimal, error)

	CreatePayment(ctx context.Context, payment Payment) (Payment, error)
	GetPayment(ctx context.Context, id int) (Payment, error)
	LockPayment(ctx context.Context, id int) (Payment, error)
	// LivePayment returns the non-cancelled payment of a voucher, or nil.
	LivePayment(ctx context.Context, dvId int) (*Payment, error)
	ListPayments(ctx context.Context, dvId int) ([]Payment, error)
	UpdatePayment(ctx context.Context, payment Payment) (Payment, error)
	CreateCheckDisbursement(ctx context.Context, check CheckDisbursement) (CheckDisbursement, error)
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

const voucherColumns = `id, dv_no, fund_cluster_id, object_expenditure_id, obligation_id, payee, particulars, amount,
				status, fiscal_year, cancel_reason, created_by, created_at, updated_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.Id, &v.DvNo, &v.FundClusterId, &v.ObjectExpenditureId, &v.ObligationId, &v.Payee, &v.Particulars,
		&v.Amount, &v.Status, &v.FiscalYear, &v.CancelReason, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r *repositoryImpl) CreateVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	query := `INSERT INTO disbursement_voucher
				(dv_no, fund_cluster_id, object_expenditure_id, obligation_id, payee, particulars, amount, status, fiscal_year, created_by)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING ` + voucherColumns
	created, err := scanVoucher(r.getQueryer().QueryRow(ctx, query,
		v.DvNo, v.FundClusterId, v.ObjectExpenditureId, v.ObligationId, v.Payee, v.Particulars, v.Amount, v.Status,
		v.FiscalYear, v.CreatedBy))
	if err != nil {
		return Voucher{}, queryFailed(err)
	}
	return created, nil
}

func (r *repositoryImpl) getVoucher(ctx context.Context, query string, id int) (Voucher, error) {
	v, err := scanVoucher(r.getQueryer().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, apperr.NotFound("disbursement_voucher", id)
	}
	if err != nil {
		return Voucher{}, queryFailed(err)
	}
	return v, nil
}

func (r *repositoryImpl) GetVoucher(ctx context.Context, id int) (Voucher, error) {
	return r.getVoucher(ctx, `SELECT `+voucherColumns+` FROM disbursement_voucher WHERE id = $1`, id)
}

func (r *repositoryImpl) LockVoucher(ctx context.Context, id int) (Voucher, error) {
	return r.getVoucher(ctx, `SELECT `+voucherColumns+` FROM disbursement_voucher WHERE id = $1 FOR UPDATE`, id)
}

func (r *repositoryImpl) ListVouchers(ctx context.Context, status *VoucherStatus) ([]Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM disbursement_voucher
				WHERE $1::text IS NULL OR status = $1
				ORDER BY id`
	rows, err := r.getQueryer().Query(ctx, query, status)
	if err != nil {
		return nil, queryFailed(err)
	}
	defer rows.Close()

	vouchers := make([]Voucher, 0)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, queryFailed(err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (r *repositoryImpl) UpdateVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	query := `UPDATE disbursement_voucher
				SET object_expenditure_id = $2, payee = $3, particulars = $4, amount = $5, status = $6,
					cancel_reason = $7, updated_at = now()
				WHERE id = $1
				RETURNING ` + voucherColumns
	updated, err := scanVoucher(r.getQueryer().QueryRow(ctx, query,
		v.Id, v.ObjectExpenditureId, v.Payee, v.Particulars, v.Amount, v.Status, v.CancelReason))
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, apperr.NotFound("disbursement_voucher", v.Id)
	}
	if err != nil {
		return Voucher{}, queryFailed(err)
	}
	return updated, nil
}

func (r *repositoryImpl) SumLiveVouchers(ctx context.Context, obligationId int, excludeId int) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM disbursement_voucher
				WHERE obligation_id = $1 AND id <> $2 AND status NOT IN ('cancelled', 'rejected')`
	var sum decimal.Decimal
	if err := r.getQueryer().QueryRow(ctx, query, obligationId, excludeId).Scan(&sum); err != nil {
		return decimal.Zero, queryFailed(err)
	}
	return sum, nil
}

const paymentColumns = `id, dv_id, payment_type, amount, check_no, status, received_by, received_date, clear_date,
				cancel_reason, created_by, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.Id, &p.DvId, &p.PaymentType, &p.Amount, &p.CheckNo, &p.Status, &p.ReceivedBy, &p.ReceivedDate,
		&p.ClearDate, &p.CancelReason, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repositoryImpl) CreatePayment(ctx context.Context, p Payment) (Payment, error) {
	query := `INSERT INTO payment (dv_id, payment_type, amount, check_no, status, created_by)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING ` + paymentColumns
	created, err := scanPayment(r.getQueryer().QueryRow(ctx, query, p.DvId, p.PaymentType, p.Amount, p.CheckNo, p.Status, p.CreatedBy))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "payment_live_per_dv_idx" {
			return Payment{}, apperr.Conflict("disbursement_voucher", p.DvId, "voucher already has a live payment")
		}
		return Payment{}, queryFailed(err)
	}
	return created, nil
}

func (r *repositoryImpl) getPayment(ctx context.Context, query string, id int) (Payment, error) {
	p, err := scanPayment(r.getQueryer().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, apperr.NotFound("payment", id)
	}
	if err != nil {
		return Payment{}, queryFailed(err)
	}
	return p, nil
}

func (r *repositoryImpl) GetPayment(ctx context.Context, id int) (Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payment WHERE id = $1`, id)
}

func (r *repositoryImpl) LockPayment(ctx context.Context, id int) (Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payment WHERE id = $1 FOR UPDATE`, id)
}

func (r *repositoryImpl) LivePayment(ctx context.Context, dvId int) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment WHERE dv_id = $1 AND status <> 'cancelled'`
	p, err := scanPayment(r.getQueryer().QueryRow(ctx, query, dvId))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryFailed(err)
	}
	return &p, nil
}

func (r *repositoryImpl) ListPayments(ctx context.Context, dvId int) ([]Payment, error) {
	rows, err := r.getQueryer().Query(ctx, `SELECT `+paymentColumns+` FROM payment WHERE dv_id = $1 ORDER BY id`, dvId)
	if err != nil {
		return nil, queryFailed(err)
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, queryFailed(err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repositoryImpl) UpdatePayment(ctx context.Context, p Payment) (Payment, error) {
	query := `UPDATE payment
				SET status = $2, received_by = $3, received_date = $4, clear_date = $5, cancel_reason = $6, updated_at = now()
				WHERE id = $1
				RETURNING ` + paymentColumns
	updated, err := scanPayment(r.getQueryer().QueryRow(ctx, query,
		p.Id, p.Status, p.ReceivedBy, p.ReceivedDate, p.ClearDate, p.CancelReason))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, apperr.NotFound("payment", p.Id)
	}
	if err != nil {
		return Payment{}, queryFailed(err)
	}
	return updated, nil
}

func (r *repositoryImpl) CreateCheckDisbursement(ctx context.Context, c CheckDisbursement) (CheckDisbursement, error) {
	query := `INSERT INTO check_disbursement (payment_id, check_no, amount, clear_date, reconciled)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`
	err := r.getQueryer().QueryRow(ctx, query, c.PaymentId, c.CheckNo, c.Amount, c.ClearDate, c.Reconciled).Scan(&c.Id)
	if err != nil {
		return CheckDisbursement{}, queryFailed(err)
	}
	return c, nil
}
