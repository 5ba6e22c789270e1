package disbursement

import (
	"slices"
	"time"

	"github.com/klokku/treasury/pkg/workflow"
	"github.com/shopspring/decimal"
)

type VoucherStatus string

const (
	VoucherDraft             VoucherStatus = "draft"
	VoucherPendingDivision   VoucherStatus = "pending_division"
	VoucherPendingBudget     VoucherStatus = "pending_budget"
	VoucherPendingAccounting VoucherStatus = "pending_accounting"
	VoucherPendingDirector   VoucherStatus = "pending_director"
	VoucherApproved          VoucherStatus = workflow.VoucherApproved
	VoucherPaid              VoucherStatus = "paid"
	VoucherCancelled         VoucherStatus = "cancelled"
	VoucherRejected          VoucherStatus = workflow.VoucherRejected
)

// Voucher is a disbursement voucher (DV), the document authorizing a payment.
type Voucher struct {
	Id                  int
	DvNo                string
	FundClusterId       int
	ObjectExpenditureId int
	ObligationId        *int
	Payee               string
	Particulars         string
	Amount              decimal.Decimal
	Status              VoucherStatus
	FiscalYear          int
	CancelReason        *string
	CreatedBy           int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// VoucherUpdate holds the fields that may change while a voucher is a draft. Nil fields are kept.
type VoucherUpdate struct {
	Payee               *string
	Particulars         *string
	Amount              *decimal.Decimal
	ObjectExpenditureId *int
}

type PaymentType string

const (
	PaymentCheck PaymentType = "check"
	// PaymentADA is an advice to debit account.
	PaymentADA  PaymentType = "ada"
	PaymentCash PaymentType = "cash"
)

var paymentTypes = []PaymentType{PaymentCheck, PaymentADA, PaymentCash}

func (t PaymentType) Valid() bool {
	return slices.Contains(paymentTypes, t)
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentIssued    PaymentStatus = "issued"
	PaymentCleared   PaymentStatus = "cleared"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentStale     PaymentStatus = "stale"
)

type Payment struct {
	Id           int
	DvId         int
	PaymentType  PaymentType
	Amount       decimal.Decimal
	CheckNo      *string
	Status       PaymentStatus
	ReceivedBy   *string
	ReceivedDate *time.Time
	ClearDate    *time.Time
	CancelReason *string
	CreatedBy    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CheckDisbursement is the reconciliation record of a cleared check.
type CheckDisbursement struct {
	Id         int
	PaymentId  int
	CheckNo    string
	Amount     decimal.Decimal
	ClearDate  time.Time
	Reconciled bool
}

// paymentTransitions lists the statuses a payment may move to from each status.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentIssued, PaymentCancelled},
	PaymentIssued:  {PaymentCleared, PaymentCancelled, PaymentStale},
}

func (s PaymentStatus) CanMoveTo(next PaymentStatus) bool {
	return slices.Contains(paymentTransitions[s], next)
}
