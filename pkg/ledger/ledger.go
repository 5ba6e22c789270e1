package ledger

import (
	"time"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/shopspring/decimal"
)

type FundCluster struct {
	Id   int
	Code string
	Name string
}

// ObjectOfExpenditure is a standardized expenditure classification code.
type ObjectOfExpenditure struct {
	Id   int
	Code string
	Name string
}

// Appropriation is the legal spending ceiling of a fund cluster for one year.
type Appropriation struct {
	Id            int
	FundClusterId int
	Year          int
	Amount        decimal.Decimal
	Reference     string
	Description   string
	CreatedBy     int
	CreatedAt     time.Time
}

// Allotment is a sub-ceiling of an appropriation.
type Allotment struct {
	Id                    int
	AppropriationId       int
	ObjectOfExpenditureId int
	MfoPapId              *int
	Amount                decimal.Decimal
	Class                 string
	Purpose               string
	CreatedBy             int
	CreatedAt             time.Time
}

type ObligationStatus string

const (
	ObligationPending  ObligationStatus = "pending"
	ObligationApproved ObligationStatus = "approved"
	ObligationRejected ObligationStatus = "rejected"
)

// Obligation commits funds of an allotment to a payee.
type Obligation struct {
	Id          int
	AllotmentId int
	Payee       string
	Particulars string
	Amount      decimal.Decimal
	Status      ObligationStatus
	OrsNumber   *string
	Remarks     *string
	CreatedBy   int
	ApprovedBy  *int
	ApprovedAt  *time.Time
	CreatedAt   time.Time
}

// Availability is a snapshot of the balances of one allotment.
type Availability struct {
	AllotmentId        int
	Appropriation      decimal.Decimal
	Allotment          decimal.Decimal
	Obligation         decimal.Decimal
	Disbursement       decimal.Decimal
	UnobligatedBalance decimal.Decimal
	AvailableBalance   decimal.Decimal
}

// Money rounds an amount to centavos.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ValidateAmount rejects amounts finer than a centavo instead of rounding them.
func ValidateAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(2)) {
		return apperr.Validation("%s %s has more than 2 decimal places", field, d.String()).With(field, d.String())
	}
	return nil
}

func newAvailability(allotmentId int, appropriation, allotment, obligated, disbursed decimal.Decimal) Availability {
	unobligated := Money(allotment.Sub(obligated))
	return Availability{
		AllotmentId:        allotmentId,
		Appropriation:      Money(appropriation),
		Allotment:          Money(allotment),
		Obligation:         Money(obligated),
		Disbursement:       Money(disbursed),
		UnobligatedBalance: unobligated,
		AvailableBalance:   Money(unobligated.Sub(disbursed)),
	}
}
