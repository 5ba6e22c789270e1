package workflow

import (
	"time"

	"github.com/klokku/treasury/pkg/identity"
	"github.com/shopspring/decimal"
)

type StageName string

const (
	StageDivision   StageName = "division"
	StageBudget     StageName = "budget"
	StageAccounting StageName = "accounting"
	StageDirector   StageName = "director"
)

type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageApproved StageStatus = "approved"
	StageRejected StageStatus = "rejected"
	StageSkipped  StageStatus = "skipped"
)

// Voucher statuses written by the engine.
const (
	VoucherApproved = "approved"
	VoucherRejected = "rejected"
)

// StageDefinition binds one sign-off step to the role allowed to perform it.
type StageDefinition struct {
	Name  StageName
	Order int
	Role  identity.Role
}

// Stages is the sign-off sequence of every voucher, in order.
var Stages = []StageDefinition{
	{Name: StageDivision, Order: 1, Role: identity.RoleDivisionHead},
	{Name: StageBudget, Order: 2, Role: identity.RoleBudgetOfficer},
	{Name: StageAccounting, Order: 3, Role: identity.RoleAccountant},
	{Name: StageDirector, Order: 4, Role: identity.RoleDirector},
}

// PendingStatus is the voucher status while stage is the current one, e.g. "pending_budget".
func PendingStatus(stage StageName) string {
	return "pending_" + string(stage)
}

// IsPendingStatus reports whether a voucher status belongs to a running workflow.
func IsPendingStatus(status string) bool {
	for _, s := range Stages {
		if status == PendingStatus(s.Name) {
			return true
		}
	}
	return false
}

type Stage struct {
	Id               int
	DvId             int
	Name             StageName
	Order            int
	ApproverRoleId   int
	RequiredRole     identity.Role
	ApproverUserId   *int
	ApproverUsername *string
	Status           StageStatus
	Comments         *string
	ActionDate       *time.Time
}

// Transition is the outcome of an approval. Next is nil when the last stage was approved.
type Transition struct {
	Approved      Stage
	Next          *Stage
	VoucherStatus string
}

// PendingApproval is a voucher waiting for the given stage.
type PendingApproval struct {
	DvId   int
	DvNo   string
	Payee  string
	Amount decimal.Decimal
	Stage  Stage
}

// current returns the lowest ordered pending stage; stages must be sorted by order.
func current(stages []Stage) (int, bool) {
	for i, s := range stages {
		if s.Status == StagePending {
			return i, true
		}
	}
	return -1, false
}
