package event_bus

const (
	AppropriationCreated EventType = "ledger.appropriation.created"
	AllotmentCreated     EventType = "ledger.allotment.created"
	ObligationCreated    EventType = "ledger.obligation.created"
	ObligationApproved   EventType = "ledger.obligation.approved"
	ObligationRejected   EventType = "ledger.obligation.rejected"

	StageApproved EventType = "workflow.stage.approved"
	StageRejected EventType = "workflow.stage.rejected"

	VoucherCreated   EventType = "disbursement.voucher.created"
	VoucherUpdated   EventType = "disbursement.voucher.updated"
	VoucherCancelled EventType = "disbursement.voucher.cancelled"

	PaymentCreated   EventType = "disbursement.payment.created"
	PaymentIssued    EventType = "disbursement.payment.issued"
	PaymentCleared   EventType = "disbursement.payment.cleared"
	PaymentCancelled EventType = "disbursement.payment.cancelled"
	PaymentStale     EventType = "disbursement.payment.stale"

	SerialRangeDefined EventType = "serial.range.defined"
)

// AuditedEventTypes lists every event that produces an audit record.
var AuditedEventTypes = []EventType{
	AppropriationCreated, AllotmentCreated, ObligationCreated, ObligationApproved, ObligationRejected,
	StageApproved, StageRejected,
	VoucherCreated, VoucherUpdated, VoucherCancelled,
	PaymentCreated, PaymentIssued, PaymentCleared, PaymentCancelled, PaymentStale,
	SerialRangeDefined,
}

// EntityChanged is published after a state change has been committed.
type EntityChanged struct {
	ActorId    int
	EntityType string
	EntityId   int
	OldValues  map[string]any
	NewValues  map[string]any
}
