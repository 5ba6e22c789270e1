package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Users
	r.HandleFunc("/api/user", deps.IdentityHandler.CreateUser).Methods("POST")
	r.HandleFunc("/api/user/current", deps.IdentityHandler.CurrentUser).Methods("GET")

	// Ledger reference data
	r.HandleFunc("/api/ledger/fund-clusters", deps.LedgerHandler.ListFundClusters).Methods("GET")
	r.HandleFunc("/api/ledger/fund-clusters", deps.LedgerHandler.CreateFundCluster).Methods("POST")
	r.HandleFunc("/api/ledger/objects-of-expenditure", deps.LedgerHandler.ListObjectsOfExpenditure).Methods("GET")
	r.HandleFunc("/api/ledger/objects-of-expenditure", deps.LedgerHandler.CreateObjectOfExpenditure).Methods("POST")

	// Appropriations and allotments
	r.HandleFunc("/api/ledger/appropriations", deps.LedgerHandler.CreateAppropriation).Methods("POST")
	r.HandleFunc("/api/ledger/appropriations/{appropriationId}", deps.LedgerHandler.GetAppropriation).Methods("GET")
	r.HandleFunc("/api/ledger/appropriations/{appropriationId}/allotments", deps.LedgerHandler.ListAllotments).Methods("GET")
	r.HandleFunc("/api/ledger/allotments", deps.LedgerHandler.CreateAllotment).Methods("POST")
	r.HandleFunc("/api/ledger/allotments/{allotmentId}", deps.LedgerHandler.GetAllotment).Methods("GET")
	r.HandleFunc("/api/ledger/allotments/{allotmentId}/availability", deps.LedgerHandler.GetBudgetAvailability).Methods("GET")
	r.HandleFunc("/api/ledger/allotments/{allotmentId}/obligations", deps.LedgerHandler.ListObligations).Methods("GET")

	// Obligations
	r.HandleFunc("/api/ledger/obligations", deps.LedgerHandler.CreateObligation).Methods("POST")
	r.HandleFunc("/api/ledger/obligations/{obligationId}", deps.LedgerHandler.GetObligation).Methods("GET")
	r.HandleFunc("/api/ledger/obligations/{obligationId}/approve", deps.LedgerHandler.ApproveObligation).Methods("POST")
	r.HandleFunc("/api/ledger/obligations/{obligationId}/reject", deps.LedgerHandler.RejectObligation).Methods("POST")

	// Disbursement vouchers
	r.HandleFunc("/api/dv", deps.DisbursementHandler.ListDVs).Methods("GET")
	r.HandleFunc("/api/dv", deps.DisbursementHandler.CreateDV).Methods("POST")
	r.HandleFunc("/api/dv/{dvId}", deps.DisbursementHandler.GetDV).Methods("GET")
	r.HandleFunc("/api/dv/{dvId}", deps.DisbursementHandler.UpdateDV).Methods("PUT")
	r.HandleFunc("/api/dv/{dvId}/cancel", deps.DisbursementHandler.CancelDV).Methods("POST")

	// Approval workflow
	r.HandleFunc("/api/dv/{dvId}/workflow", deps.WorkflowHandler.History).Methods("GET")
	r.HandleFunc("/api/dv/{dvId}/workflow/current", deps.WorkflowHandler.CurrentStage).Methods("GET")
	r.HandleFunc("/api/dv/{dvId}/workflow/approve", deps.WorkflowHandler.ApproveStage).Methods("POST")
	r.HandleFunc("/api/dv/{dvId}/workflow/reject", deps.WorkflowHandler.RejectStage).Methods("POST")
	r.HandleFunc("/api/approvals/pending", deps.WorkflowHandler.PendingForUser).Methods("GET")

	// Payments
	r.HandleFunc("/api/dv/{dvId}/payments", deps.DisbursementHandler.ListPayments).Methods("GET")
	r.HandleFunc("/api/dv/{dvId}/payments", deps.DisbursementHandler.CreatePayment).Methods("POST")
	r.HandleFunc("/api/payments/{paymentId}", deps.DisbursementHandler.GetPayment).Methods("GET")
	r.HandleFunc("/api/payments/{paymentId}/issue", deps.DisbursementHandler.IssuePayment).Methods("POST")
	r.HandleFunc("/api/payments/{paymentId}/clear", deps.DisbursementHandler.ClearPayment).Methods("POST")
	r.HandleFunc("/api/payments/{paymentId}/cancel", deps.DisbursementHandler.CancelPayment).Methods("POST")
	r.HandleFunc("/api/payments/{paymentId}/stale", deps.DisbursementHandler.MarkStale).Methods("POST")

	// Serial numbers
	r.HandleFunc("/api/serial/allocate", deps.SerialHandler.Allocate).Methods("POST")
	r.HandleFunc("/api/serial/range", deps.SerialHandler.DefineRange).Methods("POST")
	r.HandleFunc("/api/serial/current", deps.SerialHandler.Current).Methods("GET")
}
