package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/audit"
	"github.com/klokku/treasury/internal/config"
	"github.com/klokku/treasury/internal/database"
	"github.com/klokku/treasury/internal/event_bus"
	"github.com/klokku/treasury/internal/utils"
	"github.com/klokku/treasury/pkg/disbursement"
	"github.com/klokku/treasury/pkg/identity"
	"github.com/klokku/treasury/pkg/ledger"
	"github.com/klokku/treasury/pkg/serial"
	"github.com/klokku/treasury/pkg/workflow"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock      utils.Clock
	EventBus   *event_bus.EventBus
	Transactor database.Transactor
	AuditSink  audit.Sink

	IdentityService identity.Service
	IdentityHandler *identity.Handler

	SerialAllocator *serial.AllocatorImpl
	SerialHandler   *serial.Handler

	LedgerRepo    ledger.Repository
	LedgerService *ledger.ServiceImpl
	LedgerHandler *ledger.Handler

	WorkflowEngine  *workflow.EngineImpl
	WorkflowHandler *workflow.Handler

	DisbursementService *disbursement.ServiceImpl
	DisbursementHandler *disbursement.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, roles *identity.RoleCatalog, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	deps.Transactor = database.NewTransactor(db)
	deps.AuditSink = audit.NewSink(cfg.Audit, db)
	audit.Subscribe(deps.EventBus, deps.AuditSink, deps.Clock)

	deps.IdentityService = identity.NewService(identity.NewRepo(db))
	deps.IdentityHandler = identity.NewHandler(deps.IdentityService)

	deps.SerialAllocator = serial.NewAllocator(serial.NewRepo(db), deps.Transactor, deps.EventBus)
	deps.SerialHandler = serial.NewHandler(deps.SerialAllocator)

	deps.LedgerRepo = ledger.NewRepo(db)
	deps.LedgerService = ledger.NewService(deps.LedgerRepo, deps.Transactor, deps.SerialAllocator, deps.EventBus, deps.Clock)
	deps.LedgerHandler = ledger.NewHandler(deps.LedgerService)

	deps.WorkflowEngine = workflow.NewEngine(workflow.NewRepo(db), deps.Transactor, roles, deps.EventBus, deps.Clock)
	deps.WorkflowHandler = workflow.NewHandler(deps.WorkflowEngine)

	deps.DisbursementService = disbursement.NewService(disbursement.NewRepo(db), deps.LedgerRepo, deps.WorkflowEngine,
		deps.SerialAllocator, deps.Transactor, deps.EventBus, deps.Clock)
	deps.DisbursementHandler = disbursement.NewHandler(deps.DisbursementService)

	return deps
}
