package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/treasury/internal/config"
	log "github.com/sirupsen/logrus"
)

func NewSink(cfg config.Audit, db *pgxpool.Pool) Sink {
	if cfg.Sink == config.AuditSinkLog {
		return LogSink{}
	}
	return NewPostgresSink(db)
}

// LogSink writes audit records as structured log entries.
type LogSink struct{}

func (LogSink) Write(_ context.Context, r Record) error {
	log.WithFields(log.Fields{
		"audit_id":    r.Id.String(),
		"actor_id":    r.ActorId,
		"entity_type": r.EntityType,
		"entity_id":   r.EntityId,
		"old_values":  r.OldValues,
		"new_values":  r.NewValues,
	}).Info(r.Action)
	return nil
}

type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Write(ctx context.Context, r Record) error {
	query := `INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, old_values, new_values, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, query, r.Id, r.ActorId, r.Action, r.EntityType, r.EntityId, r.OldValues, r.NewValues, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("could not insert audit record: %w", err)
	}
	return nil
}
