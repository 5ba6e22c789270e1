// Package audit turns committed state changes published on the event bus into audit records.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/treasury/internal/event_bus"
	"github.com/klokku/treasury/internal/utils"
	log "github.com/sirupsen/logrus"
)

type Record struct {
	Id         uuid.UUID
	ActorId    int
	Action     string
	EntityType string
	EntityId   string
	OldValues  map[string]any
	NewValues  map[string]any
	CreatedAt  time.Time
}

type Sink interface {
	Write(ctx context.Context, record Record) error
}

func newRecord(e event_bus.EventT[event_bus.EntityChanged], now time.Time) Record {
	data := e.Data
	entityId := strconv.Itoa(data.EntityId)
	if data.EntityId == 0 {
		if scope, ok := data.NewValues["scope"].(string); ok {
			entityId = scope
		}
	}
	return Record{
		Id:         uuid.New(),
		ActorId:    data.ActorId,
		Action:     string(e.Type),
		EntityType: data.EntityType,
		EntityId:   entityId,
		OldValues:  data.OldValues,
		NewValues:  data.NewValues,
		CreatedAt:  now,
	}
}

// Subscribe writes every audited event to sink. A failed write is logged and dropped; the
// change it describes is already committed.
func Subscribe(bus *event_bus.EventBus, sink Sink, clock utils.Clock) (unsubscribe func()) {
	unsubscribes := make([]func(), 0, len(event_bus.AuditedEventTypes))
	for _, eventType := range event_bus.AuditedEventTypes {
		unsubscribes = append(unsubscribes, event_bus.SubscribeTyped(bus, eventType, func(e event_bus.EventT[event_bus.EntityChanged]) error {
			record := newRecord(e, clock.Now())
			if err := sink.Write(e.Context(), record); err != nil {
				log.Warnf("audit: failed to record %s of %s %s: %v", record.Action, record.EntityType, record.EntityId, err)
			}
			return nil
		}))
	}
	return func() {
		for _, u := range unsubscribes {
			u()
		}
	}
}
