package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultEventVersion = 1

type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter is what business services depend on to queue events inside their
// own transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit writes the event row using tx so it commits or rolls back with the
// surrounding business change.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := event.normalize(time.Now); err != nil {
		return err
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	id := uuid.New()
	payloadJSON, err := json.Marshal(PayloadEnvelope{
		Version:    event.Version,
		EventID:    id.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       payload,
	})
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
	}
	if err := s.repo.Insert(tx.WithContext(ctx), row); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       id.String(),
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox.event_queued")
	}
	return nil
}

// normalize fills the aggregate type from the event type and rejects events
// the publisher could not order: the aggregate id is the Pub/Sub ordering key.
func (e *DomainEvent) normalize(now func() time.Time) error {
	want := e.EventType.Aggregate()
	switch {
	case want == "":
		return fmt.Errorf("invalid event type %q", e.EventType)
	case e.AggregateType == "":
		e.AggregateType = want
	case e.AggregateType != want:
		return fmt.Errorf("event %s is emitted for %s aggregates, not %s", e.EventType, want, e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return fmt.Errorf("event %s needs an aggregate id", e.EventType)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now().UTC()
	}
	if e.Version == 0 {
		e.Version = defaultEventVersion
	}
	return nil
}

// EmitIfNotPending skips the insert when an unpublished event of the same type
// already exists for the aggregate.
func (s *Service) EmitIfNotPending(ctx context.Context, tx *gorm.DB, event DomainEvent) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	pending, err := s.repo.ExistsPendingTx(tx.WithContext(ctx), event.EventType, event.AggregateID)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}
	if err := s.Emit(ctx, tx, event); err != nil {
		return false, err
	}
	return true, nil
}
