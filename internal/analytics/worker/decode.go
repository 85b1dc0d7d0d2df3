package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// decode turns a message sent by the outbox publisher into an envelope. The
// data is the stored outbox envelope; routing fields come from attributes.
func decode(msg *gcppubsub.Message) (types.Envelope, uuid.UUID, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, aggregateType, err := enums.ParseOutboxEvent(attribute(msg, "event_type"), attribute(msg, "aggregate_type"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, err
	}
	aggregateID, err := uuid.Parse(attribute(msg, "aggregate_id"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("aggregate_id: %w", err)
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = attribute(msg, "event_id")
	}
	if rawID == "" {
		return types.Envelope{}, uuid.Nil, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("event_id: %w", err)
	}

	return types.Envelope{
		EventID:       eventID.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID.String(),
		OccurredAt:    occurredAt(stored, msg).UTC(),
		Payload:       stored.Data,
	}, eventID, nil
}

// occurredAt prefers the domain timestamp, then the outbox row's creation
// time, then the broker's publish time.
func occurredAt(stored outbox.PayloadEnvelope, msg *gcppubsub.Message) time.Time {
	if !stored.OccurredAt.IsZero() {
		return stored.OccurredAt
	}
	if created, err := time.Parse(time.RFC3339Nano, attribute(msg, "created_at")); err == nil {
		return created
	}
	return msg.PublishTime
}

func attribute(msg *gcppubsub.Message, name string) string {
	return strings.TrimSpace(msg.Attributes[name])
}
