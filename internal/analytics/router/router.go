package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/storefront-backend/internal/analytics/writer"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	InsertOrderFact(ctx context.Context, row types.OrderFactRow) error
}

type factBuilder interface {
	build(raw json.RawMessage) (types.OrderFactRow, error)
}

// fact decodes one payload type and maps it onto an order fact row.
type fact[P any] func(*P) types.OrderFactRow

func (f fact[P]) build(raw json.RawMessage) (types.OrderFactRow, error) {
	var payload P
	if err := json.Unmarshal(raw, &payload); err != nil {
		return types.OrderFactRow{}, err
	}
	return f(&payload), nil
}

// Router turns order and return lifecycle events into order_events rows.
// Inventory events are not analytics facts and come back unsupported.
type Router struct {
	facts  map[enums.OutboxEventType]factBuilder
	writer Writer
	logg   *logger.Logger
}

func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		facts: map[enums.OutboxEventType]factBuilder{
			enums.EventOrderCreated:        fact[payloads.OrderCreatedEvent](orderCreatedFact),
			enums.EventOrderStatusChanged:  fact[payloads.OrderStatusChangedEvent](orderStatusFact),
			enums.EventReturnRequested:     fact[payloads.ReturnRequestedEvent](returnRequestedFact),
			enums.EventReturnStatusChanged: fact[payloads.ReturnStatusChangedEvent](returnStatusFact),
		},
		writer: writer,
		logg:   logg,
	}, nil
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	builder, ok := r.facts[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if !envelope.HasPayload() {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}

	row, err := builder.build(envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	raw, err := analyticswriter.PayloadJSON(envelope.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", envelope.EventType, err)
	}
	row.EventID = envelope.EventID
	row.EventType = string(envelope.EventType)
	row.OccurredAt = envelope.OccurredAt
	row.Payload = raw

	fields := map[string]any{"event_type": envelope.EventType, "order_id": row.OrderID}
	if row.ReturnID != nil {
		fields["return_id"] = *row.ReturnID
	}
	if row.Status != nil {
		fields["status"] = *row.Status
	}
	ctx = r.logg.WithFields(ctx, fields)

	if err := r.writer.InsertOrderFact(ctx, row); err != nil {
		r.logg.Error(ctx, "analytics.fact_insert_failed", err)
		return err
	}
	r.logg.Debug(ctx, "analytics.fact_inserted")
	return nil
}
