package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregateReturn    OutboxAggregateType = "return"
	AggregatePromotion OutboxAggregateType = "promotion"
	AggregateProduct   OutboxAggregateType = "product"
)

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventReturnRequested     OutboxEventType = "return_requested"
	EventReturnStatusChanged OutboxEventType = "return_status_changed"
	EventPromotionCreated    OutboxEventType = "promotion_created"
	EventPromotionExpired    OutboxEventType = "promotion_expired"
	EventLotRegistered       OutboxEventType = "lot_registered"
	EventLowStock            OutboxEventType = "low_stock"
)

// Every event belongs to exactly one aggregate; its id is the ordering key.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:        AggregateOrder,
	EventOrderStatusChanged:  AggregateOrder,
	EventReturnRequested:     AggregateReturn,
	EventReturnStatusChanged: AggregateReturn,
	EventPromotionCreated:    AggregatePromotion,
	EventPromotionExpired:    AggregatePromotion,
	EventLotRegistered:       AggregateProduct,
	EventLowStock:            AggregateProduct,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate e is emitted for, or "" for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// ParseOutboxEvent reads an event type and aggregate type pair as carried in
// Pub/Sub attributes and rejects pairs that do not belong together.
func ParseOutboxEvent(eventType, aggregateType string) (OutboxEventType, OutboxAggregateType, error) {
	e := OutboxEventType(eventType)
	want, ok := eventAggregates[e]
	if !ok {
		return "", "", fmt.Errorf("invalid event type %q", eventType)
	}
	if OutboxAggregateType(aggregateType) != want {
		return "", "", fmt.Errorf("event %s belongs to %s aggregates, not %q", e, want, aggregateType)
	}
	return e, want, nil
}

// OutboxDLQErrorReason records why the publisher dead-lettered an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
