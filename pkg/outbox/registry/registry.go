// Package registry routes storefront outbox events to Pub/Sub topics and
// decodes their payloads before publication.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Alerts are rebuilt by the cron jobs on their next run, so the publisher
// gives up on them early.
const alertMaxAttempts = 3

type subjectPayload interface {
	Subject() uuid.UUID
}

// Route describes where one event type goes and how it is delivered.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	// MaxAttempts caps publish attempts for the event type. Zero defers to
	// the publisher-wide limit.
	MaxAttempts int
	// Sequenced events of the same aggregate must reach subscribers in the
	// order they were written.
	Sequenced bool

	decode func(json.RawMessage) (subjectPayload, error)
}

// Resolved is an outbox row that passed validation.
type Resolved struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Table is the set of routes known to the publisher.
type Table struct {
	routes map[enums.OutboxEventType]Route
}

func decodeAs[T subjectPayload](raw json.RawMessage) (subjectPayload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// New builds the routing table. Order and return events share the orders
// topic and keep per-aggregate ordering; catalog and stock events go to the
// inventory topic.
func New(cfg config.PubSubConfig) (*Table, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	if cfg.InventoryTopic == "" {
		return nil, errors.New("inventory topic is required")
	}
	orders, inventory := cfg.OrdersTopic, cfg.InventoryTopic

	t := &Table{routes: map[enums.OutboxEventType]Route{}}
	for _, r := range []Route{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, Topic: orders, Sequenced: true,
			decode: decodeAs[payloads.OrderCreatedEvent]},
		{EventType: enums.EventOrderStatusChanged, AggregateType: enums.AggregateOrder, Topic: orders, Sequenced: true,
			decode: decodeAs[payloads.OrderStatusChangedEvent]},
		{EventType: enums.EventReturnRequested, AggregateType: enums.AggregateReturn, Topic: orders, Sequenced: true,
			decode: decodeAs[payloads.ReturnRequestedEvent]},
		{EventType: enums.EventReturnStatusChanged, AggregateType: enums.AggregateReturn, Topic: orders, Sequenced: true,
			decode: decodeAs[payloads.ReturnStatusChangedEvent]},
		{EventType: enums.EventPromotionCreated, AggregateType: enums.AggregatePromotion, Topic: inventory,
			decode: decodeAs[payloads.PromotionCreatedEvent]},
		{EventType: enums.EventPromotionExpired, AggregateType: enums.AggregatePromotion, Topic: inventory, MaxAttempts: alertMaxAttempts,
			decode: decodeAs[payloads.PromotionExpiredEvent]},
		{EventType: enums.EventLotRegistered, AggregateType: enums.AggregateProduct, Topic: inventory,
			decode: decodeAs[payloads.LotRegisteredEvent]},
		{EventType: enums.EventLowStock, AggregateType: enums.AggregateProduct, Topic: inventory, MaxAttempts: alertMaxAttempts,
			decode: decodeAs[payloads.LowStockEvent]},
	} {
		t.routes[r.EventType] = r
	}
	return t, nil
}

// Topics returns the distinct topics in a stable order.
func (t *Table) Topics() []string {
	set := map[string]struct{}{}
	for _, r := range t.routes {
		set[r.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Route looks up the route of an event type.
func (t *Table) Route(eventType enums.OutboxEventType) (Route, bool) {
	r, ok := t.routes[eventType]
	return r, ok
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is permanent: retrying a malformed row cannot fix it.
func (t *Table) Resolve(event models.OutboxEvent) (*Resolved, error) {
	route, ok := t.routes[event.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %s", event.EventType))
	}
	if route.AggregateType != event.AggregateType {
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row says %s", event.EventType, route.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Permanent(fmt.Errorf("%s row has no aggregate id", event.EventType))
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope carries no data", event.EventType))
	}
	payload, err := route.decode(data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s: %w", event.EventType, err))
	}
	if subject := payload.Subject(); subject != event.AggregateID {
		return nil, Permanent(fmt.Errorf("%s payload is about %s, row aggregate is %s", event.EventType, subject, event.AggregateID))
	}

	return &Resolved{Route: route, Envelope: env, Payload: payload}, nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
