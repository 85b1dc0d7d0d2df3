package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	ordersTopic    = "sf-orders"
	inventoryTopic = "sf-inventory"
)

func TestDrainPublishesWithRoutingAttributes(t *testing.T) {
	orderID, productID := uuid.New(), uuid.New()
	rows := &fakeRows{events: []models.OutboxEvent{
		orderCreatedRow(t, orderID, 0),
		lowStockRow(t, productID, 0),
	}}
	send := &fakeSender{}
	pub := newTestPublisher(t, rows, &fakeDLQ{}, send)

	claimed, err := pub.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if claimed != 2 {
		t.Fatalf("expected 2 claimed rows, got %d", claimed)
	}
	if len(rows.published) != 2 {
		t.Fatalf("expected both rows published, got %d", len(rows.published))
	}
	if len(send.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(send.sent))
	}

	order := send.sent[0]
	if order.topic != ordersTopic {
		t.Fatalf("order event went to %q", order.topic)
	}
	if order.msg.OrderingKey != orderID.String() {
		t.Fatalf("order event ordering key %q", order.msg.OrderingKey)
	}
	if got := order.msg.Attributes["event_type"]; got != string(enums.EventOrderCreated) {
		t.Fatalf("event_type attribute %q", got)
	}
	if got := order.msg.Attributes["aggregate_id"]; got != orderID.String() {
		t.Fatalf("aggregate_id attribute %q", got)
	}
	if order.msg.Attributes["event_id"] == "" {
		t.Fatalf("event_id attribute missing")
	}

	alert := send.sent[1]
	if alert.topic != inventoryTopic {
		t.Fatalf("low stock event went to %q", alert.topic)
	}
	if alert.msg.OrderingKey != "" {
		t.Fatalf("low stock events are not sequenced, got key %q", alert.msg.OrderingKey)
	}

	if got := testutil.ToFloat64(pub.outcomes.WithLabelValues(string(enums.EventLowStock), string(outcomePublished))); got != 1 {
		t.Fatalf("published counter for low_stock = %v", got)
	}
}

func TestDrainHoldsLaterEventsOfFailedOrder(t *testing.T) {
	stuck, other := uuid.New(), uuid.New()
	first := orderCreatedRow(t, stuck, 0)
	second := orderStatusRow(t, stuck, 0)
	rows := &fakeRows{events: []models.OutboxEvent{first, second, orderCreatedRow(t, other, 0)}}
	send := &fakeSender{failFor: map[string]error{stuck.String(): errors.New("deadline exceeded")}}
	pub := newTestPublisher(t, rows, &fakeDLQ{}, send)

	if _, err := pub.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(rows.failed) != 1 || rows.failed[0] != first.ID {
		t.Fatalf("expected only the first event of the stuck order to fail, got %v", rows.failed)
	}
	if len(rows.published) != 1 {
		t.Fatalf("expected the unrelated order to publish, got %d", len(rows.published))
	}
	for _, s := range send.sent {
		if s.msg.Attributes["event_type"] == string(enums.EventOrderStatusChanged) {
			t.Fatalf("status change was sent ahead of its order_created event")
		}
	}
	if got := testutil.ToFloat64(pub.outcomes.WithLabelValues(string(enums.EventOrderStatusChanged), string(outcomeHeld))); got != 1 {
		t.Fatalf("held counter = %v", got)
	}
}

func TestDrainDoesNotHoldUnsequencedEvents(t *testing.T) {
	productID := uuid.New()
	first := lowStockRow(t, productID, 0)
	second := lotRegisteredRow(t, productID)
	rows := &fakeRows{events: []models.OutboxEvent{first, second}}
	send := &fakeSender{failTypes: map[enums.OutboxEventType]error{enums.EventLowStock: errors.New("unavailable")}}
	pub := newTestPublisher(t, rows, &fakeDLQ{}, send)

	if _, err := pub.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(rows.failed) != 1 || len(rows.published) != 1 || rows.published[0] != second.ID {
		t.Fatalf("expected lot event published despite alert failure, failed=%v published=%v", rows.failed, rows.published)
	}
}

func TestDrainDeadLettersPermanentFailures(t *testing.T) {
	orderID := uuid.New()
	row := orderCreatedRow(t, orderID, 0)
	rows := &fakeRows{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	send := &fakeSender{failFor: map[string]error{orderID.String(): registry.Permanent(errors.New("topic deleted"))}}
	pub := newTestPublisher(t, rows, dlq, send)

	if _, err := pub.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected dlq reason %s", entry.ErrorReason)
	}
	if entry.EventID != row.ID || entry.AttemptCount != 1 {
		t.Fatalf("unexpected dlq entry %+v", entry)
	}
	if len(rows.terminal) != 1 || len(rows.failed) != 0 {
		t.Fatalf("expected terminal mark only, terminal=%v failed=%v", rows.terminal, rows.failed)
	}
}

func TestDrainGivesUpOnAlertsEarly(t *testing.T) {
	productID, orderID := uuid.New(), uuid.New()
	alert := lowStockRow(t, productID, 2)
	order := orderCreatedRow(t, orderID, 2)
	rows := &fakeRows{events: []models.OutboxEvent{alert, order}}
	dlq := &fakeDLQ{}
	send := &fakeSender{failFor: map[string]error{
		productID.String(): errors.New("unavailable"),
		orderID.String():   errors.New("unavailable"),
	}}
	pub := newTestPublisher(t, rows, dlq, send)

	if _, err := pub.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].EventID != alert.ID {
		t.Fatalf("expected the low stock alert dead-lettered, got %+v", dlq.entries)
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts || dlq.entries[0].AttemptCount != 3 {
		t.Fatalf("unexpected dlq entry %+v", dlq.entries[0])
	}
	if len(rows.failed) != 1 || rows.failed[0] != order.ID {
		t.Fatalf("order event should stay retryable, failed=%v", rows.failed)
	}
}

func TestDrainDeadLettersRowsThatDoNotResolve(t *testing.T) {
	row := orderCreatedRow(t, uuid.New(), 0)
	row.Payload = json.RawMessage(`{"version":1,"eventId":"x"}`)
	rows := &fakeRows{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	send := &fakeSender{}
	pub := newTestPublisher(t, rows, dlq, send)

	if _, err := pub.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(send.sent) != 0 {
		t.Fatalf("malformed row must not be sent")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
}

func TestDrainRollsBackOnRepositoryError(t *testing.T) {
	rows := &fakeRows{
		events:     []models.OutboxEvent{orderCreatedRow(t, uuid.New(), 0)},
		publishErr: errors.New("connection reset"),
	}
	pub := newTestPublisher(t, rows, &fakeDLQ{}, &fakeSender{})

	if _, err := pub.drain(context.Background()); err == nil {
		t.Fatalf("expected drain to surface the repository error")
	}
}

func TestNewPublisherDefaultsAndRequirements(t *testing.T) {
	routes, err := registry.New(config.PubSubConfig{OrdersTopic: ordersTopic, InventoryTopic: inventoryTopic})
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	params := Params{
		Logger: logger.Nop(),
		Store:  &fakeStore{},
		Rows:   &fakeRows{},
		Router: routes,
		Sender: &fakeSender{},
	}
	if _, err := NewPublisher(params); err == nil {
		t.Fatalf("expected error without a dlq repository")
	}

	params.DLQ = &fakeDLQ{}
	params.Outbox = config.OutboxConfig{BatchSize: 7, PollIntervalMS: 20}
	pub, err := NewPublisher(params)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if pub.batchSize != 7 || pub.pollEvery != 20*time.Millisecond || pub.maxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected settings batch=%d poll=%s attempts=%d", pub.batchSize, pub.pollEvery, pub.maxAttempts)
	}
}

func TestRunFailsWhenBrokerUnreachable(t *testing.T) {
	pub := newTestPublisher(t, &fakeRows{}, &fakeDLQ{}, &fakeSender{pingErr: errors.New("permission denied")})
	if err := pub.Run(context.Background()); err == nil {
		t.Fatalf("expected ping failure to stop Run")
	}
}

func newTestPublisher(t *testing.T, rows *fakeRows, dlq *fakeDLQ, send *fakeSender) *Publisher {
	t.Helper()
	routes, err := registry.New(config.PubSubConfig{OrdersTopic: ordersTopic, InventoryTopic: inventoryTopic})
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	pub, err := NewPublisher(Params{
		Logger:     logger.Nop(),
		Store:      &fakeStore{},
		Rows:       rows,
		DLQ:        dlq,
		Router:     routes,
		Sender:     send,
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return pub
}

func envelope(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, aggType enums.OutboxAggregateType, aggID uuid.UUID, attempts int, data any) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggType,
		AggregateID:   aggID,
		Payload:       envelope(t, data),
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func orderCreatedRow(t *testing.T, orderID uuid.UUID, attempts int) models.OutboxEvent {
	return outboxRow(t, enums.EventOrderCreated, enums.AggregateOrder, orderID, attempts,
		payloads.OrderCreatedEvent{OrderID: orderID, UserID: uuid.New()})
}

func orderStatusRow(t *testing.T, orderID uuid.UUID, attempts int) models.OutboxEvent {
	return outboxRow(t, enums.EventOrderStatusChanged, enums.AggregateOrder, orderID, attempts,
		payloads.OrderStatusChangedEvent{OrderID: orderID, PreviousStatus: enums.OrderStatusPending, Status: enums.OrderStatusShipped})
}

func lowStockRow(t *testing.T, productID uuid.UUID, attempts int) models.OutboxEvent {
	return outboxRow(t, enums.EventLowStock, enums.AggregateProduct, productID, attempts,
		payloads.LowStockEvent{ProductID: productID, ProductName: "Blue mug", Stock: 2, MinStock: 10})
}

func lotRegisteredRow(t *testing.T, productID uuid.UUID) models.OutboxEvent {
	return outboxRow(t, enums.EventLotRegistered, enums.AggregateProduct, productID, 0,
		payloads.LotRegisteredEvent{ProductID: productID, Quantity: 20, NewStock: 22, UserID: uuid.New()})
}

type fakeStore struct {
	pingErr error
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRows struct {
	events     []models.OutboxEvent
	publishErr error
	published  []uuid.UUID
	failed     []uuid.UUID
	terminal   []uuid.UUID
}

func (r *fakeRows) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(r.events) > limit {
		return r.events[:limit], nil
	}
	return r.events, nil
}

func (r *fakeRows) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRows) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *fakeRows) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	r.terminal = append(r.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (d *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	d.entries = append(d.entries, entry)
	return nil
}

type sentMessage struct {
	topic string
	msg   *gcppubsub.Message
}

// fakeSender fails messages by aggregate id or by event type.
type fakeSender struct {
	pingErr   error
	failFor   map[string]error
	failTypes map[enums.OutboxEventType]error
	sent      []sentMessage
}

func (s *fakeSender) Ping(context.Context) error { return s.pingErr }

func (s *fakeSender) Send(_ context.Context, topic string, msg *gcppubsub.Message) error {
	if err, ok := s.failFor[msg.Attributes["aggregate_id"]]; ok {
		return err
	}
	if err, ok := s.failTypes[enums.OutboxEventType(msg.Attributes["event_type"])]; ok {
		return err
	}
	s.sent = append(s.sent, sentMessage{topic: topic, msg: msg})
	return nil
}
