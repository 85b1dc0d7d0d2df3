package main

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type outcome string

const (
	outcomePublished    outcome = "published"
	outcomeRetry        outcome = "retry"
	outcomeHeld         outcome = "held"
	outcomeDeadLettered outcome = "dead_lettered"
)

// batch tracks aggregates whose sequenced events must wait for a later pass.
type batch struct {
	blocked map[uuid.UUID]struct{}
}

// drain claims one batch of rows and settles each of them inside the same
// transaction, so a crash leaves rows claimable again.
func (p *Publisher) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := p.store.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := p.rows.FetchUnpublishedForPublish(tx, p.batchSize, p.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows)

		b := &batch{blocked: map[uuid.UUID]struct{}{}}
		for _, row := range rows {
			if err := p.deliver(ctx, tx, b, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (p *Publisher) deliver(ctx context.Context, tx *gorm.DB, b *batch, row models.OutboxEvent) error {
	ctx = p.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   string(row.EventType),
		"aggregate_id": row.AggregateID.String(),
		"attempt":      row.AttemptCount + 1,
	})

	resolved, err := p.router.Resolve(row)
	if err != nil {
		return p.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	route := resolved.Route

	if _, held := b.blocked[row.AggregateID]; held && route.Sequenced {
		p.count(row, outcomeHeld)
		p.logg.Debug(ctx, "outbox.held_behind_failed_event")
		return nil
	}

	sendErr := p.sender.Send(ctx, route.Topic, message(row, resolved))
	if sendErr == nil {
		if err := p.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return err
		}
		p.count(row, outcomePublished)
		return nil
	}

	if registry.IsPermanent(sendErr) {
		return p.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr)
	}
	if row.AttemptCount+1 >= p.attemptLimit(route) {
		return p.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, sendErr)
	}

	if route.Sequenced {
		b.blocked[row.AggregateID] = struct{}{}
	}
	p.logg.WarnErr(ctx, "outbox.publish_failed", sendErr)
	if err := p.rows.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return err
	}
	p.count(row, outcomeRetry)
	return nil
}

func (p *Publisher) attemptLimit(route registry.Route) int {
	if route.MaxAttempts > 0 {
		return min(route.MaxAttempts, p.maxAttempts)
	}
	return p.maxAttempts
}

func (p *Publisher) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	msg := cause.Error()
	attempts := row.AttemptCount + 1

	if err := p.dlq.InsertTx(tx, models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  attempts,
	}); err != nil {
		return err
	}
	if err := p.rows.MarkTerminalTx(tx, row.ID, cause, attempts); err != nil {
		return err
	}
	p.count(row, outcomeDeadLettered)
	p.logg.Error(ctx, "outbox.dead_lettered", cause)
	return nil
}

func (p *Publisher) count(row models.OutboxEvent, o outcome) {
	p.outcomes.WithLabelValues(string(row.EventType), string(o)).Inc()
}

// message carries the stored envelope as data. Sequenced events are keyed by
// their aggregate so subscribers see one order's history in order.
func message(row models.OutboxEvent, resolved *registry.Resolved) *gcppubsub.Message {
	msg := &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if resolved.Route.Sequenced {
		msg.OrderingKey = row.AggregateID.String()
	}
	return msg
}
