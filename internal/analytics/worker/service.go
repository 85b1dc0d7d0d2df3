// Package worker feeds order and return events from the analytics
// subscription into BigQuery.
package worker

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/analytics/router"
	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const consumerName = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type verdict bool

const (
	ack  verdict = true
	nack verdict = false
)

// Service acks malformed and untracked events, nacks transient failures and
// handles each event id once.
type Service struct {
	sub     receiver
	handler Handler
	claims  claimer
	metrics *metrics.WorkflowMetrics
	logg    *logger.Logger
}

// NewService wires the worker. m may be nil.
func NewService(sub receiver, handler Handler, claims claimer, m *metrics.WorkflowMetrics, logg *logger.Logger) (*Service, error) {
	switch {
	case sub == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{sub: sub, handler: handler, claims: claims, metrics: m, logg: logg}, nil
}

// Run receives until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.consume(ctx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) consume(ctx context.Context, msg *gcppubsub.Message) verdict {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, eventID, err := decode(msg)
	if err != nil {
		// Redelivery cannot fix a malformed message.
		s.logg.WarnErr(ctx, "analytics.malformed_message", err)
		s.metrics.IncAnalyticsEvent(attribute(msg, "event_type"), "malformed")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   string(env.EventType),
		"aggregate_id": env.AggregateID,
	})

	first, err := s.claims.Claim(ctx, consumerName, eventID)
	if err != nil {
		s.logg.Error(ctx, "analytics.claim_failed", err)
		return nack
	}
	if !first {
		s.logg.Debug(ctx, "analytics.duplicate_delivery")
		s.metrics.IncAnalyticsEvent(string(env.EventType), "duplicate")
		return ack
	}

	err = s.handler.Handle(ctx, env)
	switch {
	case err == nil:
		s.metrics.IncAnalyticsEvent(string(env.EventType), "handled")
		s.logg.Info(ctx, "analytics.event_recorded")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.metrics.IncAnalyticsEvent(string(env.EventType), "skipped")
		s.logg.Debug(ctx, "analytics.event_not_tracked")
		return ack
	}

	s.metrics.IncAnalyticsEvent(string(env.EventType), "failed")
	s.logg.Error(ctx, "analytics.handler_failed", err)
	if err := s.claims.Release(ctx, consumerName, eventID); err != nil {
		s.logg.WarnErr(ctx, "analytics.release_failed", err)
	}
	return nack
}
