package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollEvery   = 500 * time.Millisecond
	defaultMaxAttempts = 10
	errorBackoffLimit  = 10 * time.Second
	maxJitter          = 250 * time.Millisecond
)

type store interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRows interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, attempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type router interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// sender delivers one message and blocks until Pub/Sub acknowledges it.
type sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type Params struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	Store      store
	Rows       outboxRows
	DLQ        deadLetters
	Router     router
	Sender     sender
	Registerer prometheus.Registerer
}

// Publisher moves committed outbox rows to Pub/Sub. Order and return events
// of one aggregate leave in the order they were written; rows that cannot be
// delivered end up in outbox_dlq.
type Publisher struct {
	logg        *logger.Logger
	store       store
	rows        outboxRows
	dlq         deadLetters
	router      router
	sender      sender
	batchSize   int
	maxAttempts int
	pollEvery   time.Duration
	outcomes    *prometheus.CounterVec
	rnd         *rand.Rand
}

func NewPublisher(p Params) (*Publisher, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.Store == nil:
		return nil, errors.New("database client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Router == nil:
		return nil, errors.New("event routes are required")
	case p.Sender == nil:
		return nil, errors.New("pubsub sender is required")
	}

	outcomes, err := registerOutcomes(p.Registerer)
	if err != nil {
		return nil, err
	}

	pub := &Publisher{
		logg:        p.Logger,
		store:       p.Store,
		rows:        p.Rows,
		dlq:         p.DLQ,
		router:      p.Router,
		sender:      p.Sender,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		pollEvery:   defaultPollEvery,
		outcomes:    outcomes,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if p.Outbox.BatchSize > 0 {
		pub.batchSize = p.Outbox.BatchSize
	}
	if p.Outbox.MaxAttempts > 0 {
		pub.maxAttempts = p.Outbox.MaxAttempts
	}
	if p.Outbox.PollIntervalMS > 0 {
		pub.pollEvery = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	return pub, nil
}

func registerOutcomes(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_publish_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	if reg == nil {
		return c, nil
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, fmt.Errorf("register publisher metrics: %w", err)
	}
	return c, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; database or broker errors back off exponentially.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := p.sender.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := p.pollEvery
	for ctx.Err() == nil {
		claimed, err := p.drain(ctx)
		switch {
		case err != nil:
			p.logg.Error(ctx, "outbox.batch_failed", err)
			wait = min(wait*2, errorBackoffLimit)
		case claimed == p.batchSize:
			wait = p.pollEvery
			continue
		default:
			wait = p.pollEvery
		}
		if err := p.pause(ctx, wait); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (p *Publisher) pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d + time.Duration(p.rnd.Int63n(int64(maxJitter))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
