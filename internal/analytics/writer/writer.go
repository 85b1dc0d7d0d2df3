// Package writer stores analytics fact rows in BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
)

const (
	defaultAttempts    = 3
	defaultBaseBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

type Config struct {
	OrderEventsTable string
	// Attempts is the total number of inserts tried per row.
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type inserter interface {
	InsertRows(ctx context.Context, table string, rows []cbigquery.ValueSaver) error
}

// OrderFacts writes one order_events row per order or return event. Rows are
// written before the Pub/Sub message is acked, so nothing is buffered.
type OrderFacts struct {
	client inserter
	table  string
	cfg    Config
}

func New(client inserter, cfg Config) (*OrderFacts, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.OrderEventsTable)
	if table == "" {
		return nil, errors.New("order events table is required")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	cfg.MaxBackoff = max(cfg.MaxBackoff, cfg.BaseBackoff)
	return &OrderFacts{client: client, table: table, cfg: cfg}, nil
}

// InsertOrderFact streams row with capped exponential backoff on quota and
// availability errors. The event id is the insert id, so a retried insert
// does not duplicate the row.
func (w *OrderFacts) InsertOrderFact(ctx context.Context, row types.OrderFactRow) error {
	backoff := retry.WithCappedDuration(w.cfg.MaxBackoff, retry.NewExponential(w.cfg.BaseBackoff))
	backoff = retry.WithMaxRetries(uint64(w.cfg.Attempts-1), backoff)

	rows := []cbigquery.ValueSaver{&row}
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s row for %s: %w", w.table, row.EventType, err)
	}
	return nil
}

// transient reports whether every part of err is worth another insert.
func transient(err error) bool {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return len(multi) > 0 && allTransient(multi)
	}

	var rowErrs cbigquery.PutMultiError
	if errors.As(err, &rowErrs) {
		if len(rowErrs) == 0 {
			return false
		}
		for _, rowErr := range rowErrs {
			if !transient(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient(errs []error) bool {
	for _, e := range errs {
		if !transient(e) {
			return false
		}
	}
	return true
}

// PayloadJSON stores an event's data section in a JSON column. Empty data
// becomes NULL.
func PayloadJSON(raw json.RawMessage) (cbigquery.NullJSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return cbigquery.NullJSON{}, nil
	}
	if !json.Valid(raw) {
		return cbigquery.NullJSON{}, errors.New("payload is not valid json")
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
