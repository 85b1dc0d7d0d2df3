package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
)

// OrderFactRow mirrors the order_events BigQuery table. One row is written
// per order or return event.
type OrderFactRow struct {
	EventID        string
	EventType      string
	OccurredAt     time.Time
	OrderID        string
	ReturnID       *string
	UserID         *string
	Status         *string
	PreviousStatus *string
	PaymentMethod  *string
	Amount         *decimal.Decimal
	LineCount      *int64
	SkippedCount   *int64
	StockFailures  *int64
	Defective      *bool
	Payload        cbigquery.NullJSON
}

var _ cbigquery.ValueSaver = (*OrderFactRow)(nil)

// Save implements bigquery.ValueSaver. The event id doubles as insert id so
// redelivered events are deduplicated by the streaming API.
func (r *OrderFactRow) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"event_id":        r.EventID,
		"event_type":      r.EventType,
		"occurred_at":     r.OccurredAt.UTC(),
		"order_id":        r.OrderID,
		"return_id":       nullable(r.ReturnID),
		"user_id":         nullable(r.UserID),
		"status":          nullable(r.Status),
		"previous_status": nullable(r.PreviousStatus),
		"payment_method":  nullable(r.PaymentMethod),
		"line_count":      nullable(r.LineCount),
		"skipped_count":   nullable(r.SkippedCount),
		"stock_failures":  nullable(r.StockFailures),
		"defective":       nullable(r.Defective),
		"payload":         r.Payload,
	}
	if r.Amount != nil {
		row["amount"] = r.Amount.Rat()
	} else {
		row["amount"] = nil
	}
	return row, r.EventID, nil
}

func nullable[T any](v *T) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}
