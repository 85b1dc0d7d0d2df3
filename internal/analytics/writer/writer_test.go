package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{OrderEventsTable: "order_events"}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&fakeInserter{}, Config{OrderEventsTable: " "}); err == nil {
		t.Fatal("expected error when table missing")
	}

	w, err := New(&fakeInserter{}, Config{OrderEventsTable: "order_events", BaseBackoff: time.Second, MaxBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	if w.cfg.MaxBackoff != time.Second || w.cfg.Attempts != defaultAttempts {
		t.Fatalf("unexpected defaults %+v", w.cfg)
	}
}

func TestInsertRetriesQuotaErrors(t *testing.T) {
	fake := &fakeInserter{responses: []error{
		&googleapi.Error{Code: http.StatusTooManyRequests},
		status.Error(codes.Unavailable, "backend restarting"),
		nil,
	}}
	w := newTestWriter(t, fake)

	if err := w.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "evt-1", EventType: "order_created"}); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected three insert attempts, got %d", len(fake.calls))
	}
	for _, call := range fake.calls {
		if call.table != "order_events" || call.rowCount != 1 {
			t.Fatalf("unexpected insert %+v", call)
		}
	}
}

func TestInsertGivesUpAfterAttempts(t *testing.T) {
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake := &fakeInserter{responses: []error{unavailable, unavailable, unavailable, nil}}
	w := newTestWriter(t, fake)

	err := w.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "evt-1"})
	if !errors.Is(err, unavailable) {
		t.Fatalf("expected last insert error, got %v", err)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(fake.calls))
	}
}

func TestInsertStopsOnSchemaError(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	w := newTestWriter(t, fake)

	if err := w.InsertOrderFact(context.Background(), types.OrderFactRow{EventID: "evt-1"}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestTransient(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"plain":          {errors.New("boom"), false},
		"http 429":       {&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		"http 404":       {&googleapi.Error{Code: http.StatusNotFound}, false},
		"grpc transient": {status.Error(codes.Unavailable, "down"), true},
		"grpc invalid":   {status.Error(codes.InvalidArgument, "bad"), false},
		"multi all transient": {cbigquery.MultiError{
			&googleapi.Error{Code: http.StatusBadGateway},
			status.Error(codes.DeadlineExceeded, "slow"),
		}, true},
		"multi mixed": {cbigquery.MultiError{
			&googleapi.Error{Code: http.StatusBadGateway},
			errors.New("schema mismatch"),
		}, false},
		"row errors": {cbigquery.PutMultiError{
			{RowIndex: 0, Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
		}, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := transient(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestPayloadJSON(t *testing.T) {
	nj, err := PayloadJSON(json.RawMessage(`{"order_id":"o-1"}`))
	if err != nil || !nj.Valid || nj.JSONVal != `{"order_id":"o-1"}` {
		t.Fatalf("expected payload passed through, got %+v (%v)", nj, err)
	}
	for _, empty := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		if nj, err := PayloadJSON(empty); err != nil || nj.Valid {
			t.Fatalf("expected NULL for %q, got %+v (%v)", empty, nj, err)
		}
	}
	if _, err := PayloadJSON(json.RawMessage(`{"order_id":`)); err == nil {
		t.Fatal("expected invalid json to be rejected")
	}
}

func TestOrderFactRowSave(t *testing.T) {
	amount := decimal.RequireFromString("118.00")
	ret := "r-1"
	row := &types.OrderFactRow{
		EventID:    "evt-9",
		EventType:  "return_requested",
		OccurredAt: time.Date(2026, 6, 10, 12, 0, 0, 0, time.FixedZone("COT", -5*3600)),
		OrderID:    "o-1",
		ReturnID:   &ret,
		Amount:     &amount,
	}
	values, insertID, err := row.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if insertID != "evt-9" {
		t.Fatalf("expected event id as insert id, got %s", insertID)
	}
	if values["return_id"] != "r-1" || values["user_id"] != nil {
		t.Fatalf("unexpected nullable values %v %v", values["return_id"], values["user_id"])
	}
	if values["occurred_at"].(time.Time).Location() != time.UTC {
		t.Fatal("expected occurred_at in UTC")
	}
	if values["amount"] == nil {
		t.Fatal("expected amount")
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []cbigquery.ValueSaver) error {
	var err error
	if i := len(f.calls); i < len(f.responses) {
		err = f.responses[i]
	}
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	return err
}

func newTestWriter(t *testing.T, fake *fakeInserter) *OrderFacts {
	t.Helper()
	w, err := New(fake, Config{OrderEventsTable: "order_events", BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	return w
}
