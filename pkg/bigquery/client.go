// Package bigquery connects to the storefront analytics dataset.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

// OrderEventColumns are the order_events columns the analytics worker writes.
// The table may carry more.
var OrderEventColumns = []string{
	"event_id", "event_type", "occurred_at", "order_id", "return_id", "user_id",
	"status", "previous_status", "payment_method", "amount", "line_count",
	"skipped_count", "stock_failures", "defective", "payload",
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

type Client struct {
	client      *bigquery.Client
	dataset     *bigquery.Dataset
	orderEvents string
}

// NewClient connects to the analytics dataset and refuses to start when the
// order_events table is missing or lacks a column the worker writes.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	table := strings.TrimSpace(cfg.OrderEventsTable)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case table == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), orderEvents: table}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"table":   table,
		}), "bigquery client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// OrderEventsTable is the table order and return facts go to.
func (c *Client) OrderEventsTable() string {
	if c == nil {
		return ""
	}
	return c.orderEvents
}

// Ping checks the dataset and the order_events schema.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	meta, err := c.dataset.Table(c.orderEvents).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("table %q does not exist", c.orderEvents)
		}
		return fmt.Errorf("checking table %q: %w", c.orderEvents, err)
	}
	if missing := missingColumns(meta.Schema, OrderEventColumns); len(missing) > 0 {
		return fmt.Errorf("table %q is missing columns %s", c.orderEvents, strings.Join(missing, ", "))
	}
	return nil
}

func missingColumns(schema bigquery.Schema, want []string) []string {
	have := make([]string, 0, len(schema))
	for _, field := range schema {
		have = append(have, strings.ToLower(field.Name))
	}
	var missing []string
	for _, name := range want {
		if !slices.Contains(have, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// InsertRows streams rows into table. Rows that implement ValueSaver carry
// their own insert ids, which BigQuery uses to drop retried duplicates.
func (c *Client) InsertRows(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.dataset.Table(table).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
