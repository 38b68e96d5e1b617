package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

const (
	metadataTimeout = 10 * time.Second
	// streaming inserts reject requests above ~10MB; settlement rows are small.
	maxRowsPerPut  = 500
	partitionField = "occurred_at"
)

var errNotInitialized = errors.New("bigquery client not initialized")

// Client streams settlement facts into one dataset. Tables are resolved by
// name relative to that dataset.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	logg    *logger.Logger
}

// NewClient connects to the configured project and fails fast when the
// dataset is missing. Tables are created on demand by EnsureTable.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project, dataset := strings.TrimSpace(gcp.ProjectID), strings.TrimSpace(cfg.Dataset)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	if dataset == "" {
		return nil, errors.New("bigquery dataset is required")
	}

	bq, err := bigquery.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), logg: logg}
	if err := c.check(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", dataset), "bigquery client ready")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// check confirms the dataset and each named table answer a metadata call.
func (c *Client) check(ctx context.Context, tables ...string) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe(err, "dataset", c.dataset.DatasetID)
	}
	for _, name := range tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return describe(err, "table", name)
		}
	}
	return nil
}

// EnsureTable creates a day-partitioned table with schema when it does not
// exist yet. An existing table is left untouched.
func (c *Client) EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	ref := c.dataset.Table(table)
	if _, err := ref.Metadata(ctx); err == nil || !isNotFound(err) {
		return err
	}
	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField},
	}
	if err := ref.Create(ctx, meta); err != nil && !isConflict(err) {
		return fmt.Errorf("create table %q: %w", table, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "table", table), "bigquery table created")
	}
	return nil
}

// Ping reports whether the dataset is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.check(ctx)
}

// InsertRows streams rows into table in chunks. Rows that BigQuery rejects
// are reported with their index in the original slice.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}
	inserter := c.dataset.Table(table).Inserter()
	for start := 0; start < len(rows); start += maxRowsPerPut {
		end := min(start+maxRowsPerPut, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return rowFailure(err, table, start)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func rowFailure(err error, table string, offset int) error {
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) || len(multi) == 0 {
		return fmt.Errorf("insert into %q: %w", table, err)
	}
	first := multi[0]
	return fmt.Errorf("insert into %q: %d row(s) rejected, first at index %d: %w", table, len(multi), offset+first.RowIndex, first.Errors)
}

func describe(err error, kind, name string) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

func isNotFound(err error) bool { return apiStatus(err) == http.StatusNotFound }
func isConflict(err error) bool { return apiStatus(err) == http.StatusConflict }

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
