package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// StartIngestionRun inserts an ingestion_runs row with status=RUNNING.
func (w *Warehouse) StartIngestionRun(ctx context.Context, runID string, sourceCount int) error {
	q := w.client.Query(fmt.Sprintf(`
		INSERT %s.%s (run_id, started_ts, source_count, bronze_rows, status)
		VALUES (@run_id, @started_ts, @source_count, 0, @status)
	`, w.dataset, IngestionRunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "source_count", Value: sourceCount},
		{Name: "status", Value: "RUNNING"},
	}
	return w.runQuery(ctx, q, "StartIngestionRun")
}

// MarkIngestionRunSucceeded finalizes a run row with status=SUCCESS and the
// bronze row and violation counts.
func (w *Warehouse) MarkIngestionRunSucceeded(ctx context.Context, runID string, bronzeRows, violations int) error {
	q := w.client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    bronze_rows = @bronze_rows,
		    violations = @violations,
		    error_message = ""
		WHERE run_id = @run_id
	`, w.dataset, IngestionRunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "SUCCESS"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "bronze_rows", Value: bronzeRows},
		{Name: "violations", Value: violations},
		{Name: "run_id", Value: runID},
	}
	return w.runQuery(ctx, q, "MarkIngestionRunSucceeded")
}

// MarkIngestionRunFailed finalizes a run row with status=FAILED and the
// error message, truncated to fit the column.
func (w *Warehouse) MarkIngestionRunFailed(ctx context.Context, runID string, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := w.client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, w.dataset, IngestionRunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "FAILED"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}
	return w.runQuery(ctx, q, "MarkIngestionRunFailed")
}

// ListIngestionRuns returns the most recent runs, newest first.
func (w *Warehouse) ListIngestionRuns(ctx context.Context, limit int) ([]*IngestionRunRow, error) {
	q := w.client.Query(fmt.Sprintf(`
		SELECT run_id, started_ts, finished_ts, source_count, bronze_rows, violations, status, error_message
		FROM %s.%s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, w.dataset, IngestionRunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListIngestionRuns: query read: %w", err)
	}

	var rows []*IngestionRunRow
	for {
		var r IngestionRunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListIngestionRuns: iterating: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

func (w *Warehouse) runQuery(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}
