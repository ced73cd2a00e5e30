// internal/dataquery/postgres.go
package dataquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/models"
)

// PostgresQuerier aggregates metric columns straight in SQL. Identifier
// names come from registry data products, never from request payloads, but
// they are still quoted rather than interpolated raw.
type PostgresQuerier struct {
	db        *sql.DB
	tsColumn  string
	queryTime time.Duration
}

func NewPostgresQuerier(db *sql.DB, timestampColumn string, timeout time.Duration) *PostgresQuerier {
	if timestampColumn == "" {
		timestampColumn = "recorded_at"
	}
	return &PostgresQuerier{
		db:        db,
		tsColumn:  timestampColumn,
		queryTime: timeout,
	}
}

func (q *PostgresQuerier) GroupedTotals(ctx context.Context, table, dimension, metric string, window models.TimeWindow) ([]GroupTotal, error) {
	queryCtx, cancel := q.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT %s, COALESCE(SUM(%s), 0) FROM %s WHERE %s >= $1 AND %s < $2 GROUP BY %s",
		pq.QuoteIdentifier(dimension),
		pq.QuoteIdentifier(metric),
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(q.tsColumn),
		pq.QuoteIdentifier(q.tsColumn),
		pq.QuoteIdentifier(dimension),
	)

	rows, err := q.db.QueryContext(queryCtx, query, window.Start, window.End)
	if err != nil {
		return nil, q.classify(table, metric, err)
	}
	defer rows.Close()

	var out []GroupTotal
	for rows.Next() {
		var gt GroupTotal
		if err := rows.Scan(&gt.Key, &gt.Total); err != nil {
			return nil, stderrors.NewMetricQueryFailedError(metric, err)
		}
		out = append(out, gt)
	}
	if err := rows.Err(); err != nil {
		return nil, q.classify(table, metric, err)
	}
	return out, nil
}

func (q *PostgresQuerier) Total(ctx context.Context, table, metric string, window models.TimeWindow) (float64, error) {
	queryCtx, cancel := q.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT COALESCE(SUM(%s), 0) FROM %s WHERE %s >= $1 AND %s < $2",
		pq.QuoteIdentifier(metric),
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(q.tsColumn),
		pq.QuoteIdentifier(q.tsColumn),
	)

	var total float64
	if err := q.db.QueryRowContext(queryCtx, query, window.Start, window.End).Scan(&total); err != nil {
		return 0, q.classify(table, metric, err)
	}
	return total, nil
}

func (q *PostgresQuerier) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.queryTime <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, q.queryTime)
}

func (q *PostgresQuerier) classify(table, metric string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return stderrors.NewMetricQueryTimeoutError(fmt.Sprintf("%s.%s", table, metric))
	}
	return stderrors.NewMetricQueryFailedError(fmt.Sprintf("%s.%s", table, metric), err)
}
