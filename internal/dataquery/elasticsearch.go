// internal/dataquery/elasticsearch.go
package dataquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/models"
)

// maxDimensionBuckets caps the terms aggregation so a high-cardinality
// dimension cannot blow up a response.
const maxDimensionBuckets = 1000

// ElasticsearchQuerier aggregates metrics through terms/sum aggregations,
// treating the data product's table name as the index name.
type ElasticsearchQuerier struct {
	client    *elasticsearch.Client
	tsField   string
	queryTime time.Duration
}

func NewElasticsearchQuerier(client *elasticsearch.Client, timestampField string, timeout time.Duration) *ElasticsearchQuerier {
	if timestampField == "" {
		timestampField = "recorded_at"
	}
	return &ElasticsearchQuerier{
		client:    client,
		tsField:   timestampField,
		queryTime: timeout,
	}
}

type esAggResponse struct {
	Aggregations struct {
		ByKey struct {
			Buckets []struct {
				Key         interface{} `json:"key"`
				MetricTotal struct {
					Value float64 `json:"value"`
				} `json:"metric_total"`
			} `json:"buckets"`
		} `json:"by_key"`
		MetricTotal struct {
			Value float64 `json:"value"`
		} `json:"metric_total"`
	} `json:"aggregations"`
}

func (q *ElasticsearchQuerier) GroupedTotals(ctx context.Context, table, dimension, metric string, window models.TimeWindow) ([]GroupTotal, error) {
	body := map[string]interface{}{
		"size":  0,
		"query": q.rangeQuery(window),
		"aggs": map[string]interface{}{
			"by_key": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": dimension,
					"size":  maxDimensionBuckets,
				},
				"aggs": map[string]interface{}{
					"metric_total": map[string]interface{}{
						"sum": map[string]interface{}{"field": metric},
					},
				},
			},
		},
	}

	parsed, err := q.search(ctx, table, metric, body)
	if err != nil {
		return nil, err
	}

	out := make([]GroupTotal, 0, len(parsed.Aggregations.ByKey.Buckets))
	for _, bucket := range parsed.Aggregations.ByKey.Buckets {
		out = append(out, GroupTotal{
			Key:   fmt.Sprintf("%v", bucket.Key),
			Total: bucket.MetricTotal.Value,
		})
	}
	return out, nil
}

func (q *ElasticsearchQuerier) Total(ctx context.Context, table, metric string, window models.TimeWindow) (float64, error) {
	body := map[string]interface{}{
		"size":  0,
		"query": q.rangeQuery(window),
		"aggs": map[string]interface{}{
			"metric_total": map[string]interface{}{
				"sum": map[string]interface{}{"field": metric},
			},
		},
	}

	parsed, err := q.search(ctx, table, metric, body)
	if err != nil {
		return 0, err
	}
	return parsed.Aggregations.MetricTotal.Value, nil
}

func (q *ElasticsearchQuerier) rangeQuery(window models.TimeWindow) map[string]interface{} {
	return map[string]interface{}{
		"range": map[string]interface{}{
			q.tsField: map[string]interface{}{
				"gte": window.Start.Format(time.RFC3339),
				"lt":  window.End.Format(time.RFC3339),
			},
		},
	}
}

func (q *ElasticsearchQuerier) search(ctx context.Context, index, metric string, body map[string]interface{}) (*esAggResponse, error) {
	queryCtx := ctx
	if q.queryTime > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, q.queryTime)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, stderrors.NewMetricQueryFailedError(metric, err)
	}

	res, err := q.client.Search(
		q.client.Search.WithContext(queryCtx),
		q.client.Search.WithIndex(index),
		q.client.Search.WithBody(&buf),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, stderrors.NewMetricQueryTimeoutError(fmt.Sprintf("%s.%s", index, metric))
		}
		return nil, stderrors.NewMetricQueryFailedError(fmt.Sprintf("%s.%s", index, metric), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		payload, _ := io.ReadAll(res.Body)
		return nil, stderrors.NewMetricQueryFailedError(fmt.Sprintf("%s.%s", index, metric),
			fmt.Errorf("elasticsearch %s: %s", res.Status(), string(payload)))
	}

	var parsed esAggResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, stderrors.NewMetricQueryFailedError(metric, err)
	}
	return &parsed, nil
}
