// Package kt implements the Kepner-Tregoe style is/is-not analysis that
// deep-analysis runs over a metric shift: per-dimension grouped aggregates
// for the current and comparison windows, joined and ranked by absolute
// contribution to the shift.
package kt

import (
	"context"
	"math"
	"sort"
	"strings"

	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/dataquery"
	"insight-workflows/internal/models"
)

const (
	DefaultTopN          = 5
	DefaultMaxDimensions = 15
)

// DefaultExcludedKeys are bucket keys treated as data-quality noise and
// dropped before ranking. Matching is case-insensitive.
var DefaultExcludedKeys = []string{
	"", "unknown", "unassigned", "n/a", "none", "null",
	"not assigned", "#", "other (unspecified)",
}

// DirectionPolicy decides whether a change point moves with the overall
// anomaly. It exists as an injection point for KPIs where plain sign
// matching is too naive (for example ratio metrics).
type DirectionPolicy func(direction models.AnomalyDirection, cp models.ChangePoint) bool

// SignMatchPolicy is the default: a drop anomaly claims negative deltas,
// a spike claims positive ones. Zero deltas never match.
func SignMatchPolicy(direction models.AnomalyDirection, cp models.ChangePoint) bool {
	switch direction {
	case models.DirectionDrop:
		return cp.Delta < 0
	case models.DirectionSpike:
		return cp.Delta > 0
	default:
		return false
	}
}

// Request describes one analysis run.
type Request struct {
	Table      string
	Metric     string
	Dimensions []string
	Window     models.TimeWindow
	Direction  models.AnomalyDirection
}

// Result carries the ranked change points and their is/is-not partition.
type Result struct {
	ChangePoints []models.ChangePoint `json:"change_points"`
	IsIsNot      models.KTIsIsNotSet  `json:"is_is_not"`
}

// Engine runs the six-step analysis against a data-query backend.
type Engine struct {
	querier       dataquery.Querier
	policy        DirectionPolicy
	topN          int
	maxDimensions int
	excluded      map[string]struct{}
	logger        logger.Logger
}

type Option func(*Engine)

func WithDirectionPolicy(p DirectionPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

func WithMaxDimensions(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDimensions = n
		}
	}
}

func WithExcludedKeys(keys []string) Option {
	return func(e *Engine) {
		e.excluded = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			e.excluded[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
		}
	}
}

func New(querier dataquery.Querier, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		querier:       querier,
		policy:        SignMatchPolicy,
		topN:          DefaultTopN,
		maxDimensions: DefaultMaxDimensions,
		logger:        log.WithFields(map[string]interface{}{"component": "kt-engine"}),
	}
	WithExcludedKeys(DefaultExcludedKeys)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze executes the full pipeline. A run where every dimension comes
// back empty is a successful run with empty change points, not an error.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	previous := req.Window.Previous()

	dimensions := req.Dimensions
	if len(dimensions) > e.maxDimensions {
		e.logger.Warn("candidate dimensions truncated", map[string]interface{}{
			"requested": len(dimensions),
			"limit":     e.maxDimensions,
		})
		dimensions = dimensions[:e.maxDimensions]
	}

	var all []models.ChangePoint
	for _, dimension := range dimensions {
		points, err := e.analyzeDimension(ctx, req, dimension, previous)
		if err != nil {
			return nil, err
		}
		all = append(all, points...)
	}

	sortByContribution(all)
	if len(all) > e.topN {
		all = all[:e.topN]
	}

	return &Result{
		ChangePoints: all,
		IsIsNot:      e.classify(req.Direction, all),
	}, nil
}

func (e *Engine) analyzeDimension(ctx context.Context, req Request, dimension string, previous models.TimeWindow) ([]models.ChangePoint, error) {
	current, err := e.querier.GroupedTotals(ctx, req.Table, dimension, req.Metric, req.Window)
	if err != nil {
		return nil, err
	}
	prior, err := e.querier.GroupedTotals(ctx, req.Table, dimension, req.Metric, previous)
	if err != nil {
		return nil, err
	}

	if len(current) == 0 && len(prior) == 0 {
		e.logger.Debug("dimension has no groups in either window", map[string]interface{}{
			"dimension": dimension,
		})
		return nil, nil
	}

	// Full outer join by key; a key present in only one window joins
	// against zero on the other side.
	joined := make(map[string]*models.ChangePoint)
	for _, gt := range current {
		joined[gt.Key] = &models.ChangePoint{
			Dimension: dimension,
			Key:       gt.Key,
			Current:   gt.Total,
		}
	}
	for _, gt := range prior {
		cp, ok := joined[gt.Key]
		if !ok {
			cp = &models.ChangePoint{Dimension: dimension, Key: gt.Key}
			joined[gt.Key] = cp
		}
		cp.Previous = gt.Total
	}

	var out []models.ChangePoint
	for _, cp := range joined {
		if e.isExcluded(cp.Key) {
			continue
		}
		cp.Delta = cp.Current - cp.Previous
		if cp.Previous != 0 {
			growth := cp.Delta / cp.Previous
			cp.GrowthPct = &growth
		}
		out = append(out, *cp)
	}
	return out, nil
}

func (e *Engine) isExcluded(key string) bool {
	_, ok := e.excluded[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// classify partitions points by the direction policy. A (dimension, key)
// pair lands in at most one list; where_is wins when a pair repeats.
func (e *Engine) classify(direction models.AnomalyDirection, points []models.ChangePoint) models.KTIsIsNotSet {
	type pairKey struct{ dimension, key string }

	set := models.KTIsIsNotSet{
		WhereIs:    []models.ChangePoint{},
		WhereIsNot: []models.ChangePoint{},
	}
	seen := make(map[pairKey]bool)

	for _, cp := range points {
		pk := pairKey{cp.Dimension, cp.Key}
		matches := e.policy(direction, cp)
		if prior, ok := seen[pk]; ok {
			if prior || !matches {
				continue
			}
			// Pair previously classified is-not now matches: promote it.
			set.WhereIsNot = removePair(set.WhereIsNot, cp.Dimension, cp.Key)
		}
		seen[pk] = matches
		if matches {
			set.WhereIs = append(set.WhereIs, cp)
		} else {
			set.WhereIsNot = append(set.WhereIsNot, cp)
		}
	}
	return set
}

func removePair(points []models.ChangePoint, dimension, key string) []models.ChangePoint {
	out := points[:0]
	for _, cp := range points {
		if cp.Dimension == dimension && cp.Key == key {
			continue
		}
		out = append(out, cp)
	}
	return out
}

// sortByContribution orders by |delta| descending with a deterministic
// dimension-then-key tie-break so equal contributions rank stably.
func sortByContribution(points []models.ChangePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		ai, aj := math.Abs(points[i].Delta), math.Abs(points[j].Delta)
		if ai != aj {
			return ai > aj
		}
		if points[i].Dimension != points[j].Dimension {
			return points[i].Dimension < points[j].Dimension
		}
		return points[i].Key < points[j].Key
	})
}
