// Package debate runs the three-sub-stage solution-finding debate:
// hypothesis, cross-review, synthesis. Sub-stages are strictly ordered and
// share a growing transcript; a failed sub-stage fails the whole debate.
package debate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/observability"
	"insight-workflows/internal/common/reasoning"
	"insight-workflows/internal/executor"
	"insight-workflows/internal/models"
	"insight-workflows/pkg/personas"
)

const defaultSubStageTimeout = 40 * time.Second

// Request describes one debate run.
type Request struct {
	Principal       models.Principal
	PersonaIDs      []string // explicit panel; empty means decision-style mapping
	ProblemStatement string
	AnalysisContext string
}

// Result is the synthesis outcome plus the full transcript.
type Result struct {
	OptionsRanked      []models.SolutionOption `json:"options_ranked"`
	Recommendation     *models.SolutionOption  `json:"recommendation,omitempty"`
	BlindSpots         []string                `json:"blind_spots"`
	UnresolvedTensions []string                `json:"unresolved_tensions"`
	Transcript         models.DebateTranscript `json:"transcript"`
}

type Engine struct {
	provider        reasoning.Provider
	roster          *personas.Roster
	weights         Weights
	subStageTimeout time.Duration
	maxTokens       int
	temperature     float64
	tracing         *observability.Tracing
	logger          logger.Logger
}

type Option func(*Engine)

func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

func WithSubStageTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.subStageTimeout = d
		}
	}
}

func WithGeneration(maxTokens int, temperature float64) Option {
	return func(e *Engine) {
		e.maxTokens = maxTokens
		e.temperature = temperature
	}
}

func WithTracing(t *observability.Tracing) Option {
	return func(e *Engine) { e.tracing = t }
}

func New(provider reasoning.Provider, roster *personas.Roster, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		provider:        provider,
		roster:          roster,
		weights:         DefaultWeights,
		subStageTimeout: defaultSubStageTimeout,
		maxTokens:       2048,
		temperature:     0.7,
		logger:          log.WithFields(map[string]interface{}{"component": "debate-engine"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the full debate. The transcript grows monotonically across
// sub-stages; synthesis only runs after both prior sub-stages completed.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	panel, err := e.resolvePanel(req)
	if err != nil {
		return nil, stderrors.NewInvalidStageInputError(err.Error())
	}

	transcript := &models.DebateTranscript{}

	if err := e.subStage(ctx, string(models.DebateHypothesis), func(ctx context.Context) error {
		return e.runHypothesis(ctx, req, panel, transcript)
	}); err != nil {
		return nil, err
	}

	if err := e.subStage(ctx, string(models.DebateCrossReview), func(ctx context.Context) error {
		return e.runCrossReview(ctx, panel, transcript)
	}); err != nil {
		return nil, err
	}

	var result *Result
	if err := e.subStage(ctx, string(models.DebateSynthesis), func(ctx context.Context) error {
		var serr error
		result, serr = e.runSynthesis(ctx, req, transcript)
		return serr
	}); err != nil {
		return nil, err
	}

	result.Transcript = *transcript
	return result, nil
}

func (e *Engine) resolvePanel(req Request) ([]personas.Persona, error) {
	if len(req.PersonaIDs) > 0 {
		return e.roster.ForIDs(req.PersonaIDs)
	}
	panel := e.roster.ForDecisionStyle(req.Principal.DecisionStyle)
	if len(panel) == 0 {
		return nil, fmt.Errorf("no personas resolved for decision style %q", req.Principal.DecisionStyle)
	}
	return panel, nil
}

func (e *Engine) subStage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	spanCtx, span := e.tracing.StartSubStageSpan(ctx, name)
	defer span.End()
	return executor.RunSubStage(spanCtx, e.logger, name, e.subStageTimeout, fn)
}

type hypothesisPayload struct {
	Hypotheses []string `json:"hypotheses"`
	Sketches   []struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Cost        float64 `json:"cost"`
		Impact      float64 `json:"impact"`
		Risk        float64 `json:"risk"`
	} `json:"sketches"`
}

// runHypothesis fans the panel out concurrently but appends to the
// transcript keyed and ordered by persona id, so output is deterministic
// regardless of completion order.
func (e *Engine) runHypothesis(ctx context.Context, req Request, panel []personas.Persona, transcript *models.DebateTranscript) error {
	var mu sync.Mutex
	contributions := make(map[string]string, len(panel))

	g, gctx := errgroup.WithContext(ctx)
	for _, persona := range panel {
		persona := persona
		g.Go(func() error {
			resp, err := e.generate(gctx, persona, hypothesisPrompt(req), string(models.DebateHypothesis))
			if err != nil {
				return err
			}
			if _, ok := parsePayload[hypothesisPayload](resp.Text); !ok {
				return stderrors.NewReasoningProviderFailedError(string(models.DebateHypothesis),
					fmt.Errorf("persona %s returned an unparseable payload", persona.ID))
			}
			mu.Lock()
			contributions[persona.ID] = resp.Text
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ids := make([]string, 0, len(contributions))
	for id := range contributions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		transcript.Append(models.DebateHypothesis, id, contributions[id])
	}
	return nil
}

type crossReviewPayload struct {
	Reviews []struct {
		TargetPersonaID  string   `json:"target_persona_id"`
		Critique         string   `json:"critique"`
		ArgumentsFor     []string `json:"arguments_for"`
		ArgumentsAgainst []string `json:"arguments_against"`
	} `json:"reviews"`
}

// runCrossReview has every persona critique the rest. Reviews naming a
// persona id outside the hypothesis panel are dropped and logged, never
// rewritten to a known id.
func (e *Engine) runCrossReview(ctx context.Context, panel []personas.Persona, transcript *models.DebateTranscript) error {
	known := make(map[string]bool, len(panel))
	for _, p := range panel {
		known[p.ID] = true
	}

	var mu sync.Mutex
	contributions := make(map[string]string, len(panel))

	g, gctx := errgroup.WithContext(ctx)
	for _, persona := range panel {
		persona := persona
		g.Go(func() error {
			resp, err := e.generate(gctx, persona, crossReviewPrompt(persona, panel, transcript), string(models.DebateCrossReview))
			if err != nil {
				return err
			}

			payload, ok := parsePayload[crossReviewPayload](resp.Text)
			if !ok {
				return stderrors.NewReasoningProviderFailedError(string(models.DebateCrossReview),
					fmt.Errorf("persona %s returned an unparseable payload", persona.ID))
			}

			kept := crossReviewPayload{}
			for _, review := range payload.Reviews {
				if !known[review.TargetPersonaID] {
					e.logger.Warn("dropping review of unknown persona", map[string]interface{}{
						"reviewer": persona.ID,
						"target":   review.TargetPersonaID,
					})
					continue
				}
				kept.Reviews = append(kept.Reviews, review)
			}

			text, err := json.Marshal(kept)
			if err != nil {
				return err
			}

			mu.Lock()
			contributions[persona.ID] = string(text)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ids := make([]string, 0, len(contributions))
	for id := range contributions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		transcript.Append(models.DebateCrossReview, id, contributions[id])
	}
	return nil
}

type synthesisPayload struct {
	Options            []models.SolutionOption `json:"options"`
	BlindSpots         []string                `json:"blind_spots"`
	UnresolvedTensions []string                `json:"unresolved_tensions"`
}

const moderatorID = "moderator"

func (e *Engine) runSynthesis(ctx context.Context, req Request, transcript *models.DebateTranscript) (*Result, error) {
	moderator := personas.Persona{
		ID:      moderatorID,
		Name:    "The Moderator",
		Style:   "neutral",
		Framing: "Consolidate the panel's positions without taking a side.",
		Focus:   []string{"synthesis"},
	}

	resp, err := e.generate(ctx, moderator, synthesisPrompt(req, transcript), string(models.DebateSynthesis))
	if err != nil {
		return nil, err
	}

	payload, ok := parsePayload[synthesisPayload](resp.Text)
	if !ok {
		return nil, stderrors.NewReasoningProviderFailedError(string(models.DebateSynthesis),
			errors.New("synthesis returned an unparseable payload"))
	}

	transcript.Append(models.DebateSynthesis, moderatorID, resp.Text)

	ranked := rankOptions(payload.Options, e.weights)
	return &Result{
		OptionsRanked:      ranked,
		Recommendation:     pickRecommendation(ranked, req.Principal.Constraints),
		BlindSpots:         payload.BlindSpots,
		UnresolvedTensions: payload.UnresolvedTensions,
	}, nil
}

func (e *Engine) generate(ctx context.Context, persona personas.Persona, prompt, subStage string) (*reasoning.Response, error) {
	resp, err := e.provider.Generate(ctx, reasoning.Request{
		System:      personaSystemPrompt(persona),
		Prompt:      prompt,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		if errors.Is(err, reasoning.ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, stderrors.NewReasoningTimeoutError(subStage)
		}
		return nil, stderrors.NewReasoningProviderFailedError(subStage, err)
	}
	return resp, nil
}

// parsePayload extracts the outermost JSON object from provider free text
// and decodes it into T.
func parsePayload[T any](text string) (*T, bool) {
	raw, ok := reasoning.ExtractJSON(text)
	if !ok {
		return nil, false
	}
	var payload T
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false
	}
	return &payload, true
}
