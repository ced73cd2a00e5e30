// internal/engine/debate/scoring.go
package debate

import (
	"sort"

	"insight-workflows/internal/models"
)

// Weights controls how synthesis trades impact against cost and risk.
type Weights struct {
	Impact float64
	Cost   float64
	Risk   float64
}

var DefaultWeights = Weights{Impact: 0.5, Cost: 0.25, Risk: 0.25}

// scoreOption rewards impact and penalizes cost and risk. Cost and risk are
// inverted so every term points the same way: higher is better.
func scoreOption(opt models.SolutionOption, w Weights) float64 {
	return w.Impact*opt.Impact + w.Cost*(1-opt.Cost) + w.Risk*(1-opt.Risk)
}

// rankOptions scores and orders options in place, best first, with an id
// tie-break so equal scores rank identically run to run.
func rankOptions(options []models.SolutionOption, w Weights) []models.SolutionOption {
	for i := range options {
		options[i].Score = scoreOption(options[i], w)
	}
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Score != options[j].Score {
			return options[i].Score > options[j].Score
		}
		return options[i].ID < options[j].ID
	})
	return options
}

// pickRecommendation returns the best-ranked option that honors the
// principal's constraints. When no option qualifies the top-ranked option
// stands, so callers always get a recommendation from a non-empty slate.
func pickRecommendation(ranked []models.SolutionOption, constraints models.PrincipalConstraints) *models.SolutionOption {
	if len(ranked) == 0 {
		return nil
	}

	for i := range ranked {
		if satisfies(ranked[i], constraints) {
			opt := ranked[i]
			return &opt
		}
	}

	opt := ranked[0]
	return &opt
}

func satisfies(opt models.SolutionOption, constraints models.PrincipalConstraints) bool {
	if constraints.MaxAcceptableRisk != nil && opt.Risk > *constraints.MaxAcceptableRisk {
		return false
	}
	if constraints.MaxCost != nil && opt.Cost > *constraints.MaxCost {
		return false
	}
	return true
}
