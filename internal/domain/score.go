package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// weightEpsilon is the tolerance for the sum-to-one check; anything looser
// would let materially skewed weights through.
const weightEpsilon = 1e-9

// ErrInvalidWeights reports a weight configuration whose components do not
// sum to 1.0. Serving with inconsistent weights silently corrupts every
// score, so this is fatal at startup.
var ErrInvalidWeights = errors.New("invalid weight configuration")

// Weights is the composite scoring scheme. The default 40/30/30 split
// (hazard/social/economic) is the documented scheme of record; deployments
// may override it through configuration but the sum must stay 1.0.
type Weights struct {
	Hazard   float64 `json:"hazard"`
	Social   float64 `json:"social"`
	Economic float64 `json:"economic"`
}

// DefaultWeights returns the 40/30/30 hazard/social/economic scheme.
func DefaultWeights() Weights {
	return Weights{Hazard: 0.40, Social: 0.30, Economic: 0.30}
}

// Validate checks that every weight is non-negative and the sum is 1.0
// within epsilon.
func (w Weights) Validate() error {
	if w.Hazard < 0 || w.Social < 0 || w.Economic < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	}
	sum := w.Hazard + w.Social + w.Economic
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("%w: weights sum to %g, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// Scorer computes composite vulnerability scores for a fixed county dataset.
type Scorer struct {
	weights Weights
	norm    *Normalizer
	logger  *slog.Logger
}

// NewScorer validates the weight configuration and freezes normalization
// bounds against the dataset.
func NewScorer(weights Weights, counties []CountyRecord, logger *slog.Logger) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		weights: weights,
		norm:    NewNormalizer(counties),
		logger:  logger,
	}, nil
}

// Weights returns the active weighting scheme.
func (s *Scorer) Weights() Weights { return s.weights }

// indicator identifies one normalized sub-score for fallback bookkeeping.
type indicator int

const (
	indicatorHazard indicator = iota
	indicatorSocial
	indicatorEconomic
)

func (i indicator) String() string {
	switch i {
	case indicatorHazard:
		return "hazard"
	case indicatorSocial:
		return "social"
	case indicatorEconomic:
		return "economic"
	default:
		return "unknown"
	}
}

// ScoreAll computes a VulnerabilityScore for every county. Missing
// indicators fall back to the dataset median of that indicator, computed
// over the counties that do report it; each substitution is logged. An
// unknown risk rating string aborts scoring; that is a data defect for the
// ingestion job to fix, not a gap to paper over.
func (s *Scorer) ScoreAll(counties []CountyRecord) ([]ScoredCounty, error) {
	type partial struct {
		values  [3]float64
		missing [3]bool
	}

	partials := make([]partial, len(counties))
	present := [3][]float64{}

	for i, c := range counties {
		for ind, f := range map[indicator]func(CountyRecord) (float64, error){
			indicatorHazard:   s.norm.Hazard,
			indicatorSocial:   s.norm.Social,
			indicatorEconomic: s.norm.Economic,
		} {
			v, err := f(c)
			switch {
			case err == nil:
				partials[i].values[ind] = v
				present[ind] = append(present[ind], v)
			case errors.Is(err, ErrMissingIndicator):
				partials[i].missing[ind] = true
			default:
				return nil, err
			}
		}
	}

	medians := [3]float64{}
	for ind := range medians {
		medians[ind] = median(present[ind])
	}

	scored := make([]ScoredCounty, len(counties))
	for i, c := range counties {
		p := partials[i]
		for ind := range p.values {
			if !p.missing[ind] {
				continue
			}
			p.values[ind] = medians[ind]
			s.logger.Warn("indicator missing, using dataset median",
				"geoid", c.GEOID,
				"county", c.Name,
				"indicator", indicator(ind).String(),
				"median", medians[ind],
			)
		}

		composite := clamp01(s.weights.Hazard*p.values[indicatorHazard] +
			s.weights.Social*p.values[indicatorSocial] +
			s.weights.Economic*p.values[indicatorEconomic])

		scored[i] = ScoredCounty{
			CountyRecord: c,
			Score: VulnerabilityScore{
				Composite: composite,
				Category:  Categorize(composite),
				Hazard:    p.values[indicatorHazard],
				Social:    p.values[indicatorSocial],
				Economic:  p.values[indicatorEconomic],
			},
		}
	}
	return scored, nil
}

// median returns the median of vs, or the neutral midpoint 0.5 when no
// county reports the indicator at all.
func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0.5
	}
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
