package domain

import (
	"errors"
	"fmt"
)

// ErrMissingIndicator reports a county indicator that is absent from the
// dataset. Callers must apply a documented fallback rather than defaulting
// to zero; the scorer substitutes the dataset median.
var ErrMissingIndicator = errors.New("missing indicator")

// bounds is an observed min/max range frozen at dataset load for
// reproducible min-max scaling.
type bounds struct {
	min, max float64
	ok       bool
}

func (b *bounds) observe(v float64) {
	if !b.ok {
		b.min, b.max, b.ok = v, v, true
		return
	}
	if v < b.min {
		b.min = v
	}
	if v > b.max {
		b.max = v
	}
}

// scale maps v linearly onto [0,1] within the observed range. A degenerate
// range (all counties equal) maps to 0.5, matching the ingestion pipeline.
func (b bounds) scale(v float64) float64 {
	if !b.ok || b.max == b.min {
		return 0.5
	}
	return clamp01((v - b.min) / (b.max - b.min))
}

// Normalizer maps raw county indicators onto a common [0,1] scale where
// higher always means more vulnerable. Scaling bounds are derived once from
// the full dataset so scores are reproducible across runs with the same
// input set.
type Normalizer struct {
	eal          bounds
	gdpPerCapita bounds
}

// NewNormalizer observes indicator ranges across the dataset.
func NewNormalizer(counties []CountyRecord) *Normalizer {
	n := &Normalizer{}
	for _, c := range counties {
		if c.EAL != nil {
			n.eal.observe(*c.EAL)
		}
		if pc, ok := gdpPerCapita(c); ok {
			n.gdpPerCapita.observe(pc)
		}
	}
	return n
}

// Hazard normalizes historical hurricane risk. Continuous EAL is preferred
// when present; otherwise the ordinal risk rating maps through the fixed
// equally spaced table. An unknown rating string is an error, never a
// silent default.
func (n *Normalizer) Hazard(c CountyRecord) (float64, error) {
	if c.EAL != nil {
		return n.eal.scale(*c.EAL), nil
	}
	if c.RiskRating == "" {
		return 0, fmt.Errorf("county %s hazard: %w", c.GEOID, ErrMissingIndicator)
	}
	v, ok := c.RiskRating.Value()
	if !ok {
		return 0, fmt.Errorf("county %s: unknown risk rating %q", c.GEOID, c.RiskRating)
	}
	return v, nil
}

// Social normalizes social vulnerability as the mean of the four SVI theme
// percentiles, which are already on a [0,1] scale.
func (n *Normalizer) Social(c CountyRecord) (float64, error) {
	if len(c.SVIThemes) == 0 {
		return 0, fmt.Errorf("county %s social: %w", c.GEOID, ErrMissingIndicator)
	}
	var sum float64
	for _, t := range c.SVIThemes {
		sum += clamp01(t)
	}
	return sum / float64(len(c.SVIThemes)), nil
}

// Economic normalizes economic vulnerability as inverted GDP per capita:
// higher wealth means lower vulnerability.
func (n *Normalizer) Economic(c CountyRecord) (float64, error) {
	pc, ok := gdpPerCapita(c)
	if !ok {
		return 0, fmt.Errorf("county %s economic: %w", c.GEOID, ErrMissingIndicator)
	}
	return 1 - n.gdpPerCapita.scale(pc), nil
}

// gdpPerCapita returns GDP per capita in USD. The second return is false
// when GDP or population is unreported.
func gdpPerCapita(c CountyRecord) (float64, bool) {
	if c.GDPMillions == nil || c.Population <= 0 {
		return 0, false
	}
	return *c.GDPMillions * 1e6 / float64(c.Population), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
