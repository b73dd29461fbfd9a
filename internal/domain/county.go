package domain

import "encoding/json"

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RiskRating is the FEMA National Risk Index ordinal hurricane risk rating.
// The zero value means the rating is absent from the dataset.
type RiskRating string

const (
	RatingVeryLow  RiskRating = "Very Low"
	RatingLow      RiskRating = "Low"
	RatingModerate RiskRating = "Moderate"
	RatingHigh     RiskRating = "High"
	RatingVeryHigh RiskRating = "Very High"
)

// ratingScale maps each rating to an equally spaced value in [0,1].
// The mapping is exhaustive; an unlisted rating string is rejected at load
// time rather than defaulting, see RiskRating.Value.
var ratingScale = map[RiskRating]float64{
	RatingVeryLow:  0.0,
	RatingLow:      0.25,
	RatingModerate: 0.5,
	RatingHigh:     0.75,
	RatingVeryHigh: 1.0,
}

// Value returns the normalized [0,1] value for the rating. The second return
// is false for unknown rating strings, including the empty (absent) rating.
func (r RiskRating) Value() (float64, bool) {
	v, ok := ratingScale[r]
	return v, ok
}

// CountyRecord holds the static per-county attributes produced by the
// ingestion job. Records are immutable for the lifetime of a server; a
// re-ingestion replaces the whole set.
type CountyRecord struct {
	// GEOID is the 5-digit FIPS code, the stable county identifier.
	GEOID string `json:"geoid"`
	Name  string `json:"name"`

	// Centroid is the representative point used for all distance math.
	// Boundary is the raw GeoJSON geometry, carried for display only.
	Centroid Geo             `json:"centroid"`
	Boundary json.RawMessage `json:"boundary,omitempty"`

	Population int64 `json:"population"`

	// GDPMillions is county GDP in USD millions. Nil means not reported.
	GDPMillions *float64 `json:"gdp_millions,omitempty"`

	// SVIThemes holds the four CDC SVI theme percentiles, each in [0,1].
	// Empty means the county is absent from the SVI dataset.
	SVIThemes []float64 `json:"svi_themes,omitempty"`

	// RiskRating and EAL both describe historical hurricane risk; either or
	// both may be absent. EAL (expected annual loss, USD) is preferred for
	// normalization when present.
	RiskRating RiskRating `json:"risk_rating,omitempty"`
	EAL        *float64   `json:"eal,omitempty"`

	// Historical storm metadata from IBTrACS, informational only.
	StormCount int `json:"storm_count,omitempty"`
	MaxWindKt  int `json:"max_wind_kt,omitempty"`
}

// Category is the discrete vulnerability classification of a composite score.
type Category string

const (
	CategoryVeryLow  Category = "Very Low"
	CategoryLow      Category = "Low"
	CategoryModerate Category = "Moderate"
	CategoryHigh     Category = "High"
	CategoryCritical Category = "Critical"
)

// categoryRanks orders categories for threshold comparisons.
var categoryRanks = map[Category]int{
	CategoryVeryLow:  0,
	CategoryLow:      1,
	CategoryModerate: 2,
	CategoryHigh:     3,
	CategoryCritical: 4,
}

// Rank returns the category's position in the ordering, Very Low = 0.
func (c Category) Rank() int { return categoryRanks[c] }

// AtLeast reports whether c is equal to or more severe than other.
func (c Category) AtLeast(other Category) bool { return c.Rank() >= other.Rank() }

// Categorize maps a composite score to its category using half-open
// intervals: [0.8,1.0] Critical, [0.6,0.8) High, [0.4,0.6) Moderate,
// [0.2,0.4) Low, [0,0.2) Very Low.
func Categorize(score float64) Category {
	switch {
	case score >= 0.8:
		return CategoryCritical
	case score >= 0.6:
		return CategoryHigh
	case score >= 0.4:
		return CategoryModerate
	case score >= 0.2:
		return CategoryLow
	default:
		return CategoryVeryLow
	}
}

// VulnerabilityScore is the derived composite score for one county, with the
// normalized sub-scores that produced it kept for API transparency.
type VulnerabilityScore struct {
	Composite float64  `json:"composite"`
	Category  Category `json:"category"`
	Hazard    float64  `json:"hazard"`
	Social    float64  `json:"social"`
	Economic  float64  `json:"economic"`
}

// ScoredCounty pairs a county record with its vulnerability score.
type ScoredCounty struct {
	CountyRecord
	Score VulnerabilityScore `json:"score"`
}
