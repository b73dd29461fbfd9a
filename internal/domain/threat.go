package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b Geo) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(h))
}

// ThreatLevel is the discrete proximity-based exposure classification.
// Levels are ordered; a smaller distance never yields a lower level.
type ThreatLevel int

const (
	ThreatNone ThreatLevel = iota
	ThreatLow
	ThreatModerate
	ThreatHigh
	ThreatExtreme
)

func (l ThreatLevel) String() string {
	switch l {
	case ThreatLow:
		return "low"
	case ThreatModerate:
		return "moderate"
	case ThreatHigh:
		return "high"
	case ThreatExtreme:
		return "extreme"
	default:
		return "none"
	}
}

// ParseThreatLevel maps the wire string back to a level.
func ParseThreatLevel(s string) (ThreatLevel, error) {
	switch s {
	case "none":
		return ThreatNone, nil
	case "low":
		return ThreatLow, nil
	case "moderate":
		return ThreatModerate, nil
	case "high":
		return ThreatHigh, nil
	case "extreme":
		return ThreatExtreme, nil
	default:
		return ThreatNone, fmt.Errorf("unknown threat level %q", s)
	}
}

// MarshalJSON encodes the level as its lowercase wire string.
func (l ThreatLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes the lowercase wire string.
func (l *ThreatLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseThreatLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// threatBand pairs an outer distance with the level applied inside it.
// Bands are ordered innermost first and evaluated by linear scan; keeping
// them as data makes each boundary independently testable.
type threatBand struct {
	maxKm float64
	level ThreatLevel
}

var threatBands = []threatBand{
	{maxKm: 100, level: ThreatExtreme},
	{maxKm: 250, level: ThreatHigh},
	{maxKm: 500, level: ThreatModerate},
	{maxKm: 1000, level: ThreatLow},
}

// LevelForDistance maps a distance in km to its threat level. Anything
// beyond the outermost band is ThreatNone.
func LevelForDistance(km float64) ThreatLevel {
	for _, band := range threatBands {
		if km <= band.maxKm {
			return band.level
		}
	}
	return ThreatNone
}

// NearestStorm summarizes the storm driving a county's threat level.
type NearestStorm struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	MaxWindKt int    `json:"max_wind_kt"`
}

// ThreatAssessment is the derived per-county exposure to the most
// threatening active storm. Recomputed on every refresh or query, never
// persisted.
type ThreatAssessment struct {
	GEOID      string        `json:"geoid"`
	CountyName string        `json:"county"`
	Level      ThreatLevel   `json:"level"`
	DistanceKm float64       `json:"distance_km,omitempty"`
	Storm      *NearestStorm `json:"nearest_storm,omitempty"`
	ComputedAt time.Time     `json:"computed_at"`
}

// AssessThreats computes one ThreatAssessment per county against the latest
// fix of each active storm. The nearest storm wins; an exact distance tie
// prefers the storm with higher sustained wind. With no storms every county
// assesses to ThreatNone.
func AssessThreats(counties []ScoredCounty, storms []StormTrack) []ThreatAssessment {
	now := clock.Now()
	assessments := make([]ThreatAssessment, 0, len(counties))

	for _, county := range counties {
		a := ThreatAssessment{
			GEOID:      county.GEOID,
			CountyName: county.Name,
			Level:      ThreatNone,
			ComputedAt: now,
		}

		minDist := math.Inf(1)
		var nearest *StormTrack
		var nearestFix Fix
		for i := range storms {
			fix, ok := storms[i].LatestFix()
			if !ok {
				continue
			}
			dist := Haversine(county.Centroid, Geo{Lat: fix.Lat, Lon: fix.Lon})
			if dist < minDist || (dist == minDist && nearest != nil && fix.MaxWindKt > nearestFix.MaxWindKt) {
				minDist = dist
				nearest = &storms[i]
				nearestFix = fix
			}
		}

		if nearest != nil {
			a.Level = LevelForDistance(minDist)
			a.DistanceKm = math.Round(minDist*10) / 10
			a.Storm = &NearestStorm{
				ID:        nearest.ID,
				Name:      nearest.Name,
				Category:  nearest.Category(),
				MaxWindKt: nearestFix.MaxWindKt,
			}
		}

		assessments = append(assessments, a)
	}
	return assessments
}
