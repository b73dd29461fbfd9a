package domain

import "sort"

// AlertPolicy holds the two bars a county must clear simultaneously to be a
// critical alert. Both must hold: a low-vulnerability county under imminent
// threat does not qualify.
type AlertPolicy struct {
	MinCategory Category    `json:"min_category"`
	MinThreat   ThreatLevel `json:"min_threat"`
}

// DefaultAlertPolicy requires static category High or above and current
// threat high or above, matching the operational definition the threat
// pipeline has always used.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{MinCategory: CategoryHigh, MinThreat: ThreatHigh}
}

// CriticalAlertEntry is one county clearing both alert bars, with the
// ordering key material attached.
type CriticalAlertEntry struct {
	GEOID      string             `json:"geoid"`
	CountyName string             `json:"county"`
	Score      VulnerabilityScore `json:"score"`
	Level      ThreatLevel        `json:"level"`
	DistanceKm float64            `json:"distance_km"`
	Storm      *NearestStorm      `json:"nearest_storm,omitempty"`
}

// CriticalAlerts merges current threat assessments with static scores into
// the ranked critical list. Counties are ordered by descending threat level,
// ties broken by descending composite score, then ascending GEOID for
// determinism. With zero active storms no assessment clears MinThreat and
// the list is empty regardless of static category.
func CriticalAlerts(counties []ScoredCounty, assessments []ThreatAssessment, policy AlertPolicy) []CriticalAlertEntry {
	byID := make(map[string]ScoredCounty, len(counties))
	for _, c := range counties {
		byID[c.GEOID] = c
	}

	entries := make([]CriticalAlertEntry, 0)
	for _, a := range assessments {
		county, ok := byID[a.GEOID]
		if !ok {
			continue
		}
		if a.Level < policy.MinThreat || !county.Score.Category.AtLeast(policy.MinCategory) {
			continue
		}
		entries = append(entries, CriticalAlertEntry{
			GEOID:      a.GEOID,
			CountyName: a.CountyName,
			Score:      county.Score,
			Level:      a.Level,
			DistanceKm: a.DistanceKm,
			Storm:      a.Storm,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Level != entries[j].Level {
			return entries[i].Level > entries[j].Level
		}
		if entries[i].Score.Composite != entries[j].Score.Composite {
			return entries[i].Score.Composite > entries[j].Score.Composite
		}
		return entries[i].GEOID < entries[j].GEOID
	})
	return entries
}
