package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertCounty(geoid, name string, composite float64) ScoredCounty {
	return ScoredCounty{
		CountyRecord: CountyRecord{GEOID: geoid, Name: name},
		Score: VulnerabilityScore{
			Composite: composite,
			Category:  Categorize(composite),
		},
	}
}

func assessment(geoid, name string, level ThreatLevel, km float64) ThreatAssessment {
	return ThreatAssessment{
		GEOID: geoid, CountyName: name, Level: level, DistanceKm: km,
		Storm: &NearestStorm{ID: "al092025", Name: "IAN-TWO", MaxWindKt: 120},
	}
}

func TestCriticalAlerts_Conjunction(t *testing.T) {
	counties := []ScoredCounty{
		alertCounty("12086", "Miami-Dade", 0.85), // Critical
		alertCounty("12071", "Lee", 0.65),        // High
		alertCounty("12009", "Brevard", 0.30),    // Low
		alertCounty("12005", "Bay", 0.90),        // Critical, but low threat
	}
	assessments := []ThreatAssessment{
		assessment("12086", "Miami-Dade", ThreatExtreme, 40),
		assessment("12071", "Lee", ThreatHigh, 180),
		// Historically low county under direct threat: urgent elsewhere,
		// but not a critical alert.
		assessment("12009", "Brevard", ThreatExtreme, 20),
		assessment("12005", "Bay", ThreatLow, 900),
	}

	entries := CriticalAlerts(counties, assessments, DefaultAlertPolicy())
	require.Len(t, entries, 2)
	assert.Equal(t, "12086", entries[0].GEOID)
	assert.Equal(t, "12071", entries[1].GEOID)
}

func TestCriticalAlerts_Ordering(t *testing.T) {
	counties := []ScoredCounty{
		alertCounty("12095", "Orange", 0.70),
		alertCounty("12086", "Miami-Dade", 0.85),
		alertCounty("12071", "Lee", 0.85),
		alertCounty("12057", "Hillsborough", 0.92),
	}
	assessments := []ThreatAssessment{
		assessment("12095", "Orange", ThreatExtreme, 60),
		assessment("12086", "Miami-Dade", ThreatHigh, 200),
		assessment("12071", "Lee", ThreatHigh, 190),
		assessment("12057", "Hillsborough", ThreatHigh, 210),
	}

	entries := CriticalAlerts(counties, assessments, DefaultAlertPolicy())
	require.Len(t, entries, 4)

	// Extreme outranks high regardless of static score; within the same
	// level higher composite wins; equal composites order by GEOID.
	assert.Equal(t, "12095", entries[0].GEOID)
	assert.Equal(t, "12057", entries[1].GEOID)
	assert.Equal(t, "12071", entries[2].GEOID)
	assert.Equal(t, "12086", entries[3].GEOID)
}

func TestCriticalAlerts_EmptyWithoutActiveThreat(t *testing.T) {
	counties := []ScoredCounty{
		alertCounty("12086", "Miami-Dade", 0.95),
		alertCounty("12057", "Hillsborough", 0.88),
	}

	// No storms: every county assesses to none, so even historically
	// Critical counties produce no alert entries.
	assessments := AssessThreats(counties, nil)
	entries := CriticalAlerts(counties, assessments, DefaultAlertPolicy())
	assert.Empty(t, entries)
}

func TestCriticalAlerts_UnknownCountySkipped(t *testing.T) {
	counties := []ScoredCounty{alertCounty("12086", "Miami-Dade", 0.85)}
	assessments := []ThreatAssessment{
		assessment("99999", "Ghost", ThreatExtreme, 10),
		assessment("12086", "Miami-Dade", ThreatExtreme, 50),
	}

	entries := CriticalAlerts(counties, assessments, DefaultAlertPolicy())
	require.Len(t, entries, 1)
	assert.Equal(t, "12086", entries[0].GEOID)
}
