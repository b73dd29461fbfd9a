// Package domain models Florida county disaster vulnerability and real-time
// hurricane threat assessment.
//
// # Data Sources
//
// Static county indicators come from an external ingestion job (see
// cmd/ingest) that merges several public datasets into one processed GeoJSON
// file, keyed by the county's 5-digit FIPS GEOID:
//
//	US Census Bureau TIGER/Line:    county boundaries and names
//	Bureau of Economic Analysis:    county GDP (USD millions)
//	CDC Social Vulnerability Index: four theme percentiles, each in [0,1]:
//	  socioeconomic status, household composition & disability,
//	  minority status & language, housing type & transportation
//	FEMA National Risk Index:       ordinal hurricane risk rating
//	  (Very Low .. Very High) and/or expected annual loss (EAL, USD)
//	NOAA IBTrACS:                   historical storm count and max wind
//	  per county, informational metadata only
//
// Live storm positions come from the NOAA National Hurricane Center
// CurrentStorms.json feed (see the nhc adapter). Each fetch carries one
// position fix per active storm; the storm cache stitches consecutive fixes
// into a track.
//
// # Vulnerability Scoring
//
// Each indicator is normalized onto a common [0,1] scale where higher always
// means more vulnerable, then combined by a fixed weighted sum:
//
//	composite = 0.40*hazard + 0.30*social + 0.30*economic
//
// Normalization policy, per indicator:
//
//	hazard:   EAL min-max scaled against the loaded dataset when present,
//	          otherwise the ordinal risk rating through a fixed table
//	          (Very Low=0, Low=0.25, Moderate=0.5, High=0.75, Very High=1)
//	social:   mean of the four SVI themes (already [0,1])
//	economic: GDP per capita, min-max scaled and inverted, so wealthier
//	          counties are less vulnerable
//
// Observed min-max bounds are frozen when the dataset loads, so a given
// input set always reproduces the same scores. A missing indicator is a
// reported condition, not a silent zero: the scorer substitutes the dataset
// median and logs it. Weights are configurable and must sum to 1.0; the
// default 40/30/30 split is the documented scheme of record.
//
// Categories use half-open intervals on the composite:
//
//	[0.8, 1.0] Critical | [0.6, 0.8) High | [0.4, 0.6) Moderate
//	[0.2, 0.4) Low      | [0.0, 0.2) Very Low
//
// # Threat Assessment
//
// Threat level is a function of great-circle (haversine) distance between a
// county centroid and the latest fix of the nearest active storm:
//
//	≤100 km extreme | ≤250 km high | ≤500 km moderate | ≤1000 km low | else none
//
// When two storms are exactly equidistant the one with higher sustained wind
// wins. Storm classification follows the Saffir-Simpson scale on sustained
// wind in knots: <34 tropical depression, <64 tropical storm, then hurricane
// categories 1 (<83), 2 (<96), 3 (<113), 4 (<137), 5 (≥137).
//
// A county is a critical alert when BOTH its static category is High or
// above AND its current threat level is high or above. The combination is a
// conjunction, never an average: with no active storms the critical list is
// empty regardless of how vulnerable a county is historically.
package domain
