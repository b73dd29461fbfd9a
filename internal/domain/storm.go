package domain

import "time"

// Fix is a single storm position report from the NHC feed.
type Fix struct {
	Time       time.Time `json:"time"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	MaxWindKt  int       `json:"max_wind_kt"`
	PressureMb int       `json:"pressure_mb,omitempty"`
}

// StormTrack is an active tropical cyclone with its ordered position history.
// The feed delivers one fix per fetch; the storm cache appends fixes across
// refreshes while the storm stays in the feed.
type StormTrack struct {
	// ID is the NHC cyclone identifier, e.g. "al092024".
	ID             string `json:"id"`
	Name           string `json:"name"`
	Classification string `json:"classification,omitempty"`

	// Fixes are ordered oldest to newest. A track always has at least one.
	Fixes []Fix `json:"fixes"`

	Movement string `json:"movement,omitempty"`
}

// LatestFix returns the most recent position fix. The second return is false
// for a track with no fixes, which should not occur for feed-produced tracks.
func (s StormTrack) LatestFix() (Fix, bool) {
	if len(s.Fixes) == 0 {
		return Fix{}, false
	}
	return s.Fixes[len(s.Fixes)-1], true
}

// Category returns the Saffir-Simpson classification derived from the latest
// fix's sustained wind.
func (s StormTrack) Category() string {
	fix, ok := s.LatestFix()
	if !ok {
		return ""
	}
	return CategorizeWind(fix.MaxWindKt)
}

// CategorizeWind maps sustained wind in knots to a Saffir-Simpson label.
func CategorizeWind(windKt int) string {
	switch {
	case windKt < 34:
		return "Tropical Depression"
	case windKt < 64:
		return "Tropical Storm"
	case windKt < 83:
		return "Category 1 Hurricane"
	case windKt < 96:
		return "Category 2 Hurricane"
	case windKt < 113:
		return "Category 3 Hurricane"
	case windKt < 137:
		return "Category 4 Hurricane"
	default:
		return "Category 5 Hurricane"
	}
}
