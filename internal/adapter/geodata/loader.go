// Package geodata loads the processed county dataset from disk. The dataset
// is a GeoJSON FeatureCollection produced by the ingest command, one feature
// per county with the scoring indicators attached as properties.
package geodata

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

// Load reads the county GeoJSON file at path and returns one record per
// feature. Centroids are derived from the boundary geometry rather than
// trusted from properties, so a stale ingest cannot ship a centroid that
// disagrees with its polygon.
func Load(path string, logger *slog.Logger) ([]domain.CountyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read county dataset: %w", err)
	}
	return Parse(data, logger)
}

// Parse decodes a county FeatureCollection from raw GeoJSON bytes.
func Parse(data []byte, logger *slog.Logger) ([]domain.CountyRecord, error) {
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode county dataset: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("county dataset has no features")
	}

	counties := make([]domain.CountyRecord, 0, len(fc.Features))
	seen := make(map[string]bool, len(fc.Features))
	for i, f := range fc.Features {
		county, err := featureToCounty(f, logger)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if seen[county.GEOID] {
			return nil, fmt.Errorf("duplicate GEOID %s", county.GEOID)
		}
		seen[county.GEOID] = true
		counties = append(counties, county)
	}
	return counties, nil
}

func featureToCounty(f *geojson.Feature, logger *slog.Logger) (domain.CountyRecord, error) {
	props := properties(f.Properties)

	geoid, err := props.str("geoid")
	if err != nil {
		return domain.CountyRecord{}, err
	}
	name, err := props.str("name")
	if err != nil {
		return domain.CountyRecord{}, fmt.Errorf("county %s: %w", geoid, err)
	}
	population, err := props.int("population")
	if err != nil {
		return domain.CountyRecord{}, fmt.Errorf("county %s: %w", geoid, err)
	}
	if population <= 0 {
		return domain.CountyRecord{}, fmt.Errorf("county %s: population must be positive, got %d", geoid, population)
	}

	centroid, boundary, err := deriveCentroid(f.Geometry, geoid, logger)
	if err != nil {
		return domain.CountyRecord{}, err
	}

	county := domain.CountyRecord{
		GEOID:       geoid,
		Name:        name,
		Centroid:    centroid,
		Boundary:    boundary,
		Population:  population,
		GDPMillions: props.floatPtr("gdp_millions"),
		SVIThemes:   props.floats("svi_themes"),
		RiskRating:  domain.RiskRating(props.strOr("risk_rating", "")),
		EAL:         props.floatPtr("eal"),
		StormCount:  int(props.intOr("storm_count", 0)),
		MaxWindKt:   int(props.intOr("max_wind_kt", 0)),
	}
	return county, nil
}

// deriveCentroid computes the area centroid of the boundary and re-encodes
// the geometry for downstream serving. For a multipolygon the centroid of
// the largest member is used, which keeps island counties anchored to their
// mainland mass.
func deriveCentroid(g geom.T, geoid string, logger *slog.Logger) (domain.Geo, []byte, error) {
	if g == nil {
		return domain.Geo{}, nil, fmt.Errorf("county %s: missing boundary geometry", geoid)
	}

	var polygon *geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polygon = t
	case *geom.MultiPolygon:
		polygon = largestPolygon(t)
	default:
		return domain.Geo{}, nil, fmt.Errorf("county %s: unsupported geometry type %T", geoid, g)
	}
	if polygon == nil || polygon.NumLinearRings() == 0 {
		return domain.Geo{}, nil, fmt.Errorf("county %s: empty boundary geometry", geoid)
	}

	centroid, err := xy.Centroid(polygon)
	if err != nil {
		return domain.Geo{}, nil, fmt.Errorf("county %s: compute centroid: %w", geoid, err)
	}

	// Concave coastlines can push the area centroid outside the ring. The
	// centroid is still the right distance anchor, so this only logs.
	ring := polygon.LinearRing(0)
	if !xy.IsPointInRing(polygon.Layout(), centroid, ring.FlatCoords()) {
		logger.Warn("county centroid falls outside boundary ring",
			"geoid", geoid,
			"lat", centroid.Y(),
			"lon", centroid.X(),
		)
	}

	boundary, err := geojson.Marshal(g)
	if err != nil {
		return domain.Geo{}, nil, fmt.Errorf("county %s: encode boundary: %w", geoid, err)
	}

	// GeoJSON coordinate order is lon, lat.
	return domain.Geo{Lat: centroid.Y(), Lon: centroid.X()}, boundary, nil
}

func largestPolygon(mp *geom.MultiPolygon) *geom.Polygon {
	var best *geom.Polygon
	bestArea := -1.0
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if area := p.Area(); area > bestArea {
			best, bestArea = p, area
		}
	}
	return best
}

// properties wraps the loosely typed GeoJSON property map with checked
// accessors.
type properties map[string]any

func (p properties) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing property %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("property %q must be a non-empty string", key)
	}
	return s, nil
}

func (p properties) strOr(key, fallback string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return fallback
}

func (p properties) int(key string) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing property %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("property %q must be a number", key)
	}
	return int64(f), nil
}

func (p properties) intOr(key string, fallback int64) int64 {
	if f, ok := p[key].(float64); ok {
		return int64(f)
	}
	return fallback
}

func (p properties) floatPtr(key string) *float64 {
	if f, ok := p[key].(float64); ok {
		return &f
	}
	return nil
}

func (p properties) floats(key string) []float64 {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}
