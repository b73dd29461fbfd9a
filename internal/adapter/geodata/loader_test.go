package geodata

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// squareFeature builds a 1x1 degree square county centered on (lat, lon).
func squareFeature(geoid, name string, lat, lon float64, extra string) string {
	ring := fmt.Sprintf("[[%[1]f,%[2]f],[%[3]f,%[2]f],[%[3]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[2]f]]",
		lon-0.5, lat-0.5, lon+0.5, lat+0.5)
	props := fmt.Sprintf(`{"geoid": %q, "name": %q, "population": 100000%s}`, geoid, name, extra)
	return fmt.Sprintf(`{
		"type": "Feature",
		"properties": %s,
		"geometry": {"type": "Polygon", "coordinates": [%s]}
	}`, props, ring)
}

func collection(features ...string) []byte {
	out := `{"type": "FeatureCollection", "features": [`
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return []byte(out + `]}`)
}

func TestParse_FullFeature(t *testing.T) {
	data := collection(squareFeature("12086", "Miami-Dade", 25.6, -80.5,
		`, "gdp_millions": 150000.0, "svi_themes": [0.8, 0.7, 0.9, 0.6],
		 "risk_rating": "Very High", "eal": 2500000.0,
		 "storm_count": 12, "max_wind_kt": 145`))

	counties, err := Parse(data, testLogger())
	require.NoError(t, err)
	require.Len(t, counties, 1)

	c := counties[0]
	assert.Equal(t, "12086", c.GEOID)
	assert.Equal(t, "Miami-Dade", c.Name)
	assert.Equal(t, int64(100000), c.Population)
	assert.InDelta(t, 25.6, c.Centroid.Lat, 1e-6)
	assert.InDelta(t, -80.5, c.Centroid.Lon, 1e-6)
	require.NotNil(t, c.GDPMillions)
	assert.InDelta(t, 150000.0, *c.GDPMillions, 1e-9)
	assert.Equal(t, []float64{0.8, 0.7, 0.9, 0.6}, c.SVIThemes)
	assert.Equal(t, domain.RiskRating("Very High"), c.RiskRating)
	require.NotNil(t, c.EAL)
	assert.InDelta(t, 2500000.0, *c.EAL, 1e-9)
	assert.Equal(t, 12, c.StormCount)
	assert.Equal(t, 145, c.MaxWindKt)
	assert.NotEmpty(t, c.Boundary)
}

func TestParse_OptionalIndicatorsAbsent(t *testing.T) {
	data := collection(squareFeature("12003", "Baker", 30.3, -82.3, ""))

	counties, err := Parse(data, testLogger())
	require.NoError(t, err)
	require.Len(t, counties, 1)

	c := counties[0]
	assert.Nil(t, c.GDPMillions)
	assert.Nil(t, c.EAL)
	assert.Nil(t, c.SVIThemes)
	assert.Equal(t, domain.RiskRating(""), c.RiskRating)
}

func TestParse_RejectsDuplicateGEOID(t *testing.T) {
	data := collection(
		squareFeature("12086", "Miami-Dade", 25.6, -80.5, ""),
		squareFeature("12086", "Clone", 26.6, -81.5, ""),
	)

	_, err := Parse(data, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate GEOID 12086")
}

func TestParse_RejectsMissingRequiredProperty(t *testing.T) {
	data := collection(`{
		"type": "Feature",
		"properties": {"name": "Nameless", "population": 5000},
		"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
	}`)

	_, err := Parse(data, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing property "geoid"`)
}

func TestParse_RejectsNonPositivePopulation(t *testing.T) {
	data := collection(`{
		"type": "Feature",
		"properties": {"geoid": "12086", "name": "Miami-Dade", "population": 0},
		"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
	}`)

	_, err := Parse(data, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "population must be positive")
}

func TestParse_RejectsNonPolygonGeometry(t *testing.T) {
	data := collection(`{
		"type": "Feature",
		"properties": {"geoid": "12086", "name": "Miami-Dade", "population": 5000},
		"geometry": {"type": "Point", "coordinates": [-80.5, 25.6]}
	}`)

	_, err := Parse(data, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported geometry type")
}

func TestParse_MultiPolygonUsesLargestMember(t *testing.T) {
	// One large square at (25, -81) and a small islet far away. The
	// centroid must come from the large member.
	data := collection(`{
		"type": "Feature",
		"properties": {"geoid": "12087", "name": "Monroe", "population": 80000},
		"geometry": {"type": "MultiPolygon", "coordinates": [
			[[[-81.5,24.5],[-80.5,24.5],[-80.5,25.5],[-81.5,25.5],[-81.5,24.5]]],
			[[[-83.0,24.0],[-82.99,24.0],[-82.99,24.01],[-83.0,24.01],[-83.0,24.0]]]
		]}
	}`)

	counties, err := Parse(data, testLogger())
	require.NoError(t, err)
	require.Len(t, counties, 1)
	assert.InDelta(t, 25.0, counties[0].Centroid.Lat, 1e-6)
	assert.InDelta(t, -81.0, counties[0].Centroid.Lon, 1e-6)
}

func TestParse_EmptyCollection(t *testing.T) {
	_, err := Parse([]byte(`{"type": "FeatureCollection", "features": []}`), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no features")
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counties.geojson")
	data := collection(squareFeature("12086", "Miami-Dade", 25.6, -80.5, ""))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	counties, err := Load(path, testLogger())
	require.NoError(t, err)
	assert.Len(t, counties, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.geojson"), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read county dataset")
}
