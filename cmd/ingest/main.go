// Command ingest builds the processed county dataset the server loads. It
// joins TIGER county boundaries with BEA GDP, CDC SVI, FEMA NRI, and IBTrACS
// hurricane track extracts, all keyed by county FIPS, and writes one GeoJSON
// FeatureCollection.
//
// Usage:
//
//	go run ./cmd/ingest \
//	  -tiger data/raw/tl_2024_us_county.shp \
//	  -gdp data/raw/florida_gdp_2023.csv \
//	  -svi data/raw/florida_svi_2022.csv \
//	  -nri data/raw/fema_nri_florida.csv \
//	  -hurricanes data/raw/florida_hurricanes.csv \
//	  -out data/florida_counties.geojson
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

const floridaStateFP = "12"

// trackWindowYears is how far back hurricane exposure counts look.
const trackWindowYears = 20

func main() {
	tigerPath := flag.String("tiger", "", "path to TIGER county shapefile (.shp)")
	gdpPath := flag.String("gdp", "", "path to BEA county GDP CSV")
	sviPath := flag.String("svi", "", "path to CDC SVI county CSV")
	nriPath := flag.String("nri", "", "path to FEMA NRI county CSV")
	hurricanesPath := flag.String("hurricanes", "", "path to IBTrACS track extract CSV")
	outPath := flag.String("out", "data/florida_counties.geojson", "output GeoJSON path")
	flag.Parse()

	if *tigerPath == "" || *gdpPath == "" || *sviPath == "" || *nriPath == "" || *hurricanesPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(*tigerPath, *gdpPath, *sviPath, *nriPath, *hurricanesPath, *outPath, logger); err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(tigerPath, gdpPath, sviPath, nriPath, hurricanesPath, outPath string, logger *slog.Logger) error {
	boundaries, err := loadBoundaries(tigerPath)
	if err != nil {
		return err
	}
	logger.Info("loaded county boundaries", "counties", len(boundaries))

	gdp, err := loadGDP(gdpPath)
	if err != nil {
		return err
	}
	svi, err := loadSVI(sviPath)
	if err != nil {
		return err
	}
	nri, err := loadNRI(nriPath)
	if err != nil {
		return err
	}
	tracks, err := loadTrackPoints(hurricanesPath)
	if err != nil {
		return err
	}
	logger.Info("loaded indicator tables",
		"gdp", len(gdp), "svi", len(svi), "nri", len(nri), "track_points", len(tracks),
	)

	fc := &geojson.FeatureCollection{}
	cutoff := time.Now().AddDate(-trackWindowYears, 0, 0)
	for _, b := range boundaries {
		props := map[string]any{
			"geoid": b.geoid,
			"name":  b.name,
		}

		s, ok := svi[b.geoid]
		if !ok {
			logger.Warn("county missing SVI row", "geoid", b.geoid, "name", b.name)
		} else {
			props["population"] = s.population
			if len(s.themes) > 0 {
				themes := make([]any, len(s.themes))
				for i, v := range s.themes {
					themes[i] = v
				}
				props["svi_themes"] = themes
			}
		}

		if g, ok := gdp[b.geoid]; ok {
			props["gdp_millions"] = g
		} else {
			logger.Warn("county missing GDP row", "geoid", b.geoid, "name", b.name)
		}

		if n, ok := nri[b.geoid]; ok {
			if n.rating != "" {
				props["risk_rating"] = n.rating
			}
			if n.eal != nil {
				props["eal"] = *n.eal
			}
		} else {
			logger.Warn("county missing NRI row", "geoid", b.geoid, "name", b.name)
		}

		count, maxWind := trackExposure(b.geometry, tracks, cutoff)
		props["storm_count"] = count
		props["max_wind_kt"] = maxWind

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         b.geoid,
			Geometry:   b.geometry,
			Properties: props,
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode feature collection: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	logger.Info("wrote processed dataset", "path", outPath, "counties", len(fc.Features))
	return nil
}

// boundary is one Florida county polygon from the TIGER shapefile.
type boundary struct {
	geoid    string
	name     string
	geometry *geom.MultiPolygon
}

func loadBoundaries(path string) ([]boundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	stateIdx, ok := fieldIdx["STATEFP"]
	if !ok {
		return nil, fmt.Errorf("shapefile missing STATEFP field")
	}
	geoidIdx, ok := fieldIdx["GEOID"]
	if !ok {
		return nil, fmt.Errorf("shapefile missing GEOID field")
	}
	nameIdx, ok := fieldIdx["NAME"]
	if !ok {
		return nil, fmt.Errorf("shapefile missing NAME field")
	}

	var out []boundary
	for reader.Next() {
		if strings.TrimSpace(reader.Attribute(stateIdx)) != floridaStateFP {
			continue
		}
		_, shape := reader.Shape()
		polygon, ok := shape.(*shp.Polygon)
		if !ok || polygon == nil {
			continue
		}
		mp := polygonToMultiPolygon(polygon)
		if mp == nil {
			continue
		}
		out = append(out, boundary{
			geoid:    strings.TrimSpace(reader.Attribute(geoidIdx)),
			name:     strings.TrimSpace(reader.Attribute(nameIdx)),
			geometry: mp,
		})
	}
	return out, nil
}

// polygonToMultiPolygon converts a shapefile polygon to a geom.MultiPolygon,
// treating each part as a separate single-ring polygon.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// nriRow carries the hazard indicators for one county.
type nriRow struct {
	rating string
	eal    *float64
}

// sviRow carries population and the four SVI theme percentiles.
type sviRow struct {
	population int64
	themes     []float64
}

// loadGDP reads the BEA extract. GDP_2023 is in thousands of dollars;
// the dataset stores millions.
func loadGDP(path string) (map[string]float64, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	fipsIdx := columnIndex(header, "FIPS", "COUNTY_FIPS")
	gdpIdx := columnIndex(header, "GDP_2023")
	if fipsIdx < 0 || gdpIdx < 0 {
		return nil, fmt.Errorf("%s: missing FIPS or GDP_2023 column", path)
	}

	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		fips := normalizeFIPS(row[fipsIdx])
		if fips == "" {
			continue
		}
		thousands, err := strconv.ParseFloat(strings.ReplaceAll(row[gdpIdx], ",", ""), 64)
		if err != nil {
			continue
		}
		out[fips] = thousands / 1000
	}
	return out, nil
}

func loadSVI(path string) (map[string]sviRow, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	fipsIdx := columnIndex(header, "FIPS", "STCNTY")
	popIdx := columnIndex(header, "E_TOTPOP")
	if fipsIdx < 0 || popIdx < 0 {
		return nil, fmt.Errorf("%s: missing FIPS or E_TOTPOP column", path)
	}
	themeIdx := []int{
		columnIndex(header, "RPL_THEME1"),
		columnIndex(header, "RPL_THEME2"),
		columnIndex(header, "RPL_THEME3"),
		columnIndex(header, "RPL_THEME4"),
	}

	out := make(map[string]sviRow, len(rows))
	for _, row := range rows {
		fips := normalizeFIPS(row[fipsIdx])
		if fips == "" {
			continue
		}
		pop, err := strconv.ParseFloat(row[popIdx], 64)
		if err != nil {
			continue
		}
		r := sviRow{population: int64(pop)}
		for _, idx := range themeIdx {
			if idx < 0 {
				continue
			}
			// SVI publishes -999 for suppressed values.
			if v, err := strconv.ParseFloat(row[idx], 64); err == nil && v >= 0 {
				r.themes = append(r.themes, v)
			}
		}
		if len(r.themes) != 4 {
			r.themes = nil
		}
		out[fips] = r
	}
	return out, nil
}

func loadNRI(path string) (map[string]nriRow, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	fipsIdx := columnIndex(header, "FIPS", "STCOFIPS")
	ratingIdx := columnIndex(header, "HRCN_RISKR")
	ealIdx := columnIndex(header, "HRCN_EALT", "HRCN_EEAL")
	if fipsIdx < 0 {
		return nil, fmt.Errorf("%s: missing FIPS column", path)
	}

	out := make(map[string]nriRow, len(rows))
	for _, row := range rows {
		fips := normalizeFIPS(row[fipsIdx])
		if fips == "" {
			continue
		}
		r := nriRow{}
		if ratingIdx >= 0 {
			r.rating = strings.TrimSpace(row[ratingIdx])
		}
		if ealIdx >= 0 {
			if v, err := strconv.ParseFloat(row[ealIdx], 64); err == nil && v >= 0 {
				r.eal = &v
			}
		}
		out[fips] = r
	}
	return out, nil
}

// trackPoint is one IBTrACS position report.
type trackPoint struct {
	time   time.Time
	lat    float64
	lon    float64
	windKt int
}

func loadTrackPoints(path string) ([]trackPoint, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	timeIdx := columnIndex(header, "ISO_TIME")
	latIdx := columnIndex(header, "LAT")
	lonIdx := columnIndex(header, "LON")
	windIdx := columnIndex(header, "USA_WIND")
	if timeIdx < 0 || latIdx < 0 || lonIdx < 0 {
		return nil, fmt.Errorf("%s: missing ISO_TIME, LAT, or LON column", path)
	}

	out := make([]trackPoint, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse("2006-01-02 15:04:05", row[timeIdx])
		if err != nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(row[latIdx], 64)
		lon, err2 := strconv.ParseFloat(row[lonIdx], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		p := trackPoint{time: ts, lat: lat, lon: lon}
		if windIdx >= 0 {
			if w, err := strconv.ParseFloat(row[windIdx], 64); err == nil {
				p.windKt = int(w)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// trackExposure counts the distinct track points inside the county within
// the window and returns the strongest wind among them.
func trackExposure(mp *geom.MultiPolygon, points []trackPoint, cutoff time.Time) (count, maxWind int) {
	for _, p := range points {
		if p.time.Before(cutoff) {
			continue
		}
		if !pointInMultiPolygon(mp, p.lon, p.lat) {
			continue
		}
		count++
		if p.windKt > maxWind {
			maxWind = p.windKt
		}
	}
	return count, maxWind
}

func pointInMultiPolygon(mp *geom.MultiPolygon, lon, lat float64) bool {
	coord := geom.Coord{lon, lat}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(poly.Layout(), coord, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < poly.NumLinearRings(); r++ {
			if xy.IsPointInRing(poly.Layout(), coord, poly.LinearRing(r).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%s: no data rows", path)
	}
	return records[1:], records[0], nil
}

func columnIndex(header []string, names ...string) int {
	for _, name := range names {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				return i
			}
		}
	}
	return -1
}

// normalizeFIPS pads 3-digit county codes with the Florida state prefix and
// zero-fills 5-digit codes.
func normalizeFIPS(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len(v) <= 3 {
		return floridaStateFP + strings.Repeat("0", 3-len(v)) + v
	}
	if len(v) < 5 {
		return strings.Repeat("0", 5-len(v)) + v
	}
	return v
}
