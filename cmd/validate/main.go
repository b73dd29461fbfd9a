// Command validate performs integrity checks on the processed county
// dataset: feature counts, GEOID shape, indicator ranges, boundary geometry,
// and scoring sanity under the default weights.
//
// Usage:
//
//	go run ./cmd/validate -data data/florida_counties.geojson
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/storm-threat-service/internal/adapter/geodata"
	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

// Florida bounding box, with slack for offshore centroids in the Keys.
const (
	minLat = 24.0
	maxLat = 31.5
	minLon = -88.0
	maxLon = -79.5
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataPath := flag.String("data", "data/florida_counties.geojson", "path to processed county GeoJSON")
	expectCounties := flag.Int("expect-counties", 67, "expected number of county features")
	flag.Parse()

	if code := run(*dataPath, *expectCounties); code != 0 {
		os.Exit(code)
	}
}

func run(dataPath string, expectCounties int) int {
	fmt.Println("=== County Dataset Integrity Validation ===")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	counties, err := geodata.Load(dataPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load dataset: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateShape(counties, expectCounties),
		validateIndicators(counties),
		validateGeometry(counties),
		validateScoring(counties),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("PASS  %s\n", p.name)
			continue
		}
		allPassed = false
		fmt.Printf("FAIL  %s\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("      - %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	fmt.Println()
	fmt.Println("All phases passed.")
	return 0
}

func validateShape(counties []domain.CountyRecord, expect int) *phase {
	p := &phase{name: "dataset shape"}

	if len(counties) != expect {
		p.errorf("expected %d counties, found %d", expect, len(counties))
	}

	names := make(map[string]string, len(counties))
	for _, c := range counties {
		if len(c.GEOID) != 5 || !strings.HasPrefix(c.GEOID, "12") {
			p.errorf("county %q: GEOID %q is not a Florida county FIPS code", c.Name, c.GEOID)
		}
		key := strings.ToLower(c.Name)
		if prev, dup := names[key]; dup {
			p.errorf("duplicate county name %q (GEOIDs %s, %s)", c.Name, prev, c.GEOID)
		}
		names[key] = c.GEOID
	}
	return p
}

func validateIndicators(counties []domain.CountyRecord) *phase {
	p := &phase{name: "indicator ranges"}

	var missingHazard, missingSocial, missingEconomic int
	for _, c := range counties {
		if c.Population <= 0 {
			p.errorf("county %s: non-positive population %d", c.GEOID, c.Population)
		}
		if c.EAL != nil && *c.EAL < 0 {
			p.errorf("county %s: negative EAL %f", c.GEOID, *c.EAL)
		}
		if c.EAL == nil {
			if _, ok := c.RiskRating.Value(); !ok {
				missingHazard++
			}
		}
		if len(c.SVIThemes) == 0 {
			missingSocial++
		}
		for i, theme := range c.SVIThemes {
			if theme < 0 || theme > 1 {
				p.errorf("county %s: SVI theme %d out of range: %f", c.GEOID, i, theme)
			}
		}
		if c.GDPMillions == nil {
			missingEconomic++
		} else if *c.GDPMillions <= 0 {
			p.errorf("county %s: non-positive GDP %f", c.GEOID, *c.GDPMillions)
		}
	}

	// Median substitution tolerates gaps, but a majority-missing indicator
	// means the source join is broken.
	half := len(counties) / 2
	if missingHazard > half {
		p.errorf("hazard indicator missing for %d of %d counties", missingHazard, len(counties))
	}
	if missingSocial > half {
		p.errorf("social indicator missing for %d of %d counties", missingSocial, len(counties))
	}
	if missingEconomic > half {
		p.errorf("economic indicator missing for %d of %d counties", missingEconomic, len(counties))
	}
	return p
}

func validateGeometry(counties []domain.CountyRecord) *phase {
	p := &phase{name: "boundary geometry"}

	for _, c := range counties {
		if len(c.Boundary) == 0 {
			p.errorf("county %s: missing boundary", c.GEOID)
			continue
		}
		if c.Centroid.Lat < minLat || c.Centroid.Lat > maxLat ||
			c.Centroid.Lon < minLon || c.Centroid.Lon > maxLon {
			p.errorf("county %s: centroid (%.4f, %.4f) outside Florida bounds",
				c.GEOID, c.Centroid.Lat, c.Centroid.Lon)
		}
	}
	return p
}

func validateScoring(counties []domain.CountyRecord) *phase {
	p := &phase{name: "scoring sanity"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scorer, err := domain.NewScorer(domain.DefaultWeights(), counties, logger)
	if err != nil {
		p.errorf("build scorer: %v", err)
		return p
	}
	scored, err := scorer.ScoreAll(counties)
	if err != nil {
		p.errorf("score dataset: %v", err)
		return p
	}

	byCategory := make(map[domain.Category]int)
	minScore, maxScore := 1.0, 0.0
	for _, c := range scored {
		composite := c.Score.Composite
		if composite < 0 || composite > 1 {
			p.errorf("county %s: composite %f out of range", c.GEOID, composite)
		}
		if composite < minScore {
			minScore = composite
		}
		if composite > maxScore {
			maxScore = composite
		}
		byCategory[c.Score.Category]++
	}

	// Min-max normalization pins the extremes, so a flat distribution
	// means the indicators never made it into the dataset.
	if len(scored) > 1 && maxScore-minScore < 0.01 {
		p.errorf("composite scores are flat (min %f, max %f)", minScore, maxScore)
	}

	fmt.Printf("score range: %.3f .. %.3f\n", minScore, maxScore)
	for _, cat := range []domain.Category{
		domain.CategoryCritical, domain.CategoryHigh, domain.CategoryModerate,
		domain.CategoryLow, domain.CategoryVeryLow,
	} {
		fmt.Printf("  %-9s %d\n", cat, byCategory[cat])
	}
	return p
}
