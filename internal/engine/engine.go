// Package engine wires the scored county dataset to the live storm feed and
// exposes the query operations the API serves.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
	"github.com/couchcryptid/storm-threat-service/internal/observability"
	"github.com/couchcryptid/storm-threat-service/internal/stormcache"
)

var (
	// ErrNotFound means no county matched the requested identifier.
	ErrNotFound = errors.New("county not found")

	// ErrFeedNotPopulated means no storm feed fetch has ever succeeded, so
	// threat queries have nothing to assess against.
	ErrFeedNotPopulated = errors.New("storm feed not yet populated")
)

// defaultTopLimit is the list size for top-vulnerable queries when the
// caller does not specify one.
const defaultTopLimit = 10

// AlertPublisher pushes critical alert sets to an external sink.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []domain.CriticalAlertEntry, issuedAt time.Time) error
}

// Engine holds the immutable scored dataset and the live storm cache.
// Scores are computed once at construction; only the feed side changes at
// runtime.
type Engine struct {
	counties []domain.ScoredCounty
	byGEOID  map[string]int
	byName   map[string]int

	cache     *stormcache.Cache
	publisher AlertPublisher
	policy    domain.AlertPolicy

	logger  *slog.Logger
	metrics *observability.Metrics
}

// New scores the county dataset and assembles the engine. A nil publisher
// disables alert publishing.
func New(
	counties []domain.CountyRecord,
	weights domain.Weights,
	cache *stormcache.Cache,
	publisher AlertPublisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*Engine, error) {
	scorer, err := domain.NewScorer(weights, counties, logger)
	if err != nil {
		return nil, err
	}
	scored, err := scorer.ScoreAll(counties)
	if err != nil {
		return nil, fmt.Errorf("score counties: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].GEOID < scored[j].GEOID })

	byGEOID := make(map[string]int, len(scored))
	byName := make(map[string]int, len(scored))
	for i, c := range scored {
		byGEOID[c.GEOID] = i
		byName[normalizeName(c.Name)] = i
	}

	logger.Info("county dataset scored",
		"counties", len(scored),
		"weights", fmt.Sprintf("%.2f/%.2f/%.2f", weights.Hazard, weights.Social, weights.Economic),
	)

	return &Engine{
		counties:  scored,
		byGEOID:   byGEOID,
		byName:    byName,
		cache:     cache,
		publisher: publisher,
		policy:    domain.DefaultAlertPolicy(),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// ListCounties returns every scored county ordered by GEOID.
func (e *Engine) ListCounties() []domain.ScoredCounty {
	out := make([]domain.ScoredCounty, len(e.counties))
	copy(out, e.counties)
	return out
}

// GetCounty looks a county up by GEOID or by case-insensitive name. A
// trailing "County" in the name is ignored so "Miami-Dade County" and
// "miami-dade" both resolve.
func (e *Engine) GetCounty(key string) (domain.ScoredCounty, error) {
	if i, ok := e.byGEOID[key]; ok {
		return e.counties[i], nil
	}
	if i, ok := e.byName[normalizeName(key)]; ok {
		return e.counties[i], nil
	}
	return domain.ScoredCounty{}, fmt.Errorf("%w: %q", ErrNotFound, key)
}

// TopVulnerable returns the limit highest-scoring counties, composite
// descending with GEOID breaking ties. A non-positive limit selects the
// default of 10; a limit past the dataset size returns everything.
func (e *Engine) TopVulnerable(limit int) []domain.ScoredCounty {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > len(e.counties) {
		limit = len(e.counties)
	}

	ranked := make([]domain.ScoredCounty, len(e.counties))
	copy(ranked, e.counties)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score.Composite != ranked[j].Score.Composite {
			return ranked[i].Score.Composite > ranked[j].Score.Composite
		}
		return ranked[i].GEOID < ranked[j].GEOID
	})
	return ranked[:limit]
}

// Stats summarizes the score distribution across the dataset plus the
// current feed state.
type Stats struct {
	Counties        int                     `json:"counties"`
	MeanComposite   float64                 `json:"mean_composite"`
	MedianComposite float64                 `json:"median_composite"`
	StdDevComposite float64                 `json:"stddev_composite"`
	MinComposite    float64                 `json:"min_composite"`
	MaxComposite    float64                 `json:"max_composite"`
	ByCategory      map[domain.Category]int `json:"by_category"`
	TopVulnerable   []RankedCounty          `json:"top_vulnerable"`
	FeedFreshness   string                  `json:"feed_freshness"`
}

// RankedCounty is the abbreviated county reference carried in Stats.
type RankedCounty struct {
	GEOID     string  `json:"geoid"`
	Name      string  `json:"name"`
	Composite float64 `json:"composite"`
}

// SummaryStats computes distribution statistics over the scored dataset.
// StdDev uses the sample formula (n-1 divisor); a single-county dataset
// reports zero.
func (e *Engine) SummaryStats() Stats {
	_, fresh := e.cache.Current()
	stats := Stats{
		Counties:      len(e.counties),
		ByCategory:    make(map[domain.Category]int),
		FeedFreshness: fresh.String(),
	}
	if len(e.counties) == 0 {
		return stats
	}

	composites := make([]float64, 0, len(e.counties))
	sum := 0.0
	for _, c := range e.counties {
		composites = append(composites, c.Score.Composite)
		sum += c.Score.Composite
		stats.ByCategory[c.Score.Category]++
	}
	sort.Float64s(composites)

	n := len(composites)
	stats.MinComposite = composites[0]
	stats.MaxComposite = composites[n-1]
	stats.MeanComposite = sum / float64(n)
	if n%2 == 1 {
		stats.MedianComposite = composites[n/2]
	} else {
		stats.MedianComposite = (composites[n/2-1] + composites[n/2]) / 2
	}
	if n > 1 {
		ss := 0.0
		for _, v := range composites {
			d := v - stats.MeanComposite
			ss += d * d
		}
		stats.StdDevComposite = math.Sqrt(ss / float64(n-1))
	}

	for _, c := range e.TopVulnerable(defaultTopLimit) {
		stats.TopVulnerable = append(stats.TopVulnerable, RankedCounty{
			GEOID:     c.GEOID,
			Name:      c.Name,
			Composite: c.Score.Composite,
		})
	}
	return stats
}

// ActiveStorms returns the cached storm snapshot. Before the first
// successful refresh it fails with ErrFeedNotPopulated.
func (e *Engine) ActiveStorms() (stormcache.Snapshot, stormcache.Freshness, error) {
	snap, fresh := e.cache.Current()
	if fresh == stormcache.NeverFetched {
		return stormcache.Snapshot{}, fresh, ErrFeedNotPopulated
	}
	return snap, fresh, nil
}

// ActiveThreats assesses every county against the cached storm snapshot and
// returns the counties with a threat level above none. An empty result with
// a populated feed means genuinely calm conditions.
func (e *Engine) ActiveThreats() ([]domain.ThreatAssessment, stormcache.Freshness, error) {
	snap, fresh, err := e.ActiveStorms()
	if err != nil {
		return nil, fresh, err
	}

	assessments := domain.AssessThreats(e.counties, snap.Storms)
	active := make([]domain.ThreatAssessment, 0, len(assessments))
	for _, a := range assessments {
		if a.Level > domain.ThreatNone {
			active = append(active, a)
		}
	}
	return active, fresh, nil
}

// ThreatDistribution counts counties at each threat level under the cached
// snapshot, the "none" bucket included. Before the first successful refresh
// it fails with ErrFeedNotPopulated.
func (e *Engine) ThreatDistribution() (map[string]int, stormcache.Freshness, error) {
	snap, fresh, err := e.ActiveStorms()
	if err != nil {
		return nil, fresh, err
	}
	return threatDistribution(domain.AssessThreats(e.counties, snap.Storms)), fresh, nil
}

// CriticalAlerts returns the counties clearing both alert bars, ranked.
func (e *Engine) CriticalAlerts() ([]domain.CriticalAlertEntry, stormcache.Freshness, error) {
	assessments, fresh, err := e.ActiveThreats()
	if err != nil {
		return nil, fresh, err
	}
	return domain.CriticalAlerts(e.counties, assessments, e.policy), fresh, nil
}

// RefreshResult reports the outcome of a feed refresh. ThreatLevels counts
// counties per threat level and is unset when the fetch failed.
type RefreshResult struct {
	Freshness      stormcache.Freshness `json:"freshness"`
	ActiveStorms   int                  `json:"active_storms"`
	CriticalAlerts int                  `json:"critical_alerts"`
	ThreatLevels   map[string]int       `json:"threat_levels,omitempty"`
}

// RefreshStormFeed fetches the feed, recomputes alerts, and publishes them
// when a publisher is configured. A failed fetch keeps the prior snapshot
// and returns it alongside the error.
func (e *Engine) RefreshStormFeed(ctx context.Context) (RefreshResult, error) {
	start := time.Now()
	snap, fresh, err := e.cache.Refresh(ctx)
	e.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	e.observeFreshness(fresh, len(snap.Storms))

	if err != nil {
		e.metrics.FeedRefreshes.WithLabelValues("failure").Inc()
		return RefreshResult{Freshness: fresh, ActiveStorms: len(snap.Storms)}, err
	}
	e.metrics.FeedRefreshes.WithLabelValues("success").Inc()

	assessments := domain.AssessThreats(e.counties, snap.Storms)
	alerts := domain.CriticalAlerts(e.counties, assessments, e.policy)
	e.metrics.CriticalAlertCounties.Set(float64(len(alerts)))

	if e.publisher != nil && len(alerts) > 0 {
		issuedAt := assessments[0].ComputedAt
		if err := e.publisher.PublishAlerts(ctx, alerts, issuedAt); err != nil {
			e.metrics.AlertPublishErrors.Add(float64(len(alerts)))
			e.logger.Error("alert publish failed", "error", err, "alerts", len(alerts))
		} else {
			e.metrics.AlertsPublished.Add(float64(len(alerts)))
		}
	}

	return RefreshResult{
		Freshness:      fresh,
		ActiveStorms:   len(snap.Storms),
		CriticalAlerts: len(alerts),
		ThreatLevels:   threatDistribution(assessments),
	}, nil
}

// CheckReadiness reports whether the engine can serve. The static dataset
// is loaded at construction, so readiness only requires a non-empty county
// set; threat endpoints degrade independently via ErrFeedNotPopulated.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if len(e.counties) == 0 {
		return errors.New("county dataset is empty")
	}
	return nil
}

func (e *Engine) observeFreshness(fresh stormcache.Freshness, activeStorms int) {
	if fresh == stormcache.Stale {
		e.metrics.FeedStale.Set(1)
	} else {
		e.metrics.FeedStale.Set(0)
	}
	if fresh != stormcache.NeverFetched {
		e.metrics.ActiveStorms.Set(float64(activeStorms))
	}
}

func threatDistribution(assessments []domain.ThreatAssessment) map[string]int {
	dist := make(map[string]int)
	for _, a := range assessments {
		dist[a.Level.String()]++
	}
	return dist
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, " county")
	return strings.TrimSpace(name)
}
