package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
	"github.com/couchcryptid/storm-threat-service/internal/observability"
	"github.com/couchcryptid/storm-threat-service/internal/stormcache"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func floatPtr(f float64) *float64 { return &f }

// fixtureCounties spans the normalization bounds so the composites land on
// known values: Miami-Dade 0.97 Critical, Orange mid, Brevard 0.03 Very Low.
func fixtureCounties() []domain.CountyRecord {
	return []domain.CountyRecord{
		{
			GEOID: "12095", Name: "Orange County",
			Centroid:   domain.Geo{Lat: 28.5, Lon: -81.4},
			Population: 1_400_000, GDPMillions: floatPtr(84_000),
			SVIThemes: []float64{0.5, 0.5, 0.5, 0.5},
			EAL:       floatPtr(5_000_000),
		},
		{
			GEOID: "12086", Name: "Miami-Dade County",
			Centroid:   domain.Geo{Lat: 25.6, Lon: -80.3},
			Population: 2_700_000, GDPMillions: floatPtr(27_000),
			SVIThemes: []float64{0.9, 0.9, 0.9, 0.9},
			EAL:       floatPtr(10_000_000),
		},
		{
			GEOID: "12009", Name: "Brevard County",
			Centroid:   domain.Geo{Lat: 28.3, Lon: -80.7},
			Population: 600_000, GDPMillions: floatPtr(66_000),
			SVIThemes: []float64{0.1, 0.1, 0.1, 0.1},
			EAL:       floatPtr(0),
		},
	}
}

type feedStub struct {
	mu     sync.Mutex
	storms []domain.StormTrack
	err    error
}

func (f *feedStub) FetchActiveStorms(ctx context.Context) ([]domain.StormTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.StormTrack(nil), f.storms...), nil
}

func (f *feedStub) set(storms []domain.StormTrack, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storms, f.err = storms, err
}

type publisherStub struct {
	mu        sync.Mutex
	published [][]domain.CriticalAlertEntry
	err       error
}

func (p *publisherStub) PublishAlerts(ctx context.Context, alerts []domain.CriticalAlertEntry, issuedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, alerts)
	return nil
}

func (p *publisherStub) calls() [][]domain.CriticalAlertEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

func testEngine(t *testing.T, feed *feedStub, publisher AlertPublisher) *Engine {
	t.Helper()
	cache := stormcache.New(feed, 5*time.Minute, time.Second, discardLogger())
	eng, err := New(fixtureCounties(), domain.DefaultWeights(), cache, publisher,
		discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return eng
}

// offshoreStorm sits ~25 km from the Miami-Dade centroid.
func offshoreStorm(windKt int) domain.StormTrack {
	return domain.StormTrack{
		ID:   "al092025",
		Name: "MILTON",
		Fixes: []domain.Fix{{
			Time: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
			Lat:  25.8, Lon: -80.2, MaxWindKt: windKt,
		}},
	}
}

func TestNew_RejectsInvalidWeights(t *testing.T) {
	cache := stormcache.New(&feedStub{}, time.Minute, time.Second, discardLogger())
	_, err := New(fixtureCounties(), domain.Weights{Hazard: 1.5}, cache, nil,
		discardLogger(), observability.NewMetricsForTesting())
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)
}

func TestListCounties_OrderedByGEOID(t *testing.T) {
	eng := testEngine(t, &feedStub{}, nil)

	counties := eng.ListCounties()
	require.Len(t, counties, 3)
	assert.Equal(t, "12009", counties[0].GEOID)
	assert.Equal(t, "12086", counties[1].GEOID)
	assert.Equal(t, "12095", counties[2].GEOID)
}

func TestGetCounty(t *testing.T) {
	eng := testEngine(t, &feedStub{}, nil)

	t.Run("by geoid", func(t *testing.T) {
		c, err := eng.GetCounty("12086")
		require.NoError(t, err)
		assert.Equal(t, "Miami-Dade County", c.Name)
	})

	t.Run("by name case-insensitive", func(t *testing.T) {
		c, err := eng.GetCounty("miami-dade")
		require.NoError(t, err)
		assert.Equal(t, "12086", c.GEOID)
	})

	t.Run("by full name with suffix", func(t *testing.T) {
		c, err := eng.GetCounty("Brevard County")
		require.NoError(t, err)
		assert.Equal(t, "12009", c.GEOID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := eng.GetCounty("99999")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTopVulnerable(t *testing.T) {
	eng := testEngine(t, &feedStub{}, nil)

	t.Run("ordered by composite descending", func(t *testing.T) {
		top := eng.TopVulnerable(2)
		require.Len(t, top, 2)
		assert.Equal(t, "12086", top[0].GEOID)
		assert.Equal(t, "12095", top[1].GEOID)
		assert.Greater(t, top[0].Score.Composite, top[1].Score.Composite)
	})

	t.Run("limit clamped to dataset size", func(t *testing.T) {
		assert.Len(t, eng.TopVulnerable(50), 3)
	})

	t.Run("non-positive limit uses default", func(t *testing.T) {
		assert.Len(t, eng.TopVulnerable(0), 3)
		assert.Len(t, eng.TopVulnerable(-1), 3)
	})
}

func TestSummaryStats(t *testing.T) {
	eng := testEngine(t, &feedStub{}, nil)

	// Composites are {0.03, 0.50, 0.97}: mean and median 0.50, sample
	// stddev exactly 0.47.
	stats := eng.SummaryStats()
	assert.Equal(t, 3, stats.Counties)
	assert.InDelta(t, 0.03, stats.MinComposite, 1e-9)
	assert.InDelta(t, 0.97, stats.MaxComposite, 1e-9)
	assert.InDelta(t, 0.50, stats.MeanComposite, 1e-9)
	assert.InDelta(t, 0.50, stats.MedianComposite, 1e-9)
	assert.InDelta(t, 0.47, stats.StdDevComposite, 1e-9)
	assert.Equal(t, 1, stats.ByCategory[domain.CategoryCritical])
	assert.Equal(t, 1, stats.ByCategory[domain.CategoryVeryLow])

	require.Len(t, stats.TopVulnerable, 3)
	assert.Equal(t, "12086", stats.TopVulnerable[0].GEOID)
	assert.InDelta(t, 0.97, stats.TopVulnerable[0].Composite, 1e-9)
	assert.Equal(t, "12009", stats.TopVulnerable[2].GEOID)

	assert.Equal(t, "never_fetched", stats.FeedFreshness)
}

func TestSummaryStats_FeedFreshnessAfterRefresh(t *testing.T) {
	feed := &feedStub{}
	feed.set(nil, nil)
	eng := testEngine(t, feed, nil)

	_, err := eng.RefreshStormFeed(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh", eng.SummaryStats().FeedFreshness)
}

func TestActiveThreats_BeforeFirstRefresh(t *testing.T) {
	eng := testEngine(t, &feedStub{}, nil)

	_, fresh, err := eng.ActiveThreats()
	assert.ErrorIs(t, err, ErrFeedNotPopulated)
	assert.Equal(t, stormcache.NeverFetched, fresh)
}

func TestThreatDistribution(t *testing.T) {
	feed := &feedStub{}
	eng := testEngine(t, feed, nil)

	_, _, err := eng.ThreatDistribution()
	assert.ErrorIs(t, err, ErrFeedNotPopulated)

	feed.set([]domain.StormTrack{offshoreStorm(120)}, nil)
	_, err = eng.RefreshStormFeed(context.Background())
	require.NoError(t, err)

	dist, fresh, err := eng.ThreatDistribution()
	require.NoError(t, err)
	assert.Equal(t, stormcache.Fresh, fresh)
	assert.Equal(t, map[string]int{"extreme": 1, "moderate": 2}, dist)
}

func TestRefreshStormFeed_AssessesAndPublishes(t *testing.T) {
	feed := &feedStub{}
	feed.set([]domain.StormTrack{offshoreStorm(120)}, nil)
	publisher := &publisherStub{}
	eng := testEngine(t, feed, publisher)

	result, err := eng.RefreshStormFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stormcache.Fresh, result.Freshness)
	assert.Equal(t, 1, result.ActiveStorms)
	assert.Equal(t, 1, result.CriticalAlerts)
	// Miami-Dade sits ~25 km out, Brevard and Orange around 280 and 320 km.
	assert.Equal(t, map[string]int{"extreme": 1, "moderate": 2}, result.ThreatLevels)

	calls := publisher.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	assert.Equal(t, "12086", calls[0][0].GEOID)
	assert.Equal(t, domain.ThreatExtreme, calls[0][0].Level)

	threats, fresh, err := eng.ActiveThreats()
	require.NoError(t, err)
	assert.Equal(t, stormcache.Fresh, fresh)
	require.Len(t, threats, 3)
}

func TestRefreshStormFeed_NoAlertsSkipsPublish(t *testing.T) {
	feed := &feedStub{}
	feed.set(nil, nil)
	publisher := &publisherStub{}
	eng := testEngine(t, feed, publisher)

	result, err := eng.RefreshStormFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.CriticalAlerts)
	assert.Equal(t, map[string]int{"none": 3}, result.ThreatLevels)
	assert.Empty(t, publisher.calls())

	// A populated but quiet feed yields zero active threats, distinct from
	// the never-fetched error state.
	threats, fresh, err := eng.ActiveThreats()
	require.NoError(t, err)
	assert.Equal(t, stormcache.Fresh, fresh)
	assert.Empty(t, threats)
}

func TestRefreshStormFeed_FetchFailure(t *testing.T) {
	feed := &feedStub{}
	feed.set(nil, errors.New("nhc unreachable"))
	eng := testEngine(t, feed, nil)

	_, err := eng.RefreshStormFeed(context.Background())
	assert.ErrorIs(t, err, stormcache.ErrFetchFailed)

	_, _, err = eng.ActiveThreats()
	assert.ErrorIs(t, err, ErrFeedNotPopulated)
}

func TestCriticalAlerts_ConjunctionAcrossEngine(t *testing.T) {
	feed := &feedStub{}
	// Storm near Brevard, the lowest-scoring county. Distance is within
	// the extreme band but Brevard's category stays Very Low.
	feed.set([]domain.StormTrack{{
		ID: "al112025", Name: "NADINE",
		Fixes: []domain.Fix{{
			Time: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
			Lat:  28.4, Lon: -80.6, MaxWindKt: 100,
		}},
	}}, nil)
	eng := testEngine(t, feed, nil)

	_, err := eng.RefreshStormFeed(context.Background())
	require.NoError(t, err)

	alerts, _, err := eng.CriticalAlerts()
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
