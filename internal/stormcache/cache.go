// Package stormcache keeps the most recent snapshot of active storms in
// memory and refreshes it from a feed provider under a TTL. Readers never
// block on the network: Current returns whatever snapshot is held, tagged
// with its freshness, and Refresh replaces the snapshot wholesale so readers
// observe either the old or the new set, never a mix.
package stormcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

// ErrFetchFailed wraps any provider error. The previously cached snapshot
// survives a failed refresh.
var ErrFetchFailed = errors.New("storm feed fetch failed")

// maxFixHistory bounds the per-storm position history carried across
// refreshes.
const maxFixHistory = 120

// Provider fetches the current set of active storms from an upstream feed.
type Provider interface {
	FetchActiveStorms(ctx context.Context) ([]domain.StormTrack, error)
}

// Freshness describes how current a snapshot is relative to the cache TTL.
type Freshness int

const (
	// NeverFetched means no refresh has ever succeeded.
	NeverFetched Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case NeverFetched:
		return "never_fetched"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Snapshot is one immutable view of the feed. Callers must not mutate Storms.
type Snapshot struct {
	Storms    []domain.StormTrack `json:"storms"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// Cache holds the live snapshot behind an atomic pointer. Refresh calls are
// deduplicated so concurrent triggers share one provider fetch.
type Cache struct {
	provider     Provider
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger

	snap  atomic.Pointer[Snapshot]
	group singleflight.Group
}

// New builds a cache around the given provider. ttl governs when Current
// reports Stale; fetchTimeout bounds each provider call.
func New(provider Provider, ttl, fetchTimeout time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		provider:     provider,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Current returns the held snapshot and its freshness without touching the
// network. Before the first successful refresh the snapshot is zero-valued
// and the freshness is NeverFetched.
func (c *Cache) Current() (Snapshot, Freshness) {
	snap := c.snap.Load()
	if snap == nil {
		return Snapshot{}, NeverFetched
	}
	return *snap, c.freshness(*snap)
}

// Refresh fetches the feed and swaps in a new snapshot. Concurrent callers
// coalesce onto a single in-flight fetch and all receive its result. On
// provider failure the previous snapshot is kept as-is and the returned
// error wraps ErrFetchFailed.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, Freshness, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		snap, fresh := c.Current()
		return snap, fresh, err
	}
	snap := v.(Snapshot)
	return snap, c.freshness(snap), nil
}

func (c *Cache) refresh(ctx context.Context) (Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	storms, err := c.provider.FetchActiveStorms(fetchCtx)
	if err != nil {
		c.logger.Warn("storm feed refresh failed, keeping cached snapshot",
			"error", err,
		)
		return Snapshot{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	prev := c.snap.Load()
	next := &Snapshot{
		Storms:    mergeTracks(prev, storms),
		FetchedAt: clock.Now(),
	}
	c.snap.Store(next)

	c.logger.Info("storm feed refreshed",
		"active_storms", len(next.Storms),
		"fetched_at", next.FetchedAt,
	)
	return *next, nil
}

func (c *Cache) freshness(snap Snapshot) Freshness {
	if snap.FetchedAt.IsZero() {
		return NeverFetched
	}
	if clock.Now().Sub(snap.FetchedAt) > c.ttl {
		return Stale
	}
	return Fresh
}

// mergeTracks carries fix history forward: a storm present in both the
// previous snapshot and the fetch keeps its accumulated fixes with the new
// position appended. Storms that left the feed are dropped with their
// history.
func mergeTracks(prev *Snapshot, fetched []domain.StormTrack) []domain.StormTrack {
	var history map[string][]domain.Fix
	if prev != nil {
		history = make(map[string][]domain.Fix, len(prev.Storms))
		for _, s := range prev.Storms {
			history[s.ID] = s.Fixes
		}
	}

	merged := make([]domain.StormTrack, 0, len(fetched))
	for _, s := range fetched {
		old, ok := history[s.ID]
		if ok && len(old) > 0 {
			s.Fixes = appendFixes(old, s.Fixes)
		}
		merged = append(merged, s)
	}
	return merged
}

// appendFixes extends old with any fixes strictly newer than its last entry,
// trimming the front to stay within maxFixHistory.
func appendFixes(old, incoming []domain.Fix) []domain.Fix {
	last := old[len(old)-1].Time
	combined := append([]domain.Fix(nil), old...)
	for _, f := range incoming {
		if f.Time.After(last) {
			combined = append(combined, f)
			last = f.Time
		}
	}
	if len(combined) > maxFixHistory {
		combined = combined[len(combined)-maxFixHistory:]
	}
	return combined
}
