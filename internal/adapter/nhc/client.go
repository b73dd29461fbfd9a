// Package nhc fetches the National Hurricane Center CurrentStorms.json feed
// and converts it into domain storm tracks.
package nhc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

// DefaultFeedURL is the public NHC active-storm summary feed.
const DefaultFeedURL = "https://www.nhc.noaa.gov/CurrentStorms.json"

// Client implements stormcache.Provider against the NHC feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an NHC feed client. An empty feedURL selects
// DefaultFeedURL.
func NewClient(feedURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchActiveStorms retrieves the feed and returns one single-fix track per
// active storm. Entries missing an id or a usable position are skipped with
// a warning rather than failing the whole fetch.
func (c *Client) FetchActiveStorms(ctx context.Context) ([]domain.StormTrack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch storm feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("storm feed error: status %d: %s", resp.StatusCode, body)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode storm feed: %w", err)
	}

	tracks := make([]domain.StormTrack, 0, len(feed.ActiveStorms))
	for _, s := range feed.ActiveStorms {
		track, err := s.toTrack()
		if err != nil {
			c.logger.Warn("skipping malformed feed entry",
				"storm_id", s.ID,
				"error", err,
			)
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// NHC feed types. The feed has historically flip-flopped between string and
// numeric encodings for intensity and pressure, so those fields tolerate
// both.

type feedResponse struct {
	ActiveStorms []feedStorm `json:"activeStorms"`
}

type feedStorm struct {
	ID               string   `json:"id"`
	BinNumber        string   `json:"binNumber"`
	Name             string   `json:"name"`
	Classification   string   `json:"classification"`
	Intensity        flexInt  `json:"intensity"`
	Pressure         flexInt  `json:"pressure"`
	Latitude         string   `json:"latitude"`
	Longitude        string   `json:"longitude"`
	LatitudeNumeric  *float64 `json:"latitudeNumeric"`
	LongitudeNumeric *float64 `json:"longitudeNumeric"`
	MovementDir      flexInt  `json:"movementDir"`
	MovementSpeed    flexInt  `json:"movementSpeed"`
	LastUpdate       string   `json:"lastUpdate"`
}

func (s feedStorm) toTrack() (domain.StormTrack, error) {
	if s.ID == "" {
		return domain.StormTrack{}, fmt.Errorf("missing storm id")
	}

	lat, lon, err := s.position()
	if err != nil {
		return domain.StormTrack{}, err
	}

	fixTime, err := parseFeedTime(s.LastUpdate)
	if err != nil {
		return domain.StormTrack{}, fmt.Errorf("parse lastUpdate %q: %w", s.LastUpdate, err)
	}

	return domain.StormTrack{
		ID:             strings.ToLower(s.ID),
		Name:           s.Name,
		Classification: s.Classification,
		Movement:       s.movement(),
		Fixes: []domain.Fix{{
			Time:       fixTime,
			Lat:        lat,
			Lon:        lon,
			MaxWindKt:  int(s.Intensity),
			PressureMb: int(s.Pressure),
		}},
	}, nil
}

func (s feedStorm) position() (lat, lon float64, err error) {
	if s.LatitudeNumeric != nil && s.LongitudeNumeric != nil {
		return *s.LatitudeNumeric, *s.LongitudeNumeric, nil
	}
	lat, err = parseHemisphere(s.Latitude, "N", "S")
	if err != nil {
		return 0, 0, fmt.Errorf("parse latitude %q: %w", s.Latitude, err)
	}
	lon, err = parseHemisphere(s.Longitude, "E", "W")
	if err != nil {
		return 0, 0, fmt.Errorf("parse longitude %q: %w", s.Longitude, err)
	}
	return lat, lon, nil
}

func (s feedStorm) movement() string {
	if s.MovementSpeed == 0 {
		return ""
	}
	return fmt.Sprintf("%s at %d kt", compassDir(int(s.MovementDir)), int(s.MovementSpeed))
}

// parseHemisphere converts values like "25.3N" or "76.0W" to signed degrees.
func parseHemisphere(v, positive, negative string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	sign := 1.0
	switch {
	case strings.HasSuffix(v, positive):
		v = strings.TrimSuffix(v, positive)
	case strings.HasSuffix(v, negative):
		sign = -1.0
		v = strings.TrimSuffix(v, negative)
	}
	deg, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	return sign * deg, nil
}

// parseFeedTime accepts the feed's historical timestamp shapes.
func parseFeedTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04 UTC",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

func compassDir(deg int) string {
	deg = ((deg % 360) + 360) % 360
	idx := (deg*16 + 180) / 360 % 16
	return compassPoints[idx]
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse numeric field %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}
