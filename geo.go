package sitecookie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aadithya-v/sitecookie/store"
)

// GeoUnavailableMarker replaces geo data when the provider could not be reached.
const GeoUnavailableMarker = "Unable to retrieve geo-location data"

// sharedGeoCacheKey is the single cache slot used in GeoKeyShared mode.
const sharedGeoCacheKey = "geo_data"

// GeoRecord is a geolocation result. CountryName and City are required.
type GeoRecord struct {
	IP          string `json:"ip,omitempty"`
	CountryName string `json:"country_name"`
	CountryCode string `json:"country_code2,omitempty"`
	StateProv   string `json:"state_prov,omitempty"`
	City        string `json:"city"`
	Zipcode     string `json:"zipcode,omitempty"`
	Latitude    string `json:"latitude,omitempty"`
	Longitude   string `json:"longitude,omitempty"`
	ISP         string `json:"isp,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
}

// GeoData is the geo part of a session token: a record, the unavailable
// marker, or the negative result (encoded as JSON false).
type GeoData struct {
	Record      *GeoRecord
	Unavailable bool
}

// MarshalJSON encodes the record, the marker string, or false.
func (g GeoData) MarshalJSON() ([]byte, error) {
	switch {
	case g.Record != nil:
		return json.Marshal(g.Record)
	case g.Unavailable:
		return json.Marshal(GeoUnavailableMarker)
	default:
		return []byte("false"), nil
	}
}

// UnmarshalJSON accepts any of the three encodings produced by MarshalJSON.
func (g *GeoData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*g = GeoData{}
	case data[0] == '"':
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		*g = GeoData{Unavailable: true}
	default:
		var rec GeoRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		*g = GeoData{Record: &rec}
	}
	return nil
}

// GeoProvider looks up the location of an IP address.
// Implementations return ErrGeoIncomplete for responses without country or
// city, and ErrGeoUnavailable (wrapped) when the lookup could not be made.
type GeoProvider interface {
	Lookup(ctx context.Context, ip string) (*GeoRecord, error)
}

// Geolocator puts a GeoProvider behind a time-bounded cache.
// Concurrent misses for one key each call the provider; the last write wins.
type Geolocator struct {
	provider GeoProvider
	cache    store.GeoCache
	ttl      time.Duration
	keyMode  GeoCacheKeyMode
	log      zerolog.Logger

	// skipPrivate short-circuits private and loopback addresses to the
	// negative result.
	skipPrivate bool
}

// NewGeolocator creates a Geolocator. A nil provider yields the negative result
// for every uncached lookup.
func NewGeolocator(provider GeoProvider, cache store.GeoCache, ttl time.Duration, keyMode GeoCacheKeyMode, log zerolog.Logger) *Geolocator {
	return &Geolocator{
		provider: provider,
		cache:    cache,
		ttl:      ttl,
		keyMode:  keyMode,
		log:      log,
	}
}

func (g *Geolocator) cacheKey(ip string) string {
	if g.keyMode == GeoKeyShared {
		return sharedGeoCacheKey
	}
	return "geo:" + ip
}

// Lookup returns geo data for ip. It never fails: provider errors degrade to
// the unavailable marker, incomplete responses to the negative result. Only
// complete records are cached.
func (g *Geolocator) Lookup(ctx context.Context, ip string) GeoData {
	key := g.cacheKey(ip)

	raw, err := g.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rec GeoRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			geoLookups.WithLabelValues("hit").Inc()
			return GeoData{Record: &rec}
		}
		g.log.Warn().Str("key", key).Msg("discarding undecodable cached geo record")
	case !errors.Is(err, store.ErrCacheMiss):
		g.log.Warn().Err(err).Str("key", key).Msg("geo cache read failed")
	}

	if g.provider == nil || (g.skipPrivate && IsPrivateIP(ip)) {
		geoLookups.WithLabelValues("incomplete").Inc()
		return GeoData{}
	}

	rec, err := g.provider.Lookup(ctx, ip)
	if errors.Is(err, ErrGeoIncomplete) {
		geoLookups.WithLabelValues("incomplete").Inc()
		g.log.Debug().Str("ip", ip).Msg("geolocation response missing country or city")
		return GeoData{}
	}
	if err != nil {
		geoLookups.WithLabelValues("unavailable").Inc()
		g.log.Error().Err(err).Str("ip", ip).Msg("geolocation API error")
		return GeoData{Unavailable: true}
	}

	geoLookups.WithLabelValues("fetched").Inc()
	if raw, err := json.Marshal(rec); err == nil {
		if err := g.cache.Set(ctx, key, raw, g.ttl); err != nil {
			g.log.Warn().Err(err).Str("key", key).Msg("geo cache write failed")
		}
	}
	return GeoData{Record: rec}
}
