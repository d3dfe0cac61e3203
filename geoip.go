package sitecookie

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindProvider provides IP geolocation from a local MaxMind GeoLite2 City
// database, for deployments without access to an HTTP geolocation API.
type MaxMindProvider struct {
	db   *geoip2.Reader
	path string
}

// NewMaxMindProvider opens a MaxMind GeoLite2-City database.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}

	return &MaxMindProvider{
		db:   db,
		path: dbPath,
	}, nil
}

// Lookup returns the location of ip. Records without a city or country name
// are reported as ErrGeoIncomplete.
func (p *MaxMindProvider) Lookup(_ context.Context, ip string) (*GeoRecord, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, ErrGeoIPDatabaseNotConfigured)
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrGeoUnavailable, ErrInvalidIP, ip)
	}

	record, err := p.db.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}

	city := englishName(record.City.Names)
	country := englishName(record.Country.Names)
	if city == "" || country == "" {
		return nil, ErrGeoIncomplete
	}

	geo := &GeoRecord{
		IP:          ip,
		CountryName: country,
		CountryCode: record.Country.IsoCode,
		City:        city,
		Zipcode:     record.Postal.Code,
		Latitude:    strconv.FormatFloat(record.Location.Latitude, 'f', -1, 64),
		Longitude:   strconv.FormatFloat(record.Location.Longitude, 'f', -1, 64),
		TimeZone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		geo.StateProv = englishName(record.Subdivisions[0].Names)
	}
	return geo, nil
}

// englishName prefers the English name, falling back to any available one.
func englishName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}

// Close closes the GeoIP database.
func (p *MaxMindProvider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
