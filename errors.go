package sitecookie

import "errors"

var (
	// ErrInvalidSettings is returned when imported settings are not a JSON
	// object of role names to integer seconds.
	ErrInvalidSettings = errors.New("sitecookie: invalid settings JSON")

	// ErrGeoUnavailable is returned by a GeoProvider when the lookup could not
	// be performed (transport error, timeout, error status).
	ErrGeoUnavailable = errors.New("sitecookie: geolocation provider unavailable")

	// ErrGeoIncomplete is returned by a GeoProvider when the response lacks
	// country_name or city.
	ErrGeoIncomplete = errors.New("sitecookie: incomplete geolocation response")

	// ErrGeoIPDatabaseNotConfigured is returned when a MaxMind lookup is attempted
	// without a database.
	ErrGeoIPDatabaseNotConfigured = errors.New("sitecookie: GeoIP database path not configured")

	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("sitecookie: invalid IP address")

	// ErrFlushIncomplete is returned by FlushBatch when at least one buffered
	// entry failed to insert. The buffer is retained in full.
	ErrFlushIncomplete = errors.New("sitecookie: batch flush incomplete")

	// ErrTenantNotFound is returned by a TenantResolver that cannot map a request.
	ErrTenantNotFound = errors.New("sitecookie: tenant not found")

	// ErrInvalidTenant is returned when a tenant has no usable name or id.
	ErrInvalidTenant = errors.New("sitecookie: invalid tenant")
)
