package sitecookie

import "github.com/prometheus/client_golang/prometheus"

// Collectors are registered on the default registry; serve them with
// promhttp.Handler(). Labels are fixed, low-cardinality outcome names.
var (
	// cookiesIssued counts minted tenant cookies by session freshness and device type.
	cookiesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecookie_cookies_issued_total",
			Help: "Total number of tenant cookies issued.",
		},
		[]string{"new_session", "device"},
	)

	// geoLookups counts geolocation lookups by outcome: hit, fetched, incomplete, unavailable.
	geoLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecookie_geo_lookups_total",
			Help: "Total number of geolocation lookups by result.",
		},
		[]string{"result"},
	)

	// usageRecords counts usage log writes: inserted, duplicate, enqueued, error.
	usageRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecookie_usage_records_total",
			Help: "Total number of cookie usage log writes by result.",
		},
		[]string{"result"},
	)

	flushRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitecookie_flush_runs_total",
			Help: "Total number of pending buffer flushes by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(cookiesIssued, geoLookups, usageRecords, flushRuns)
}
