package sitecookie

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPGeolocationProvider_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "8.8.8.8", r.URL.Query().Get("ip"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"8.8.8.8","country_name":"United States","country_code2":"US","state_prov":"California","city":"Mountain View","latitude":"37.42","longitude":"-122.08","isp":"Google LLC","time_zone":{"name":"America/Los_Angeles"}}`))
	}))
	defer srv.Close()

	p := NewIPGeolocationProvider(srv.URL, "secret", time.Second)
	rec, err := p.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	assert.Equal(t, &GeoRecord{
		IP:          "8.8.8.8",
		CountryName: "United States",
		CountryCode: "US",
		StateProv:   "California",
		City:        "Mountain View",
		Latitude:    "37.42",
		Longitude:   "-122.08",
		ISP:         "Google LLC",
		TimeZone:    "America/Los_Angeles",
	}, rec)
}

func TestIPGeolocationProvider_Incomplete(t *testing.T) {
	bodies := map[string]string{
		"missing city":    `{"country_name":"United States"}`,
		"missing country": `{"city":"Paris"}`,
		"not json":        `<html>`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewIPGeolocationProvider(srv.URL, "k", time.Second).Lookup(context.Background(), "8.8.8.8")
			assert.True(t, errors.Is(err, ErrGeoIncomplete), "got %v", err)
		})
	}
}

func TestIPGeolocationProvider_Unavailable(t *testing.T) {
	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewIPGeolocationProvider(srv.URL, "k", time.Second).Lookup(context.Background(), "8.8.8.8")
		assert.True(t, errors.Is(err, ErrGeoUnavailable), "got %v", err)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := NewIPGeolocationProvider(srv.URL, "k", 50*time.Millisecond).Lookup(context.Background(), "8.8.8.8")
		assert.True(t, errors.Is(err, ErrGeoUnavailable), "got %v", err)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewIPGeolocationProvider(url, "k", time.Second).Lookup(context.Background(), "8.8.8.8")
		assert.True(t, errors.Is(err, ErrGeoUnavailable), "got %v", err)
	})
}

func TestMaxMindProvider_NotConfigured(t *testing.T) {
	_, err := NewMaxMindProvider("")
	assert.ErrorIs(t, err, ErrGeoIPDatabaseNotConfigured)

	var p *MaxMindProvider
	_, err = p.Lookup(context.Background(), "8.8.8.8")
	assert.ErrorIs(t, err, ErrGeoUnavailable)
	assert.NoError(t, p.Close())
}
