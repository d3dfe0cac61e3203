package sitecookie

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultIPGeolocationEndpoint is the ipgeolocation.io lookup endpoint.
const DefaultIPGeolocationEndpoint = "https://api.ipgeolocation.io/ipgeo"

// maxGeoResponseBytes caps how much of a provider response is read.
const maxGeoResponseBytes = 1 << 20

// IPGeolocationProvider looks up locations with an HTTP API of the form
// GET <endpoint>?apiKey=<key>&ip=<ip>.
type IPGeolocationProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewIPGeolocationProvider creates an HTTP provider. An empty endpoint selects
// DefaultIPGeolocationEndpoint; timeout bounds each lookup (default 5s).
func NewIPGeolocationProvider(endpoint, apiKey string, timeout time.Duration) *IPGeolocationProvider {
	if endpoint == "" {
		endpoint = DefaultIPGeolocationEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IPGeolocationProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// ipgeoResponse mirrors GeoRecord with pointers on the required fields so a
// missing key can be told apart from an empty value.
type ipgeoResponse struct {
	IP          string  `json:"ip"`
	CountryName *string `json:"country_name"`
	CountryCode string  `json:"country_code2"`
	StateProv   string  `json:"state_prov"`
	City        *string `json:"city"`
	Zipcode     string  `json:"zipcode"`
	Latitude    string  `json:"latitude"`
	Longitude   string  `json:"longitude"`
	ISP         string  `json:"isp"`
	TimeZone    struct {
		Name string `json:"name"`
	} `json:"time_zone"`
}

// Lookup queries the API for ip.
func (p *IPGeolocationProvider) Lookup(ctx context.Context, ip string) (*GeoRecord, error) {
	q := url.Values{}
	q.Set("apiKey", p.apiKey)
	q.Set("ip", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrGeoUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGeoResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}

	var parsed ipgeoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoIncomplete, err)
	}
	if parsed.CountryName == nil || parsed.City == nil {
		return nil, ErrGeoIncomplete
	}

	return &GeoRecord{
		IP:          parsed.IP,
		CountryName: *parsed.CountryName,
		CountryCode: parsed.CountryCode,
		StateProv:   parsed.StateProv,
		City:        *parsed.City,
		Zipcode:     parsed.Zipcode,
		Latitude:    parsed.Latitude,
		Longitude:   parsed.Longitude,
		ISP:         parsed.ISP,
		TimeZone:    parsed.TimeZone.Name,
	}, nil
}
