package sitecookie

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// CookiePrefix starts every tenant cookie name.
	CookiePrefix = "__"

	// SessionCookieName carries the bare session id shared across tenants.
	SessionCookieName = "__user_session"
)

// Tenant is one site of the network.
type Tenant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CookieName returns the tenant's cookie name: the prefix, the lower-cased
// display name with spaces turned into underscores, and the tenant id.
// "Acme Site" with id 7 becomes "__acme_site_7".
func CookieName(t Tenant) string {
	slug := strings.ToLower(strings.ReplaceAll(t.Name, " ", "_"))
	return CookiePrefix + slug + "_" + strconv.FormatInt(t.ID, 10)
}

// SessionToken is the payload stored in a tenant cookie.
type SessionToken struct {
	SessionID string  `json:"session_id"`
	GeoData   GeoData `json:"geo_data"`
}

// IssuedCookie is the outcome of Mint.
type IssuedCookie struct {
	Name       string
	Value      string
	SessionID  string
	NewSession bool
	ExpiresAt  time.Time
}

// Mint builds the tenant cookie for one request. existingSessionID, read from
// the inbound session cookie, is reused when present; otherwise a v4 UUID is
// generated. ExpiresAt may lie in the past when expiration is not positive.
func Mint(t Tenant, existingSessionID string, geo GeoData, expiration time.Duration, now time.Time) (*IssuedCookie, error) {
	if t.ID <= 0 {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidTenant, t.ID)
	}

	sessionID := existingSessionID
	newSession := sessionID == ""
	if newSession {
		sessionID = uuid.NewString()
	}

	value, err := json.Marshal(SessionToken{SessionID: sessionID, GeoData: geo})
	if err != nil {
		return nil, fmt.Errorf("sitecookie: failed to encode session token: %w", err)
	}

	return &IssuedCookie{
		Name:       CookieName(t),
		Value:      string(value),
		SessionID:  sessionID,
		NewSession: newSession,
		ExpiresAt:  now.Add(expiration),
	}, nil
}

// Cookies returns the cookies to set: the tenant cookie, plus the session
// cookie when the session id was freshly minted. Both share expiry and Path=/.
// Values are query-escaped since JSON is not a valid raw cookie value.
func (c *IssuedCookie) Cookies() []*http.Cookie {
	cookies := []*http.Cookie{{
		Name:    c.Name,
		Value:   url.QueryEscape(c.Value),
		Path:    "/",
		Expires: c.ExpiresAt,
	}}
	if c.NewSession {
		cookies = append(cookies, &http.Cookie{
			Name:    SessionCookieName,
			Value:   c.SessionID,
			Path:    "/",
			Expires: c.ExpiresAt,
		})
	}
	return cookies
}

// ParseSessionToken decodes a tenant cookie value as read from a request.
func ParseSessionToken(value string) (*SessionToken, error) {
	var token SessionToken
	if err := json.Unmarshal([]byte(value), &token); err != nil {
		return nil, fmt.Errorf("sitecookie: failed to decode session token: %w", err)
	}
	return &token, nil
}

// readCookie returns the unescaped value of the named request cookie.
func readCookie(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	if v, err := url.QueryUnescape(c.Value); err == nil {
		return v, true
	}
	return c.Value, true
}
