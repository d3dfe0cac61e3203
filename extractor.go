package sitecookie

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// Device types reported by ExtractVisitor.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// Visitor describes the client behind a request.
type Visitor struct {
	IP         string
	UserAgent  string
	Browser    string
	OS         string
	DeviceType string
}

// ExtractVisitor reads the client address and user agent from an HTTP request.
func ExtractVisitor(r *http.Request) Visitor {
	ua := r.UserAgent()
	parsed := useragent.New(ua)

	browser, version := parsed.Browser()
	if version != "" {
		browser = browser + " " + version
	}

	osInfo := parsed.OSInfo()
	os := osInfo.Name
	if osInfo.Version != "" {
		os = os + " " + osInfo.Version
	}

	return Visitor{
		IP:         clientIP(r),
		UserAgent:  ua,
		Browser:    browser,
		OS:         os,
		DeviceType: deviceType(parsed, ua),
	}
}

func deviceType(parsed *useragent.UserAgent, ua string) string {
	switch {
	case parsed.Bot():
		return DeviceBot
	case isTablet(ua):
		return DeviceTablet
	case parsed.Mobile():
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// clientIP returns the client address. Proxy headers are checked first,
// CF-Connecting-IP before X-Forwarded-For (first hop) and X-Real-IP.
func clientIP(r *http.Request) string {
	if ip := headerIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := headerIP(first); ip != "" {
			return ip
		}
	}
	if ip := headerIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return host
}

func headerIP(v string) string {
	v = strings.TrimSpace(v)
	if net.ParseIP(v) == nil {
		return ""
	}
	return v
}

func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range []string{"ipad", "tablet", "playbook", "silk"} {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether ip is loopback or in a private range.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate()
}
