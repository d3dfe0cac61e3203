package sitecookie

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "203.0.113.9:4242", "203.0.113.9"},
		{"remote addr without port", nil, "203.0.113.9", "203.0.113.9"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1", "198.51.100.2"},
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "198.51.100.3", "X-Forwarded-For": "198.51.100.1"}, "10.0.0.2:1", "198.51.100.3"},
		{"invalid header ignored", map[string]string{"X-Forwarded-For": "garbage"}, "203.0.113.9:1", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractVisitor(req).IP)
		})
	}
}

func TestExtractVisitor_Device(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", DeviceDesktop},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", DeviceMobile},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", DeviceTablet},
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", DeviceBot},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", tt.ua)
		v := ExtractVisitor(req)
		assert.Equal(t, tt.want, v.DeviceType, tt.ua)
		assert.Equal(t, tt.ua, v.UserAgent)
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP("127.0.0.1"))
	assert.True(t, IsPrivateIP("10.1.2.3"))
	assert.True(t, IsPrivateIP("192.168.0.1"))
	assert.True(t, IsPrivateIP("fd00::1"))
	assert.False(t, IsPrivateIP("8.8.8.8"))
	assert.False(t, IsPrivateIP("not-an-ip"))
}
