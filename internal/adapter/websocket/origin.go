package websocket

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// NewCheckOrigin guards the cookie-authenticated live order feed against
// cross-site handshakes. Requests without an Origin header come from
// non-browser clients and pass. Browser origins must match the store's own
// origin from baseURL; in development any loopback origin passes too.
func NewCheckOrigin(baseURL string, isDevelopment bool) func(r *http.Request) bool {
	storeOrigin := normalizeOrigin(baseURL)

	return func(r *http.Request) bool {
		raw := r.Header.Get("Origin")
		if raw == "" {
			return true
		}

		origin := normalizeOrigin(raw)
		switch {
		case origin != "" && origin == storeOrigin:
			return true
		case isDevelopment && isLoopbackOrigin(raw):
			return true
		}

		slog.WarnContext(r.Context(), "Live feed handshake from foreign origin rejected", "origin", raw, "remote_addr", r.RemoteAddr)
		return false
	}
}

// normalizeOrigin reduces a URL to scheme://host[:port] with the host
// lower-cased and default ports dropped. It returns "" for anything that is
// not an absolute http(s) URL.
func normalizeOrigin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
