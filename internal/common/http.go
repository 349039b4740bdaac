package common

import (
	"net"
	"net/http"
	"strings"
)

const (
	// SessionHeader lets clients pin a browsing session explicitly.
	SessionHeader = "X-Session-ID"
	// SessionCookie is the cookie fallback for the browsing session.
	SessionCookie = "sid"
)

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		if first := strings.TrimSpace(strings.Split(ip, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// SessionID identifies an anonymous browsing session. Explicit header or
// cookie values win; otherwise a stable digest of client IP and user agent is used.
func SessionID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if sid := strings.TrimSpace(r.Header.Get(SessionHeader)); sid != "" {
		return truncate(sid, 128)
	}
	if c, err := r.Cookie(SessionCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return truncate(strings.TrimSpace(c.Value), 128)
	}
	return "anon:" + Sha256Hex(ClientIP(r), r.UserAgent())[:32]
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
