package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig controls how the client IP is derived from a request.
// TrustedProxies lists CIDR ranges whose forwarding headers are
// believed; everything else is treated as a direct connection.
type IPConfig struct {
	TrustedProxies []string
}

// ExtractClientIP returns the client IP the defense pipeline should
// attribute the request to. The per-IP failure counter and IP lockouts
// key on this value, so forwarding headers are only honored when the
// peer is a trusted proxy. Otherwise an attacker could rotate
// X-Forwarded-For to dodge the counter, or worse, lock out arbitrary
// addresses.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		// X-Forwarded-For holds a chain; the first valid entry is the
		// originating client
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if isValidIP(xri) {
				return xri
			}
		}
	}

	return remoteIP
}

// getRemoteAddr strips the port from RemoteAddr when present
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
