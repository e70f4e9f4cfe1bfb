// internal/app/system/network/ip.go
// Package network resolves the client address a login record is stamped with.
package network

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the client address for r. Forwarding headers
// (X-Forwarded-For, then X-Real-IP) are honored first; otherwise the
// RemoteAddr host is used. Bracketed IPv6 literals and ports are stripped
// so the same client always yields the same string.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := clean(first); ip != "" {
			return ip
		}
	}
	if ip := clean(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return clean(r.RemoteAddr)
}

// clean trims v and removes a port or IPv6 brackets.
func clean(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(v); err == nil {
		return host
	}
	return strings.Trim(v, "[]")
}

// SameClient reports whether two recorded addresses name the same client.
// Empty addresses never match.
func SameClient(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ipa, ipb := net.ParseIP(a), net.ParseIP(b)
	if ipa != nil && ipb != nil {
		return ipa.Equal(ipb)
	}
	return strings.EqualFold(a, b)
}
