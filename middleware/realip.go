package middleware

import (
	"net"
	"net/http"
	"strings"
)

var (
	trueClientIP  = http.CanonicalHeaderKey("True-Client-IP")
	xRealIP       = http.CanonicalHeaderKey("X-Real-IP")
	xForwardedFor = http.CanonicalHeaderKey("X-Forwarded-For")
)

// ipResolver decides which address a request came from. Forwarding headers
// are only believed when the socket peer sits inside a trusted range.
type ipResolver struct {
	trusted []*net.IPNet
}

func (r *ipResolver) resolve(req *http.Request) string {
	peer := clientIP(req.RemoteAddr)
	if !r.isTrusted(peer) {
		return peer
	}

	for _, header := range []string{trueClientIP, xRealIP} {
		if ip := parseIP(req.Header.Get(header)); ip != "" {
			return ip
		}
	}

	if ip := r.fromForwardedFor(req.Header.Values(xForwardedFor)); ip != "" {
		return ip
	}
	return peer
}

// fromForwardedFor walks X-Forwarded-For from the right and returns the first
// hop that is not itself a trusted proxy. Entries left of it were written by
// the client and are ignored.
func (r *ipResolver) fromForwardedFor(values []string) string {
	var hops []string
	for _, v := range values {
		hops = append(hops, strings.Split(v, ",")...)
	}

	last := ""
	for i := len(hops) - 1; i >= 0; i-- {
		ip := parseIP(hops[i])
		if ip == "" {
			break
		}
		last = ip
		if !r.isTrusted(ip) {
			return ip
		}
	}
	return last
}

func (r *ipResolver) isTrusted(addr string) bool {
	if len(r.trusted) == 0 {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range r.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parseIP returns the canonical form of a header value, or "" if it is not an IP
func parseIP(value string) string {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return ""
	}
	return ip.String()
}
