// Package urlvalidation guards outbound HTTP targets. Webhook endpoints
// and manual-retrieval URLs come from operator configuration, so every
// target is resolved and checked against reserved address space before
// the service will POST to it.
package urlvalidation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// reservedNets is the address space an outbound target may never resolve
// into: RFC1918, loopback, link-local, CGN, test nets, multicast and the
// IPv6 equivalents.
var reservedNets = mustParseNets(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"0.0.0.0/8",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"255.255.255.255/32",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseNets(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("urlvalidation: bad CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// Option adjusts validation behaviour.
type Option func(*settings)

type settings struct {
	allowPrivate bool
}

// AllowPrivateIPs permits targets in reserved address space. Tests use it
// to point deliveries at httptest servers on loopback.
func AllowPrivateIPs() Option {
	return func(s *settings) { s.allowPrivate = true }
}

// Validate checks that rawURL is an acceptable outbound target: http or
// https, a resolvable host, and no address in reserved space.
func Validate(rawURL string, opts ...Option) error {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("scheme %q not allowed, use http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no hostname")
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", host, err)
	}
	if cfg.allowPrivate {
		return nil
	}

	// Every resolved address must be clean; a single reserved A record is
	// enough for a DNS-rebinding attempt.
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if isReserved(ip) {
			return fmt.Errorf("%q resolves to reserved address %s", host, a)
		}
	}
	return nil
}

func isReserved(ip net.IP) bool {
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
