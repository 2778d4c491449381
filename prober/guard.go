package prober

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrBlockedAddress is returned by the guarded dialer for private or loopback destinations.
var ErrBlockedAddress = errors.New("destination address is not publicly routable")

var blockedNets = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

var blockedSuffixes = []string{".local", ".internal", ".localhost"}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsBlockedIP reports whether ip is loopback, link-local, unspecified or in a private range.
func IsBlockedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() {
		return true
	}
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsBlockedHost checks a bare hostname (no port) without resolving it.
func IsBlockedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.Trim(host, "[]")), ".")
	if host == "" || host == "localhost" {
		return true
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return IsBlockedIP(net.ParseIP(host))
}

// guardControl runs after DNS resolution, so rebinding a public name to a private address is caught here.
func guardControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if IsBlockedIP(net.ParseIP(host)) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// lookupIPAddr is replaced in tests.
var lookupIPAddr = net.DefaultResolver.LookupIPAddr

// guardDial checks the dial address before handing it to next. The proxy dialer resolves
// names itself, so the name is resolved here first and every address must be public.
// Each redirect hop dials again, so redirects to private targets are refused as well.
func guardDial(next dialFunc) dialFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, address)
		}
		if IsBlockedHost(host) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
		if net.ParseIP(host) == nil {
			addrs, err := lookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, a := range addrs {
				if IsBlockedIP(a.IP) {
					return nil, fmt.Errorf("%w: %s resolves to %s", ErrBlockedAddress, host, a.IP)
				}
			}
		}
		return next(ctx, network, address)
	}
}
