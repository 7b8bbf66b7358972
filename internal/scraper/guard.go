package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// ErrForbiddenAddress is returned when a preview target resolves to an
// address that is not publicly routable.
var ErrForbiddenAddress = errors.New("preview target is not a public address")

// AddrFilter reports whether a resolved address may be fetched.
type AddrFilter func(ip net.IP) bool

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// PublicOnly admits only globally routable unicast addresses. Loopback,
// RFC 1918, unique-local, link-local (which covers cloud metadata
// endpoints), CGNAT, multicast and unspecified addresses are refused.
func PublicOnly(ip net.IP) bool {
	switch {
	case ip == nil,
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsUnspecified(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// dialControl runs after DNS resolution, on the exact address being
// dialled, so redirects and rebinding are checked too.
func dialControl(allow AddrFilter) func(network, address string, _ syscall.RawConn) error {
	return func(_, address string, _ syscall.RawConn) error {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return err
		}
		if ip := net.ParseIP(host); ip == nil || !allow(ip) {
			return fmt.Errorf("%w: %s", ErrForbiddenAddress, host)
		}
		return nil
	}
}

// newGuardedClient returns an HTTP client that refuses to connect to
// addresses rejected by allow.
func newGuardedClient(timeout time.Duration, allow AddrFilter) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl(allow),
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would make the dialled address the proxy's, not the target's.
	tr.Proxy = nil
	tr.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: tr}
}

// checkHost resolves the host of u and fails if any of its addresses is
// rejected. The browser scraper dials on its own, so this runs for every
// request it makes as well.
func checkHost(ctx context.Context, u *url.URL, allow AddrFilter) error {
	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if !allow(ip) {
			return fmt.Errorf("%w: %s", ErrForbiddenAddress, host)
		}
		return nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if !allow(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrForbiddenAddress, host, a.IP)
		}
	}
	return nil
}
