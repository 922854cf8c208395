package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"syscall"
	"time"
)

// DefaultAllowedSuffixes are the Microsoft Teams and Bot Framework domains
// attachments and service endpoints are served from.
var DefaultAllowedSuffixes = []string{
	"botframework.com",
	"botframework.azure.us",
	"trafficmanager.net",
	"blob.core.windows.net",
	"asm.skype.com",
	"teams.microsoft.com",
	"sharepoint.com",
	"graph.microsoft.com",
	"smba.trafficmanager.net",
}

// ValidateDownloadURL checks that raw is an https URL without embedded
// credentials whose host is public and matches one of allowedSuffixes.
// A nil or empty allowedSuffixes uses DefaultAllowedSuffixes.
func ValidateDownloadURL(raw string, allowedSuffixes []string) (*url.URL, error) {
	if len(allowedSuffixes) == 0 {
		allowedSuffixes = DefaultAllowedSuffixes
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, blockedURL("invalid url", raw)
	}
	if parsed.Scheme != "https" {
		return nil, blockedURL("scheme must be https", raw)
	}
	if parsed.User != nil {
		return nil, blockedURL("credentials in url are not allowed", raw)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, blockedURL("missing host", raw)
	}
	if IsBlockedHostname(host) {
		return nil, blockedURL("blocked hostname", raw)
	}
	if IsPrivateIPAddress(host) {
		return nil, blockedURL("private or internal address", raw)
	}
	if !HostAllowed(host, allowedSuffixes) {
		return nil, blockedURL("host is not an allowed platform domain", raw)
	}
	return parsed, nil
}

// DialControl is a net.Dialer Control hook that refuses to connect to
// private addresses. It runs after DNS resolution so a public name that
// rebinds to an internal address is still rejected.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("ssrf: split %q: %w", address, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return NewSSRFBlockedError(fmt.Sprintf("blocked: unparseable dial address %s", host))
	}
	if IsPrivateIP(addr) {
		return NewSSRFBlockedError(fmt.Sprintf("blocked: dial to private address %s", addr))
	}
	return nil
}

// NewDialContext returns a DialContext function for http.Transport that
// applies DialControl to every connection.
func NewDialContext(timeout time.Duration) func(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control:   DialControl,
	}
	return dialer.DialContext
}
