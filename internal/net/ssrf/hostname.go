package ssrf

import "strings"

var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.azure.com":       true,
}

var dangerousSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// normalizeHostname lowercases and trims a hostname, drops a trailing dot and
// unwraps IPv6 brackets.
func normalizeHostname(hostname string) string {
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	normalized = strings.TrimSuffix(normalized, ".")
	if strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = normalized[1 : len(normalized)-1]
	}
	return normalized
}

// IsBlockedHostname reports whether hostname names a local or internal
// resource, either explicitly or through a reserved suffix.
func IsBlockedHostname(hostname string) bool {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return false
	}
	if blockedHostnames[normalized] {
		return true
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// HostMatchesSuffix reports whether host equals suffix or is a subdomain of
// it. "evilbotframework.com" does not match "botframework.com".
func HostMatchesSuffix(host, suffix string) bool {
	host = normalizeHostname(host)
	suffix = strings.TrimPrefix(normalizeHostname(suffix), ".")
	if host == "" || suffix == "" {
		return false
	}
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

// HostAllowed reports whether host matches any of the allowed suffixes.
func HostAllowed(host string, allowedSuffixes []string) bool {
	for _, suffix := range allowedSuffixes {
		if HostMatchesSuffix(host, suffix) {
			return true
		}
	}
	return false
}
