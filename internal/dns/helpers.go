package dns

import (
	"strings"
)

// EnsureTrailingDot makes a name absolute.
// e.g. "app.example.com" → "app.example.com."
func EnsureTrailingDot(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// HostnameFromFQDN strips the zone suffix from an FQDN, returning the
// hostname within the zone ("" for the zone root). Both forms of fqdn, with
// and without a trailing dot, are accepted.
// e.g. ("app.example.com.", "example.com.") → "app"
func HostnameFromFQDN(fqdn, zone string) string {
	fqdn = EnsureTrailingDot(fqdn)
	zone = EnsureTrailingDot(zone)
	if fqdn == zone {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(fqdn, zone), ".")
}
