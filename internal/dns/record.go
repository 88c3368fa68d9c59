package dns

import "strings"

// Value statuses for dynamic pool members. "obey" means the value's
// availability is governed by a health-check monitor.
const (
	StatusUp   = "up"
	StatusDown = "down"
	StatusObey = "obey"
)

// Record represents a DNS record to be managed. Name is the hostname within
// the zone ("" for the zone root), Zone the zone name with a trailing dot.
type Record struct {
	Name   string
	Zone   string
	Type   string // "A", "AAAA", "CNAME", ...
	TTL    int
	Values []string

	// Dynamic holds traffic-steering configuration; nil for flat records.
	Dynamic *Dynamic

	// HealthCheck tunes the monitors backing obey-status values.
	HealthCheck HealthCheck
}

// FQDN returns the record's fully qualified name with a trailing dot.
func (r *Record) FQDN() string {
	if r.Name == "" {
		return r.Zone
	}
	return r.Name + "." + r.Zone
}

// IsDynamic reports whether the record carries traffic-steering config.
func (r *Record) IsDynamic() bool {
	return r.Dynamic != nil
}

// Dynamic is the declarative traffic-steering half of a record: named pools
// of weighted values plus an ordered list of targeting rules.
type Dynamic struct {
	Pools map[string]*Pool
	Rules []Rule
}

// Pool is a named set of candidate values with an optional fallback pool.
type Pool struct {
	// Fallback names another pool to try when this one is exhausted;
	// empty means none.
	Fallback string
	Values   []Value
}

// Value is a single pool member.
type Value struct {
	Value  string
	Weight int    // defaults to 1 when zero
	Status string // StatusUp, StatusDown or StatusObey
}

// EffectiveWeight returns the weight with the default applied.
func (v Value) EffectiveWeight() int {
	if v.Weight <= 0 {
		return 1
	}
	return v.Weight
}

// Rule selects a pool for a set of geo targets and/or subnets. Rules are
// ordered; the slice index is the tie-break and replay key. A rule with no
// geos and no subnets is the catchall.
type Rule struct {
	Pool string

	// Geos holds continent ("EU"), country ("EU-GB") and state/province
	// ("NA-US-FL", "NA-CA-NL") codes.
	Geos []string

	// Subnets holds CIDR prefixes.
	Subnets []string
}

// Health-check defaults applied when the per-record config leaves a field
// unset.
const (
	DefaultHealthCheckProtocol        = "HTTPS"
	DefaultHealthCheckPort            = 443
	DefaultHealthCheckPath            = "/_dns"
	DefaultHealthCheckPolicy          = "quorum"
	DefaultHealthCheckFrequency       = 60
	DefaultHealthCheckConnectTimeout  = 2
	DefaultHealthCheckResponseTimeout = 10
)

// HealthCheck describes how obey-status values should be probed. Zero values
// mean "use the default"; accessors apply them.
type HealthCheck struct {
	Protocol string // ICMP, TCP, HTTP or HTTPS
	Port     int
	Path     string
	Host     string // virtual host override
	Policy   string
	// Frequency is the probe interval in seconds.
	Frequency    int
	RapidRecheck bool
	// Timeouts are in seconds.
	ConnectTimeout  int
	ResponseTimeout int
	// HTTPVersion overrides the provider default for legacy TCP-emulated
	// HTTP checks ("HTTP/1.0" or "HTTP/1.1").
	HTTPVersion string
}

func (h HealthCheck) EffectiveProtocol() string {
	if h.Protocol == "" {
		return DefaultHealthCheckProtocol
	}
	return strings.ToUpper(h.Protocol)
}

func (h HealthCheck) EffectivePort() int {
	if h.Port == 0 {
		return DefaultHealthCheckPort
	}
	return h.Port
}

func (h HealthCheck) EffectivePath() string {
	if h.Path == "" {
		return DefaultHealthCheckPath
	}
	return h.Path
}

func (h HealthCheck) EffectivePolicy() string {
	if h.Policy == "" {
		return DefaultHealthCheckPolicy
	}
	return h.Policy
}

func (h HealthCheck) EffectiveFrequency() int {
	if h.Frequency == 0 {
		return DefaultHealthCheckFrequency
	}
	return h.Frequency
}

func (h HealthCheck) EffectiveConnectTimeout() int {
	if h.ConnectTimeout == 0 {
		return DefaultHealthCheckConnectTimeout
	}
	return h.ConnectTimeout
}

func (h HealthCheck) EffectiveResponseTimeout() int {
	if h.ResponseTimeout == 0 {
		return DefaultHealthCheckResponseTimeout
	}
	return h.ResponseTimeout
}

// HealthCheckHostFor returns the virtual host a monitor for the given value should
// probe: the configured override when set, otherwise the record's own name,
// otherwise the value itself. TCP checks have no host concept.
func (r *Record) HealthCheckHostFor(value string) string {
	if r.HealthCheck.EffectiveProtocol() == "TCP" {
		return ""
	}
	if r.HealthCheck.Host != "" {
		return r.HealthCheck.Host
	}
	if fqdn := strings.TrimSuffix(r.FQDN(), "."); fqdn != "" {
		return fqdn
	}
	return value
}
