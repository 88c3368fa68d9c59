// Package ns1 reconciles declarative traffic-steering DNS records against
// the NS1 platform's wire model: prioritized answers, labeled regions,
// filter chains and health-check monitors with their notify-list and
// data-feed plumbing.
package ns1

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
)

// zoneNotFoundMessage is the exact server message for a missing zone; call
// sites probing for zone existence match on it.
const zoneNotFoundMessage = "server error: zone not found"

// DefaultHTTPVersion is the request version for legacy TCP-emulated HTTP
// health checks when neither the record nor the provider overrides it.
const DefaultHTTPVersion = "HTTP/1.0"

// supportedTypes is the record-type set the provider can populate and
// apply. A, AAAA and the CNAME family support dynamic config.
var supportedTypes = map[string]bool{
	"A":     true,
	"AAAA":  true,
	"ALIAS": true,
	"CNAME": true,
	"DNAME": true,
	"NS":    true,
	"PTR":   true,
	"TXT":   true,
}

// absoluteTypes are the types whose short answers are normalized to
// absolute names on populate.
var absoluteTypes = map[string]bool{
	"ALIAS": true,
	"CNAME": true,
	"MX":    true,
	"NS":    true,
	"PTR":   true,
	"SRV":   true,
}

// Options configure a Provider.
type Options struct {
	// MonitorRegions is where health-check jobs run. Applying any
	// health-check-backed change without it set is rejected up front.
	MonitorRegions []string

	// SharedNotifyList reuses one global notify list for all monitors
	// instead of one private list per monitor.
	SharedNotifyList bool

	// UseHTTPMonitors emits modern http jobs for HTTP(S) checks instead
	// of legacy HTTP-emulating tcp jobs.
	UseHTTPMonitors bool

	// DefaultHTTPVersion overrides DefaultHTTPVersion for legacy checks.
	DefaultHTTPVersion string

	// RetryCount and Parallelism tune the gateway; see ClientOptions.
	RetryCount  int
	Parallelism int
}

// Provider converts between the declarative record model and the platform's
// wire model, keeping monitors, notify lists and feeds convergent along the
// way.
type Provider struct {
	log                logr.Logger
	client             *Client
	monitorRegions     []string
	sharedNotifyList   bool
	useHTTPMonitors    bool
	defaultHTTPVersion string

	// recordFilters remembers the filter chains observed during populate,
	// keyed by domain then type, so drift is detectable without another
	// retrieval.
	recordFilters map[string]map[string][]api.Filter
}

// New creates a Provider over the given API client.
func New(log logr.Logger, apiClient api.Client, opts Options) *Provider {
	defaultHTTPVersion := opts.DefaultHTTPVersion
	if defaultHTTPVersion == "" {
		defaultHTTPVersion = DefaultHTTPVersion
	}
	return &Provider{
		log: log,
		client: NewClient(log.WithName("client"), apiClient, ClientOptions{
			RetryCount:  opts.RetryCount,
			Parallelism: opts.Parallelism,
		}),
		monitorRegions:     opts.MonitorRegions,
		sharedNotifyList:   opts.SharedNotifyList,
		useHTTPMonitors:    opts.UseHTTPMonitors,
		defaultHTTPVersion: defaultHTTPVersion,
		recordFilters:      map[string]map[string][]api.Filter{},
	}
}

// Client exposes the gateway, mainly for cache control.
func (p *Provider) Client() *Client {
	return p.client
}

// Supports reports whether the provider manages the record type.
func (p *Provider) Supports(typ string) bool {
	return supportedTypes[typ]
}

func (p *Provider) rememberFilters(domain, typ string, filters []api.Filter) {
	byType := p.recordFilters[domain]
	if byType == nil {
		byType = map[string][]api.Filter{}
		p.recordFilters[domain] = byType
	}
	byType[typ] = filters
}

// ListZones returns all zone names, sorted and absolute.
func (p *Provider) ListZones(ctx context.Context) ([]string, error) {
	zones, err := p.client.ZonesList(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(zones))
	for _, z := range zones {
		names = append(names, z.Zone+".")
	}
	sort.Strings(names)
	return names, nil
}

// Populate fills the zone with records reconstructed from remote state and
// reports whether the zone exists remotely.
func (p *Provider) Populate(ctx context.Context, zone *dns.Zone) (bool, error) {
	p.log.V(1).Info("populate", "zone", zone.Name)

	zoneName := strings.TrimSuffix(zone.Name, ".")
	remote, err := p.client.ZoneRetrieve(ctx, zoneName)
	if err != nil {
		if api.NotFoundMessage(err) == zoneNotFoundMessage {
			p.log.Info("populate: zone does not exist", "zone", zone.Name)
			return false, nil
		}
		return false, fmt.Errorf("ns1: retrieving zone %s: %w", zoneName, err)
	}

	before := zone.Len()
	for _, zr := range remote.Records {
		if !supportedTypes[zr.Type] {
			continue
		}

		rec := &api.Record{
			Zone:         zoneName,
			Domain:       zr.Domain,
			Type:         zr.Type,
			TTL:          zr.TTL,
			Tier:         zr.Tier,
			ShortAnswers: zr.ShortAnswers,
		}
		if absoluteTypes[zr.Type] {
			answers := make([]string, len(rec.ShortAnswers))
			for i, a := range rec.ShortAnswers {
				answers[i] = dns.EnsureTrailingDot(a)
			}
			rec.ShortAnswers = answers
		}

		if zr.Tier > 1 {
			// Steering config is only present on a full retrieval.
			full, err := p.client.RecordRetrieve(ctx, zoneName, zr.Domain, zr.Type)
			if err != nil {
				return true, fmt.Errorf("ns1: retrieving record %s %s: %w", zr.Domain, zr.Type, err)
			}
			rec = full
		}

		record := dataFor[rec.Type](p, rec.Type, rec)
		record.Name = dns.HostnameFromFQDN(rec.Domain, zone.Name)
		zone.AddRecord(record)
	}

	p.log.Info("populate: done", "zone", zone.Name, "found", zone.Len()-before, "exists", true)
	return true, nil
}

// ProcessDesired validates desired records before planning, rejecting
// health-check protocols and bare continent codes the platform cannot
// express. It runs before any mutation so a bad batch never touches remote
// state.
func (p *Provider) ProcessDesired(records []*dns.Record) error {
	for _, record := range records {
		if !record.IsDynamic() {
			continue
		}

		protocol := record.HealthCheck.EffectiveProtocol()
		switch protocol {
		case "HTTP", "HTTPS", "ICMP", "TCP":
		default:
			return unsupportedf("healthcheck protocol %q not supported", protocol)
		}

		for _, rule := range record.Dynamic.Rules {
			for _, geo := range rule.Geos {
				if len(geo) == 2 && !supportedContinents[geo] {
					return unsupportedf("unsupported continent code %s in %s", geo, record.FQDN())
				}
			}
		}
	}
	return nil
}

// ExtraChanges appends synthetic updates for dynamic records whose remote
// filter chain or monitor state has drifted without any declarative change.
func (p *Provider) ExtraChanges(ctx context.Context, desired []*dns.Record, changes []dns.Change) ([]dns.Change, error) {
	changed := map[string]bool{}
	for _, c := range changes {
		r := c.Record()
		changed[r.Type+"/"+r.FQDN()] = true
	}

	var extra []dns.Change
	for _, record := range desired {
		if !record.IsDynamic() {
			continue
		}

		update := false
		domain := strings.TrimSuffix(record.FQDN(), ".")

		// An unrecognized filter chain means the record was written by
		// an older encoding (or touched by hand); rewrite it even though
		// the declarative config did not change.
		filters := p.recordFilters[domain][record.Type]
		if !validFilterConfig(filters) {
			p.log.Info("extra changes: unrecognized filters, will update record", "domain", domain)
			update = true
		}

		existing, err := p.monitorsFor(ctx, record)
		if err != nil {
			return nil, err
		}
		for _, pool := range record.Dynamic.Pools {
			for _, val := range pool.Values {
				if val.Status != dns.StatusObey {
					continue
				}

				expected, err := p.monitorGen(record, val.Value)
				if err != nil {
					return nil, err
				}

				have := existing[val.Value]
				if have == nil {
					p.log.Info("extra changes: missing monitor", "name", expected.Name)
					update = true
					continue
				}

				if !p.monitorIsMatch(expected, have) {
					if expected.JobType == have.JobType {
						p.log.Info("extra changes: monitor mismatch", "name", expected.Name)
					} else {
						// Job types are immutable remotely: this will
						// delete and recreate the monitor, leaving the
						// value treated as healthy until the new job
						// reports. Irreversible and not atomic.
						p.log.Info("extra changes: monitor job type changed, will delete and recreate",
							"name", expected.Name, "from", have.JobType, "to", expected.JobType, "value", val.Value)
					}
					update = true
				}

				if have.NotifyList == "" {
					p.log.Info("extra changes: broken monitor, no notify list",
						"name", expected.Name, "id", have.ID)
					update = true
				}
			}
		}

		if update && !changed[record.Type+"/"+record.FQDN()] {
			extra = append(extra, dns.Update{Existing: record, New: record})
		}
	}

	return extra, nil
}

func hasDynamic(changes []dns.Change) bool {
	for _, change := range changes {
		if change.Record().IsDynamic() {
			return true
		}
	}
	return false
}

// forceRootNSUpdate rewrites root NS creates into updates. The platform
// auto-creates root NS records with the zone, so our desired state has to be
// applied over them.
func (p *Provider) forceRootNSUpdate(changes []dns.Change) []dns.Change {
	for i, change := range changes {
		if create, ok := change.(dns.Create); ok &&
			create.New.Name == "" && create.New.Type == "NS" {
			p.log.Info("found root NS record creation, changing to update")
			changes[i] = dns.Update{New: create.New}
		}
	}
	return changes
}

// Apply issues the batch of changes against the zone, creating it when
// missing. A batch with any health-check-backed change is rejected whole
// when monitor regions are not configured.
func (p *Provider) Apply(ctx context.Context, zoneName string, changes []dns.Change) error {
	p.log.V(1).Info("apply", "zone", zoneName, "changes", len(changes))

	if hasDynamic(changes) && len(p.monitorRegions) == 0 {
		return unsupportedf("monitored record, but monitor regions not set")
	}

	zoneName = strings.TrimSuffix(zoneName, ".")
	if _, err := p.client.ZoneRetrieve(ctx, zoneName); err != nil {
		if api.NotFoundMessage(err) != zoneNotFoundMessage {
			return fmt.Errorf("ns1: retrieving zone %s: %w", zoneName, err)
		}
		p.log.V(1).Info("apply: no matching zone, creating", "zone", zoneName)
		if _, err := p.client.ZoneCreate(ctx, zoneName); err != nil {
			return fmt.Errorf("ns1: creating zone %s: %w", zoneName, err)
		}
		changes = p.forceRootNSUpdate(changes)
	}

	for _, change := range changes {
		var err error
		switch c := change.(type) {
		case dns.Create:
			err = p.applyCreate(ctx, zoneName, c)
		case dns.Update:
			err = p.applyUpdate(ctx, zoneName, c)
		case dns.Delete:
			err = p.applyDelete(ctx, zoneName, c)
		default:
			err = fmt.Errorf("ns1: unknown change type %T", change)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) applyCreate(ctx context.Context, zoneName string, change dns.Create) error {
	record := change.New
	params, activeMonitors, err := p.paramsFor(ctx, record)
	if err != nil {
		return err
	}
	params.Zone = zoneName
	params.Domain = strings.TrimSuffix(record.FQDN(), ".")
	params.Type = record.Type
	if _, err := p.client.RecordCreate(ctx, params); err != nil {
		return fmt.Errorf("ns1: creating record %s %s: %w", params.Domain, params.Type, err)
	}
	return p.monitorsGC(ctx, record, activeMonitors)
}

func (p *Provider) applyUpdate(ctx context.Context, zoneName string, change dns.Update) error {
	record := change.New
	params, activeMonitors, err := p.paramsFor(ctx, record)
	if err != nil {
		return err
	}
	params.Zone = zoneName
	params.Domain = strings.TrimSuffix(record.FQDN(), ".")
	params.Type = record.Type
	if _, err := p.client.RecordUpdate(ctx, params); err != nil {
		return fmt.Errorf("ns1: updating record %s %s: %w", params.Domain, params.Type, err)
	}
	// Existing is nil when a create was swapped for an update on zone
	// creation; otherwise clean up against the old record since it holds
	// whatever needs collecting.
	if change.Existing != nil {
		return p.monitorsGC(ctx, change.Existing, activeMonitors)
	}
	return nil
}

func (p *Provider) applyDelete(ctx context.Context, zoneName string, change dns.Delete) error {
	existing := change.Existing
	domain := strings.TrimSuffix(existing.FQDN(), ".")
	if err := p.client.RecordDelete(ctx, zoneName, domain, existing.Type); err != nil {
		return fmt.Errorf("ns1: deleting record %s %s: %w", domain, existing.Type, err)
	}
	return p.monitorsGC(ctx, existing, nil)
}

// Record-type dispatch tables. dataFor converts wire records to the
// declarative model on populate; paramsFor builds wire payloads on apply.

type dataForFunc func(p *Provider, typ string, rec *api.Record) *dns.Record

var dataFor = map[string]dataForFunc{
	"A":     (*Provider).dataForAddress,
	"AAAA":  (*Provider).dataForAddress,
	"ALIAS": (*Provider).dataForAlias,
	"CNAME": (*Provider).dataForAlias,
	"DNAME": (*Provider).dataForAlias,
	"NS":    (*Provider).dataForValues,
	"PTR":   (*Provider).dataForValues,
	"TXT":   (*Provider).dataForValues,
}

// dynamicMarker returns the note fragment whose presence on the first
// answer marks a parseable dynamic record.
func dynamicMarker(typ string) string {
	if typ == "CNAME" || typ == "ALIAS" || typ == "DNAME" {
		return "pool:"
	}
	return "from:"
}

func (p *Provider) parseableDynamic(typ string, rec *api.Record) bool {
	var firstNote string
	if len(rec.Answers) > 0 {
		firstNote = rec.Answers[0].Meta.Note
	}
	return strings.Contains(firstNote, dynamicMarker(typ))
}

func (p *Provider) dataForAddress(typ string, rec *api.Record) *dns.Record {
	if rec.Tier > 1 {
		if p.parseableDynamic(typ, rec) {
			return p.dataForDynamic(rec)
		}
		// Unparseable legacy state degrades to an empty record rather
		// than failing the whole populate.
		p.log.Info("cannot parse dynamic record due to missing pool name in first answer note, treating it as an empty record",
			"domain", rec.Domain)
		return &dns.Record{Type: typ, TTL: rec.TTL}
	}
	return &dns.Record{Type: typ, TTL: rec.TTL, Values: rec.ShortAnswers}
}

func (p *Provider) dataForAlias(typ string, rec *api.Record) *dns.Record {
	if rec.Tier > 1 {
		if p.parseableDynamic(typ, rec) {
			return p.dataForDynamic(rec)
		}
		p.log.Info("cannot parse dynamic record due to missing pool name in first answer note, treating it as an empty record",
			"domain", rec.Domain)
		return &dns.Record{Type: typ, TTL: rec.TTL}
	}
	record := &dns.Record{Type: typ, TTL: rec.TTL}
	if len(rec.ShortAnswers) > 0 {
		record.Values = rec.ShortAnswers[:1]
	}
	return record
}

func (p *Provider) dataForValues(typ string, rec *api.Record) *dns.Record {
	return &dns.Record{Type: typ, TTL: rec.TTL, Values: rec.ShortAnswers}
}

func flatAnswers(values []string) []api.Answer {
	answers := make([]api.Answer, 0, len(values))
	for _, v := range values {
		answers = append(answers, api.Answer{Answer: []string{v}})
	}
	return answers
}

// paramsFor builds the wire payload for a record, returning the monitor ids
// referenced by dynamic answers.
func (p *Provider) paramsFor(ctx context.Context, record *dns.Record) (*api.Record, map[string]bool, error) {
	if !supportedTypes[record.Type] {
		return nil, nil, unsupportedf("record type %q not supported", record.Type)
	}
	if record.IsDynamic() {
		return p.paramsForDynamic(ctx, record)
	}
	return &api.Record{
		Answers: flatAnswers(record.Values),
		Filters: []api.Filter{},
		Regions: map[string]api.Region{},
		TTL:     record.TTL,
	}, nil, nil
}
