package ns1

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
)

// SharedNotifyListName is the single notify list reused by every monitor
// when shared notify lists are enabled.
const SharedNotifyListName = "yk-ns1-sync Notify List"

// monitorsFor returns the monitors belonging to a dynamic record, keyed by
// the value they probe. A monitor belongs to the record when its correlation
// note matches the record's host and type; the probed value comes from the
// note (modern encoding) or falls back to the job config host (legacy TCP
// monitors).
func (p *Provider) monitorsFor(ctx context.Context, record *dns.Record) (map[string]*api.Monitor, error) {
	found := map[string]*api.Monitor{}
	if !record.IsDynamic() {
		return found, nil
	}

	expectedHost := strings.TrimSuffix(record.FQDN(), ".")
	expectedType := record.Type

	monitors, err := p.client.Monitors(ctx)
	if err != nil {
		return nil, err
	}
	for _, monitor := range monitors {
		notes := parseNotes(monitor.Notes)
		if len(notes) == 0 {
			continue
		}
		if notes.get("host") != expectedHost || notes.get("type") != expectedType {
			continue
		}
		value := notes.get("value")
		if value == "" {
			value, _ = monitor.Config["host"].(string)
		}
		if record.Type == "CNAME" {
			// Trailing dot so lookup by a CNAME answer works.
			value += "."
		}
		found[value] = monitor
	}

	return found, nil
}

// healthCheckHTTPVersion resolves the HTTP version for legacy TCP-emulated
// HTTP checks, rejecting anything but HTTP/1.0 and HTTP/1.1.
func (p *Provider) healthCheckHTTPVersion(record *dns.Record) (string, error) {
	version := record.HealthCheck.HTTPVersion
	if version == "" {
		version = p.defaultHTTPVersion
	}
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return "", unsupportedf(
			"http version %q, expected HTTP/1.0 or HTTP/1.1", version)
	}
	return version, nil
}

// monitorGen builds the expected monitor for a record value from its
// health-check config.
func (p *Provider) monitorGen(record *dns.Record, value string) (*api.Monitor, error) {
	host := strings.TrimSuffix(record.FQDN(), ".")
	typ := record.Type

	if typ == "CNAME" {
		// The platform rejects host values with a trailing dot.
		value = strings.TrimSuffix(value, ".")
	}

	notes := map[string]string{"host": host, "type": typ}

	hc := record.HealthCheck
	monitor := &api.Monitor{
		Active:       true,
		Name:         fmt.Sprintf("%s - %s - %s", host, typ, value),
		Policy:       hc.EffectivePolicy(),
		Frequency:    hc.EffectiveFrequency(),
		RapidRecheck: hc.RapidRecheck,
		RegionScope:  "fixed",
		Regions:      p.monitorRegions,
	}

	connectTimeout := hc.EffectiveConnectTimeout()
	responseTimeout := hc.EffectiveResponseTimeout()
	protocol := hc.EffectiveProtocol()

	switch {
	case protocol == "ICMP":
		monitor.JobType = "ping"
		monitor.Config = map[string]any{
			"count":    4,
			"host":     value,
			"interval": responseTimeout * 250, // 1/4 response timeout
			"ipv6":     typ == "AAAA",
			"timeout":  responseTimeout * 1000,
		}
	case protocol == "TCP" || !p.useHTTPMonitors:
		monitor.JobType = "tcp"
		monitor.Config = map[string]any{
			"host": value,
			"port": hc.EffectivePort(),
			// TCP monitors take milliseconds.
			"connect_timeout":  connectTimeout * 1000,
			"response_timeout": responseTimeout * 1000,
			"ssl":              protocol == "HTTPS",
		}
		if protocol != "TCP" {
			// Legacy HTTP-emulating TCP monitor: send a raw request
			// line and expect an HTTP response. The \r\n sequences are
			// literal escapes on the wire.
			version, err := p.healthCheckHTTPVersion(record)
			if err != nil {
				return nil, err
			}
			request := fmt.Sprintf(
				`GET %s %s\r\nHost: %s\r\nUser-agent: NS1\r\n\r\n`,
				hc.EffectivePath(), version, record.HealthCheckHostFor(value))
			monitor.Config["send"] = request
			monitor.Rules = []api.MonitorRule{
				{Comparison: "contains", Key: "output", Value: "200 OK"},
			}
		}
	default:
		// Modern HTTP monitor; timeouts stay in seconds.
		monitor.JobType = "http"
		domain := value
		if typ == "AAAA" {
			domain = "[" + value + "]"
		}
		url := fmt.Sprintf("%s://%s:%d%s",
			strings.ToLower(protocol), domain, hc.EffectivePort(), hc.EffectivePath())
		monitor.Config = map[string]any{
			"url":             url,
			"virtual_host":    record.HealthCheckHostFor(value),
			"user_agent":      "NS1",
			"tls_add_verify":  false,
			"follow_redirect": false,
			"connect_timeout": connectTimeout,
			"idle_timeout":    responseTimeout,
		}
		monitor.Rules = []api.MonitorRule{
			{Comparison: "==", Key: "status_code", Value: "200"},
		}
	}

	if typ == "AAAA" {
		monitor.Config["ipv6"] = true
	}

	if p.useHTTPMonitors {
		notes["value"] = value
	}
	monitor.Notes = encodeNotes(notes)

	return monitor, nil
}

// monitorIsMatch reports whether an observed monitor satisfies the expected
// one. Only fields the generator sets are compared; anything extra on the
// remote side is ignored. Config is compared key-by-key the same way, and
// region lists compare as sets.
func (p *Provider) monitorIsMatch(expected, have *api.Monitor) bool {
	logPrefix := "monitor mismatch"
	if have.Name != "" {
		logPrefix = fmt.Sprintf("monitor %q mismatch", have.Name)
	}
	mismatch := func(field string, got, want any) bool {
		p.log.V(1).Info(logPrefix, "field", field, "got", got, "expected", want)
		return false
	}

	if have.JobType != expected.JobType {
		return mismatch("job_type", have.JobType, expected.JobType)
	}
	if have.Active != expected.Active {
		return mismatch("active", have.Active, expected.Active)
	}
	if have.Name != expected.Name {
		return mismatch("name", have.Name, expected.Name)
	}
	if have.Notes != expected.Notes {
		return mismatch("notes", have.Notes, expected.Notes)
	}
	if have.Policy != expected.Policy {
		return mismatch("policy", have.Policy, expected.Policy)
	}
	if have.Frequency != expected.Frequency {
		return mismatch("frequency", have.Frequency, expected.Frequency)
	}
	if have.RapidRecheck != expected.RapidRecheck {
		return mismatch("rapid_recheck", have.RapidRecheck, expected.RapidRecheck)
	}
	if have.RegionScope != expected.RegionScope {
		return mismatch("region_scope", have.RegionScope, expected.RegionScope)
	}
	if !stringSetEqual(have.Regions, expected.Regions) {
		return mismatch("regions", have.Regions, expected.Regions)
	}
	for k, want := range expected.Config {
		got, ok := have.Config[k]
		if !ok || !configValueEqual(got, want) {
			return mismatch("config."+k, got, want)
		}
	}
	if len(expected.Rules) > 0 && !reflect.DeepEqual(have.Rules, expected.Rules) {
		return mismatch("rules", have.Rules, expected.Rules)
	}

	return true
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

// configValueEqual compares monitor config values, tolerating the numeric
// widening JSON decoding introduces.
func configValueEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// feedCreate binds a monitor's job to the reconciliation data source and
// returns the new feed's id.
func (p *Provider) feedCreate(ctx context.Context, monitor *api.Monitor) (string, error) {
	p.log.V(1).Info("creating feed", "monitor", monitor.ID)
	sourceID, err := p.client.DataSourceID(ctx)
	if err != nil {
		return "", err
	}
	feed, err := p.client.DataFeedCreate(ctx, sourceID, &api.DataFeed{
		Name:   fmt.Sprintf("%s - %s", monitor.Name, feedNameSuffix()),
		Config: api.DataFeedConfig{JobID: monitor.ID},
	})
	if err != nil {
		return "", err
	}
	p.log.V(1).Info("created feed", "feed", feed.ID)
	return feed.ID, nil
}

// feedNameSuffix disambiguates feed names for recreated monitors.
func feedNameSuffix() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:3])
}

// notifyListFindOrCreate returns the named notify list, creating a
// datafeed-forwarding one when it does not exist yet.
func (p *Provider) notifyListFindOrCreate(ctx context.Context, name string) (*api.NotifyList, error) {
	lists, err := p.client.NotifyLists(ctx)
	if err != nil {
		return nil, err
	}
	if nl, ok := lists[name]; ok {
		p.log.V(1).Info("found existing notify list", "name", name, "id", nl.ID)
		return nl, nil
	}

	sourceID, err := p.client.DataSourceID(ctx)
	if err != nil {
		return nil, err
	}
	nl, err := p.client.NotifyListCreate(ctx, &api.NotifyList{
		Name: name,
		NotifyList: []api.NotifyListEntry{
			{Type: "datafeed", Config: map[string]any{"sourceid": sourceID}},
		},
	})
	if err != nil {
		return nil, err
	}
	p.log.V(1).Info("created notify list", "name", name, "id", nl.ID)
	return nl, nil
}

// monitorCreate creates a monitor, its notify list (or reuses the shared
// one) and its feed, returning the new monitor and feed ids.
func (p *Provider) monitorCreate(ctx context.Context, monitor *api.Monitor) (monitorID, feedID string, err error) {
	p.log.V(1).Info("creating monitor", "name", monitor.Name)

	nlName := monitor.Name
	if p.sharedNotifyList {
		nlName = SharedNotifyListName
	}
	nl, err := p.notifyListFindOrCreate(ctx, nlName)
	if err != nil {
		return "", "", err
	}

	monitor.NotifyList = nl.ID
	created, err := p.client.MonitorCreate(ctx, monitor)
	if err != nil {
		return "", "", err
	}

	feedID, err = p.feedCreate(ctx, created)
	if err != nil {
		return "", "", err
	}
	return created.ID, feedID, nil
}

// monitorDelete removes a monitor along with its feed and, unless shared,
// its notify list.
func (p *Provider) monitorDelete(ctx context.Context, monitor *api.Monitor) error {
	feeds, err := p.client.FeedsForMonitors(ctx)
	if err != nil {
		return err
	}
	if feedID := feeds[monitor.ID]; feedID != "" {
		sourceID, err := p.client.DataSourceID(ctx)
		if err != nil {
			return err
		}
		if err := p.client.DataFeedDelete(ctx, sourceID, feedID); err != nil {
			return err
		}
	}

	if err := p.client.MonitorDelete(ctx, monitor.ID); err != nil {
		return err
	}

	lists, err := p.client.NotifyLists(ctx)
	if err != nil {
		return err
	}
	for _, nl := range lists {
		if nl.ID == monitor.NotifyList {
			if nl.Name != SharedNotifyListName {
				return p.client.NotifyListDelete(ctx, monitor.NotifyList)
			}
			break
		}
	}
	return nil
}

// monitorSync converges the monitor for one record value and returns the
// monitor and feed ids backing it. Job types are immutable remotely: a
// matched or same-type monitor is patched in place, a different job type
// forces delete+recreate (with new ids, and a transient healthy window until
// the new monitor reports).
func (p *Provider) monitorSync(ctx context.Context, record *dns.Record, value string, existing *api.Monitor) (monitorID, feedID string, err error) {
	p.log.V(1).Info("syncing monitor", "record", record.FQDN(), "value", value)
	expected, err := p.monitorGen(record, value)
	if err != nil {
		return "", "", err
	}

	if existing == nil {
		p.log.V(1).Info("monitor needs create")
		return p.monitorCreate(ctx, expected)
	}

	monitorID = existing.ID
	if !p.monitorIsMatch(expected, existing) {
		if expected.JobType == existing.JobType {
			p.log.V(1).Info("existing monitor needs update", "id", monitorID)
			// Patch to match expected; everything else on the remote
			// side is left alone and assumed correct.
			if _, err := p.client.MonitorUpdate(ctx, monitorID, expected); err != nil {
				return "", "", err
			}
		} else {
			p.log.Info("existing monitor needs replacing (delete+create)",
				"id", monitorID, "from", existing.JobType, "to", expected.JobType)
			if err := p.monitorDelete(ctx, existing); err != nil {
				return "", "", err
			}
			return p.monitorCreate(ctx, expected)
		}
	}

	feeds, err := p.client.FeedsForMonitors(ctx)
	if err != nil {
		return "", "", err
	}
	feedID = feeds[monitorID]
	if feedID == "" {
		p.log.Info("monitor missing feed, creating",
			"name", existing.Name, "id", monitorID)
		feedID, err = p.feedCreate(ctx, existing)
		if err != nil {
			return "", "", err
		}
	}
	return monitorID, feedID, nil
}

// monitorsGC deletes every monitor still associated with the record whose id
// is not in activeMonitorIDs, along with its feed and private notify list.
func (p *Provider) monitorsGC(ctx context.Context, record *dns.Record, activeMonitorIDs map[string]bool) error {
	p.log.V(1).Info("garbage collecting monitors",
		"record", record.FQDN(), "active", len(activeMonitorIDs))

	monitors, err := p.monitorsFor(ctx, record)
	if err != nil {
		return err
	}
	for _, monitor := range monitors {
		if activeMonitorIDs[monitor.ID] {
			continue
		}
		p.log.V(1).Info("deleting orphaned monitor", "id", monitor.ID)
		if err := p.monitorDelete(ctx, monitor); err != nil {
			return err
		}
	}
	return nil
}
