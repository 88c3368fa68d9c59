package ns1

import (
	"context"
	"errors"
	"reflect"
	"testing"

	logrtesting "github.com/go-logr/logr/testing"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/apitest"
)

func newTestProvider(t *testing.T, opts Options) (*Provider, *apitest.Server) {
	t.Helper()
	server := apitest.NewServer()
	return newProviderOver(t, server, opts), server
}

func newProviderOver(t *testing.T, server *apitest.Server, opts Options) *Provider {
	t.Helper()
	return New(logrtesting.NewTestLogger(t), server, opts)
}

func TestPopulateAbsentZone(t *testing.T) {
	p, _ := newTestProvider(t, Options{})
	zone := dns.NewZone("unit.tests.")

	exists, err := p.Populate(context.Background(), zone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected exists=false for absent zone")
	}
	if zone.Len() != 0 {
		t.Errorf("expected empty zone, got %d records", zone.Len())
	}
}

func TestApplyFlatRecordsRoundTrip(t *testing.T) {
	p, server := newTestProvider(t, Options{})
	ctx := context.Background()

	changes := []dns.Change{
		dns.Create{New: &dns.Record{
			Name: "www", Zone: "unit.tests.", Type: "A", TTL: 60,
			Values: []string{"1.2.3.4", "1.2.3.5"},
		}},
		dns.Create{New: &dns.Record{
			Name: "txt", Zone: "unit.tests.", Type: "TXT", TTL: 300,
			Values: []string{"hello world"},
		}},
		dns.Create{New: &dns.Record{
			Name: "sub", Zone: "unit.tests.", Type: "NS", TTL: 3600,
			Values: []string{"ns1.example.com.", "ns2.example.com."},
		}},
	}
	if err := p.Apply(ctx, "unit.tests.", changes); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	stored := server.Record("unit.tests", "www.unit.tests", "A")
	if stored == nil {
		t.Fatal("expected A record stored")
	}
	if stored.TTL != 60 || len(stored.Answers) != 2 {
		t.Errorf("unexpected stored record %+v", stored)
	}
	if len(stored.Filters) != 0 || len(stored.Regions) != 0 {
		t.Errorf("expected flat record without filters/regions, got %+v", stored)
	}

	// A fresh provider reads it all back, short NS answers made absolute.
	p2 := newProviderOver(t, server, Options{})
	zone := dns.NewZone("unit.tests.")
	exists, err := p2.Populate(ctx, zone)
	if err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	if !exists {
		t.Fatal("expected zone to exist")
	}
	// www A, txt TXT, sub NS plus the auto-created root NS.
	if zone.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", zone.Len())
	}

	var sub *dns.Record
	for _, r := range zone.Records() {
		if r.Name == "sub" && r.Type == "NS" {
			sub = r
		}
	}
	if sub == nil {
		t.Fatal("expected sub NS record")
	}
	if !reflect.DeepEqual(sub.Values, []string{"ns1.example.com.", "ns2.example.com."}) {
		t.Errorf("expected absolute NS values, got %v", sub.Values)
	}
}

func steeredTestRecord() *dns.Record {
	return &dns.Record{
		Name: "www", Zone: "unit.tests.", Type: "A", TTL: 60,
		Values: []string{"9.9.9.9"},
		Dynamic: &dns.Dynamic{
			Pools: map[string]*dns.Pool{
				"lhr": {Fallback: "iad", Values: []dns.Value{
					{Value: "1.2.3.4", Weight: 10, Status: dns.StatusObey},
					{Value: "1.2.3.5", Weight: 12, Status: dns.StatusUp},
				}},
				"iad": {Values: []dns.Value{
					{Value: "2.2.3.4", Status: dns.StatusDown},
					{Value: "2.2.3.5", Status: dns.StatusObey},
				}},
			},
			Rules: []dns.Rule{
				{Pool: "lhr", Geos: []string{"EU", "NA-US-CA"}, Subnets: []string{"10.0.0.0/8"}},
				{Pool: "iad"},
			},
		},
	}
}

func TestApplyDynamicRecord(t *testing.T) {
	p, server := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})
	ctx := context.Background()

	record := steeredTestRecord()
	if err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: record}}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	stored := server.Record("unit.tests", "www.unit.tests", "A")
	if stored == nil {
		t.Fatal("expected record stored")
	}

	if len(stored.Regions) != 4 {
		t.Errorf("expected 4 regions, got %v", stored.Regions)
	}
	for _, label := range []string{"lhr__georegion", "lhr__country", "lhr__subnet", "iad__catchall"} {
		if _, ok := stored.Regions[label]; !ok {
			t.Errorf("expected region %s", label)
		}
	}

	// up + subnet + country + region fences + 4-step tail.
	if len(stored.Filters) != 8 {
		t.Errorf("expected 8 filters, got %d", len(stored.Filters))
	}
	if !validFilterConfig(stored.Filters) {
		t.Error("expected written filter chain to validate")
	}

	// iad__catchall: 2 pool answers + 1 default; each lhr region: 2 lhr +
	// 2 iad fallback + 1 default.
	if len(stored.Answers) != 18 {
		t.Errorf("expected 18 answers, got %d", len(stored.Answers))
	}

	// Obey values get monitors; 1.2.3.4 and 2.2.3.5.
	if server.MonitorCount() != 2 {
		t.Errorf("expected 2 monitors, got %d", server.MonitorCount())
	}
	if server.FeedCount() != 2 {
		t.Errorf("expected 2 feeds, got %d", server.FeedCount())
	}
}

func TestDynamicRoundTrip(t *testing.T) {
	p, server := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})
	ctx := context.Background()

	if err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: steeredTestRecord()}}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	p2 := newProviderOver(t, server, Options{MonitorRegions: []string{"lga"}})
	zone := dns.NewZone("unit.tests.")
	if _, err := p2.Populate(ctx, zone); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	var got *dns.Record
	for _, r := range zone.Records() {
		if r.Name == "www" && r.Type == "A" {
			got = r
		}
	}
	if got == nil {
		t.Fatal("expected www A record")
	}
	if !got.IsDynamic() {
		t.Fatal("expected dynamic record")
	}

	if !reflect.DeepEqual(got.Values, []string{"9.9.9.9"}) {
		t.Errorf("expected defaults [9.9.9.9], got %v", got.Values)
	}

	lhr := got.Dynamic.Pools["lhr"]
	if lhr == nil {
		t.Fatal("expected lhr pool")
	}
	if lhr.Fallback != "iad" {
		t.Errorf("expected lhr fallback iad, got %q", lhr.Fallback)
	}
	wantLhr := []dns.Value{
		{Value: "1.2.3.4", Weight: 10, Status: dns.StatusObey},
		{Value: "1.2.3.5", Weight: 12, Status: dns.StatusUp},
	}
	if !reflect.DeepEqual(lhr.Values, wantLhr) {
		t.Errorf("expected lhr values %v, got %v", wantLhr, lhr.Values)
	}

	iad := got.Dynamic.Pools["iad"]
	if iad == nil {
		t.Fatal("expected iad pool")
	}
	wantIad := []dns.Value{
		{Value: "2.2.3.4", Weight: 1, Status: dns.StatusDown},
		{Value: "2.2.3.5", Weight: 1, Status: dns.StatusObey},
	}
	if !reflect.DeepEqual(iad.Values, wantIad) {
		t.Errorf("expected iad values %v, got %v", wantIad, iad.Values)
	}

	wantRules := []dns.Rule{
		{Pool: "lhr", Geos: []string{"EU", "NA-US-CA"}, Subnets: []string{"10.0.0.0/8"}},
		{Pool: "iad"},
	}
	if !reflect.DeepEqual(got.Dynamic.Rules, wantRules) {
		t.Errorf("expected rules %+v, got %+v", wantRules, got.Dynamic.Rules)
	}
}

func TestApplyUpdateAndDelete(t *testing.T) {
	p, server := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})
	ctx := context.Background()

	record := steeredTestRecord()
	if err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: record}}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// Dropping the obey value from iad leaves one monitor after GC.
	updated := steeredTestRecord()
	updated.Dynamic.Pools["iad"].Values = updated.Dynamic.Pools["iad"].Values[:1]
	if err := p.Apply(ctx, "unit.tests.", []dns.Change{
		dns.Update{Existing: record, New: updated},
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if server.MonitorCount() != 1 {
		t.Errorf("expected 1 monitor after update, got %d", server.MonitorCount())
	}

	if err := p.Apply(ctx, "unit.tests.", []dns.Change{
		dns.Delete{Existing: updated},
	}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if server.Record("unit.tests", "www.unit.tests", "A") != nil {
		t.Error("expected record deleted")
	}
	if server.MonitorCount() != 0 || server.FeedCount() != 0 {
		t.Errorf("expected monitors and feeds gone, got %d/%d",
			server.MonitorCount(), server.FeedCount())
	}
}

func TestApplyDynamicWithoutMonitorRegions(t *testing.T) {
	p, server := newTestProvider(t, Options{MonitorRegions: []string{}})
	ctx := context.Background()

	err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: steeredTestRecord()}})
	if err == nil {
		t.Fatal("expected error applying dynamic change without monitor regions")
	}
	var ue *UnsupportedError
	if !errors.As(err, &ue) {
		t.Errorf("expected UnsupportedError, got %T: %v", err, err)
	}
	// The whole batch is rejected before anything is sent.
	if server.Calls("ZoneRetrieve") != 0 || server.Calls("ZoneCreate") != 0 {
		t.Error("expected no remote calls before the gate")
	}
}

func TestForceRootNSUpdate(t *testing.T) {
	p, server := newTestProvider(t, Options{})
	ctx := context.Background()

	rootNS := &dns.Record{
		Name: "", Zone: "unit.tests.", Type: "NS", TTL: 3600,
		Values: []string{"ns1.example.com.", "ns2.example.com."},
	}
	// The platform auto-creates root NS on zone creation; the create still
	// lands as an update.
	if err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: rootNS}}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	stored := server.Record("unit.tests", "unit.tests", "NS")
	if stored == nil {
		t.Fatal("expected root NS record")
	}
	want := []string{"ns1.example.com.", "ns2.example.com."}
	var got []string
	for _, a := range stored.Answers {
		got = append(got, a.Answer[0])
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected answers %v, got %v", want, got)
	}
	if server.Calls("RecordCreate") != 0 {
		t.Error("expected no record create for root NS")
	}
}

func TestProcessDesired(t *testing.T) {
	p, _ := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})

	ok := steeredTestRecord()
	if err := p.ProcessDesired([]*dns.Record{ok}); err != nil {
		t.Errorf("unexpected error for valid record: %v", err)
	}

	badProtocol := steeredTestRecord()
	badProtocol.HealthCheck.Protocol = "GOPHER"
	if err := p.ProcessDesired([]*dns.Record{badProtocol}); err == nil {
		t.Error("expected error for unsupported protocol")
	}

	badGeo := steeredTestRecord()
	badGeo.Dynamic.Rules[0].Geos = []string{"OC"}
	if err := p.ProcessDesired([]*dns.Record{badGeo}); err == nil {
		t.Error("expected error for unsupported bare continent")
	}
}

func TestExtraChangesNoDrift(t *testing.T) {
	p, server := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})
	ctx := context.Background()

	if err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: steeredTestRecord()}}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	p2 := newProviderOver(t, server, Options{MonitorRegions: []string{"lga"}})
	zone := dns.NewZone("unit.tests.")
	if _, err := p2.Populate(ctx, zone); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	extra, err := p2.ExtraChanges(ctx, []*dns.Record{steeredTestRecord()}, nil)
	if err != nil {
		t.Fatalf("extra changes failed: %v", err)
	}
	if len(extra) != 0 {
		t.Errorf("expected no extra changes, got %d", len(extra))
	}
}

func TestExtraChangesMissingMonitor(t *testing.T) {
	p, server := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})
	ctx := context.Background()

	if err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: steeredTestRecord()}}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// Someone deletes a monitor behind our back.
	monitors, err := p.client.MonitorsList(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := server.MonitorDelete(ctx, monitors[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p2 := newProviderOver(t, server, Options{MonitorRegions: []string{"lga"}})
	zone := dns.NewZone("unit.tests.")
	if _, err := p2.Populate(ctx, zone); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	desired := steeredTestRecord()
	extra, err := p2.ExtraChanges(ctx, []*dns.Record{desired}, nil)
	if err != nil {
		t.Fatalf("extra changes failed: %v", err)
	}
	if len(extra) != 1 {
		t.Fatalf("expected 1 extra change, got %d", len(extra))
	}
	update, ok := extra[0].(dns.Update)
	if !ok {
		t.Fatalf("expected an update, got %T", extra[0])
	}
	if update.New != desired {
		t.Error("expected the desired record in the synthetic update")
	}
}

func TestExtraChangesSkipsAlreadyChanged(t *testing.T) {
	p, _ := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})
	ctx := context.Background()

	// No remote state at all, so the record would be flagged, but it is
	// already part of the change batch.
	desired := steeredTestRecord()
	changes := []dns.Change{dns.Create{New: desired}}
	extra, err := p.ExtraChanges(ctx, []*dns.Record{desired}, changes)
	if err != nil {
		t.Fatalf("extra changes failed: %v", err)
	}
	if len(extra) != 0 {
		t.Errorf("expected no extra changes, got %d", len(extra))
	}
}

func TestExtraChangesBrokenMonitor(t *testing.T) {
	p, server := newTestProvider(t, Options{MonitorRegions: []string{"lga"}})
	ctx := context.Background()

	if err := p.Apply(ctx, "unit.tests.", []dns.Change{dns.Create{New: steeredTestRecord()}}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// Replace a monitor with a copy that has no notify list, simulating one
	// created half-way.
	monitors, err := server.MonitorsList(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	broken := monitors[0]
	if err := server.MonitorDelete(ctx, broken.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	broken.ID = ""
	broken.NotifyList = ""
	if _, err := server.MonitorCreate(ctx, &broken); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p2 := newProviderOver(t, server, Options{MonitorRegions: []string{"lga"}})
	zone := dns.NewZone("unit.tests.")
	if _, err := p2.Populate(ctx, zone); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	extra, err := p2.ExtraChanges(ctx, []*dns.Record{steeredTestRecord()}, nil)
	if err != nil {
		t.Fatalf("extra changes failed: %v", err)
	}
	if len(extra) != 1 {
		t.Errorf("expected 1 extra change for broken monitor, got %d", len(extra))
	}
}

func TestListZones(t *testing.T) {
	p, server := newTestProvider(t, Options{})
	ctx := context.Background()

	for _, name := range []string{"zzz.example", "aaa.example"} {
		if _, err := server.ZoneCreate(ctx, name); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	zones, err := p.ListZones(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"aaa.example.", "zzz.example."}
	if !reflect.DeepEqual(zones, want) {
		t.Errorf("expected %v, got %v", want, zones)
	}
}

func TestPopulateLenientOnUnparseableDynamic(t *testing.T) {
	p, server := newTestProvider(t, Options{})
	ctx := context.Background()

	if _, err := server.ZoneCreate(ctx, "unit.tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Steered record written by some other tool: no parseable notes.
	if _, err := server.RecordCreate(ctx, &api.Record{
		Zone: "unit.tests", Domain: "www.unit.tests", Type: "A", TTL: 60,
		Answers: []api.Answer{{Answer: []string{"1.2.3.4"}, Meta: api.Meta{Priority: 1}}},
		Regions: map[string]api.Region{"foo": {}},
		Filters: filterChainFor(false, false, false),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zone := dns.NewZone("unit.tests.")
	if _, err := p.Populate(ctx, zone); err != nil {
		t.Fatalf("populate failed: %v", err)
	}

	var got *dns.Record
	for _, r := range zone.Records() {
		if r.Name == "www" {
			got = r
		}
	}
	if got == nil {
		t.Fatal("expected www record")
	}
	if got.IsDynamic() || len(got.Values) != 0 {
		t.Errorf("expected empty record for unparseable dynamic state, got %+v", got)
	}
	if got.TTL != 60 {
		t.Errorf("expected ttl carried over, got %d", got.TTL)
	}
}

func TestSupports(t *testing.T) {
	p, _ := newTestProvider(t, Options{})
	for _, typ := range []string{"A", "AAAA", "ALIAS", "CNAME", "DNAME", "NS", "PTR", "TXT"} {
		if !p.Supports(typ) {
			t.Errorf("expected %s supported", typ)
		}
	}
	for _, typ := range []string{"MX", "SRV", "CAA", "URLFWD"} {
		if p.Supports(typ) {
			t.Errorf("expected %s unsupported", typ)
		}
	}
}
