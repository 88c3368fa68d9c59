package config

import (
	"reflect"
	"testing"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/dns"
)

func TestLoadZone(t *testing.T) {
	content := `zone: unit.tests
records:
  - name: www
    type: A
    ttl: 60
    values: [9.9.9.9]
    dynamic:
      pools:
        lhr:
          fallback: iad
          values:
            - value: 1.2.3.4
              weight: 10
            - value: 1.2.3.5
              status: up
        iad:
          values:
            - value: 2.2.3.4
      rules:
        - pool: lhr
          geos: [EU, NA-US-CA]
          subnets: [10.0.0.0/8]
        - pool: iad
    healthcheck:
      protocol: HTTP
      port: 8080
      rapid_recheck: true
  - name: txt
    type: TXT
    ttl: 300
    values: ["hello world"]
`
	zone, err := LoadZone(writeFile(t, "zone.yaml", content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if zone.Name != "unit.tests." {
		t.Errorf("expected zone name 'unit.tests.', got %q", zone.Name)
	}
	if zone.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", zone.Len())
	}

	var www *dns.Record
	for _, r := range zone.Records() {
		if r.Name == "www" {
			www = r
		}
	}
	if www == nil {
		t.Fatal("expected www record")
	}
	if !www.IsDynamic() {
		t.Fatal("expected dynamic record")
	}

	lhr := www.Dynamic.Pools["lhr"]
	if lhr == nil || lhr.Fallback != "iad" {
		t.Fatalf("expected lhr pool with iad fallback, got %+v", lhr)
	}
	// Status defaults to obey.
	want := []dns.Value{
		{Value: "1.2.3.4", Weight: 10, Status: dns.StatusObey},
		{Value: "1.2.3.5", Status: dns.StatusUp},
	}
	if !reflect.DeepEqual(lhr.Values, want) {
		t.Errorf("expected values %+v, got %+v", want, lhr.Values)
	}

	if len(www.Dynamic.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(www.Dynamic.Rules))
	}
	first := www.Dynamic.Rules[0]
	if first.Pool != "lhr" || !reflect.DeepEqual(first.Geos, []string{"EU", "NA-US-CA"}) {
		t.Errorf("unexpected first rule %+v", first)
	}

	if www.HealthCheck.Protocol != "HTTP" || www.HealthCheck.Port != 8080 || !www.HealthCheck.RapidRecheck {
		t.Errorf("unexpected healthcheck %+v", www.HealthCheck)
	}
}

func TestLoadZoneMissingZoneName(t *testing.T) {
	if _, err := LoadZone(writeFile(t, "zone.yaml", "records: []\n")); err == nil {
		t.Fatal("expected error for missing zone name")
	}
}

func TestLoadZoneUnknownPoolInRule(t *testing.T) {
	content := `zone: unit.tests
records:
  - name: www
    type: A
    dynamic:
      pools:
        lhr:
          values:
            - value: 1.2.3.4
      rules:
        - pool: nonexistent
`
	if _, err := LoadZone(writeFile(t, "zone.yaml", content)); err == nil {
		t.Fatal("expected error for rule referencing unknown pool")
	}
}

func TestLoadZoneBadStatus(t *testing.T) {
	content := `zone: unit.tests
records:
  - name: www
    type: A
    dynamic:
      pools:
        lhr:
          values:
            - value: 1.2.3.4
              status: sideways
      rules:
        - pool: lhr
`
	if _, err := LoadZone(writeFile(t, "zone.yaml", content)); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestLoadZoneNoRules(t *testing.T) {
	content := `zone: unit.tests
records:
  - name: www
    type: A
    dynamic:
      pools:
        lhr:
          values:
            - value: 1.2.3.4
      rules: []
`
	if _, err := LoadZone(writeFile(t, "zone.yaml", content)); err == nil {
		t.Fatal("expected error for dynamic config without rules")
	}
}
