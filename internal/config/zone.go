package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/dns"
)

// zoneFile is the YAML shape of a desired-state zone file.
type zoneFile struct {
	Zone    string       `yaml:"zone"`
	Records []recordYAML `yaml:"records"`
}

type recordYAML struct {
	Name        string           `yaml:"name"`
	Type        string           `yaml:"type"`
	TTL         int              `yaml:"ttl"`
	Values      []string         `yaml:"values"`
	Dynamic     *dynamicYAML     `yaml:"dynamic"`
	HealthCheck *healthCheckYAML `yaml:"healthcheck"`
}

type dynamicYAML struct {
	Pools map[string]poolYAML `yaml:"pools"`
	Rules []ruleYAML          `yaml:"rules"`
}

type poolYAML struct {
	Fallback string      `yaml:"fallback"`
	Values   []valueYAML `yaml:"values"`
}

type valueYAML struct {
	Value  string `yaml:"value"`
	Weight int    `yaml:"weight"`
	Status string `yaml:"status"`
}

type ruleYAML struct {
	Pool    string   `yaml:"pool"`
	Geos    []string `yaml:"geos"`
	Subnets []string `yaml:"subnets"`
}

type healthCheckYAML struct {
	Protocol        string `yaml:"protocol"`
	Port            int    `yaml:"port"`
	Path            string `yaml:"path"`
	Host            string `yaml:"host"`
	Policy          string `yaml:"policy"`
	Frequency       int    `yaml:"frequency"`
	RapidRecheck    bool   `yaml:"rapid_recheck"`
	ConnectTimeout  int    `yaml:"connect_timeout"`
	ResponseTimeout int    `yaml:"response_timeout"`
	HTTPVersion     string `yaml:"http_version"`
}

// LoadZone reads a desired-state zone file into a zone of records.
func LoadZone(path string) (*dns.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading zone file: %w", err)
	}

	var zf zoneFile
	if err := yaml.Unmarshal(data, &zf); err != nil {
		return nil, fmt.Errorf("parsing zone file: %w", err)
	}
	if zf.Zone == "" {
		return nil, fmt.Errorf("zone file: missing required field 'zone'")
	}

	zone := dns.NewZone(zf.Zone)
	for i, ry := range zf.Records {
		if ry.Type == "" {
			return nil, fmt.Errorf("zone file: record %d: missing required field 'type'", i)
		}
		record := &dns.Record{
			Name:   ry.Name,
			Type:   ry.Type,
			TTL:    ry.TTL,
			Values: ry.Values,
		}
		if ry.Dynamic != nil {
			record.Dynamic, err = ry.Dynamic.toModel(i)
			if err != nil {
				return nil, err
			}
		}
		if ry.HealthCheck != nil {
			record.HealthCheck = dns.HealthCheck{
				Protocol:        ry.HealthCheck.Protocol,
				Port:            ry.HealthCheck.Port,
				Path:            ry.HealthCheck.Path,
				Host:            ry.HealthCheck.Host,
				Policy:          ry.HealthCheck.Policy,
				Frequency:       ry.HealthCheck.Frequency,
				RapidRecheck:    ry.HealthCheck.RapidRecheck,
				ConnectTimeout:  ry.HealthCheck.ConnectTimeout,
				ResponseTimeout: ry.HealthCheck.ResponseTimeout,
				HTTPVersion:     ry.HealthCheck.HTTPVersion,
			}
		}
		zone.AddRecord(record)
	}
	return zone, nil
}

func (dy *dynamicYAML) toModel(i int) (*dns.Dynamic, error) {
	if len(dy.Pools) == 0 {
		return nil, fmt.Errorf("zone file: record %d: dynamic config has no pools", i)
	}
	dynamic := &dns.Dynamic{Pools: map[string]*dns.Pool{}}
	for name, py := range dy.Pools {
		pool := &dns.Pool{Fallback: py.Fallback}
		for _, vy := range py.Values {
			status := vy.Status
			if status == "" {
				status = dns.StatusObey
			}
			switch status {
			case dns.StatusUp, dns.StatusDown, dns.StatusObey:
			default:
				return nil, fmt.Errorf("zone file: record %d: pool %s: unknown status %q", i, name, status)
			}
			pool.Values = append(pool.Values, dns.Value{
				Value:  vy.Value,
				Weight: vy.Weight,
				Status: status,
			})
		}
		dynamic.Pools[name] = pool
	}
	for _, ry := range dy.Rules {
		if _, ok := dynamic.Pools[ry.Pool]; !ok {
			return nil, fmt.Errorf("zone file: record %d: rule references unknown pool %q", i, ry.Pool)
		}
		dynamic.Rules = append(dynamic.Rules, dns.Rule{
			Pool:    ry.Pool,
			Geos:    ry.Geos,
			Subnets: ry.Subnets,
		})
	}
	if len(dynamic.Rules) == 0 {
		return nil, fmt.Errorf("zone file: record %d: dynamic config has no rules", i)
	}
	return dynamic, nil
}
