// yk-ns1-sync preview: loads a desired-state zone file, applies it against an
// in-memory platform and prints the wire payloads that would be sent, monitors
// included. Nothing leaves the process; the real transport is wired in by
// whatever embeds the library.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/config"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/apitest"
)

var Version = "dev"

func main() {
	var (
		configPath = flag.String("config", "", "provider config file (optional)")
		zonePath   = flag.String("zone", "", "desired-state zone file (required)")
		regions    = flag.String("monitor-regions", "lga", "comma-separated monitor regions used when the config sets none")
		devLogging = flag.Bool("dev-logging", true, "use development logger output")
	)
	flag.Parse()

	var zl *zap.Logger
	var err error
	if *devLogging {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()

	if err := run(zapr.NewLogger(zl), *configPath, *zonePath, *regions); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(log logr.Logger, configPath, zonePath, regions string) error {
	log = log.WithName("setup")
	log.Info("starting yk-ns1-sync preview", "version", Version)

	if zonePath == "" {
		return fmt.Errorf("missing required -zone flag")
	}

	cfg := &config.Config{}
	switch {
	case configPath != "":
		var err error
		cfg, err = config.LoadFromPath(configPath)
		if err != nil {
			return fmt.Errorf("unable to load config: %w", err)
		}
		log.Info("loaded config", "path", configPath)
	case os.Getenv("NS1_SYNC_CONFIG") != "":
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("unable to load config: %w", err)
		}
		log.Info("loaded config", "path", os.Getenv("NS1_SYNC_CONFIG"))
	}
	monitorRegions := cfg.MonitorRegions
	if len(monitorRegions) == 0 && regions != "" {
		monitorRegions = strings.Split(regions, ",")
	}

	desired, err := config.LoadZone(zonePath)
	if err != nil {
		return fmt.Errorf("unable to load zone file: %w", err)
	}
	log.Info("loaded desired state", "zone", desired.Name, "records", desired.Len())

	server := apitest.NewServer()
	provider := ns1.New(log.WithName("ns1"), server, ns1.Options{
		MonitorRegions:     monitorRegions,
		SharedNotifyList:   cfg.SharedNotifyList,
		UseHTTPMonitors:    cfg.UseHTTPMonitors,
		DefaultHTTPVersion: cfg.DefaultHTTPVersion,
		RetryCount:         cfg.RetryCount,
		Parallelism:        cfg.Parallelism,
	})

	ctx := context.Background()

	if err := provider.ProcessDesired(desired.Records()); err != nil {
		return err
	}

	current := dns.NewZone(desired.Name)
	if _, err := provider.Populate(ctx, current); err != nil {
		return fmt.Errorf("unable to populate current state: %w", err)
	}

	changes := diffZones(current, desired)
	extra, err := provider.ExtraChanges(ctx, desired.Records(), changes)
	if err != nil {
		return fmt.Errorf("unable to compute extra changes: %w", err)
	}
	changes = append(changes, extra...)
	log.Info("planned changes", "count", len(changes))

	if err := provider.Apply(ctx, desired.Name, changes); err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	return printZone(ctx, provider, server, desired.Name)
}

// diffZones is preview glue, not a planner: records compare by deep equality
// and any difference becomes an update.
func diffZones(current, desired *dns.Zone) []dns.Change {
	type key struct{ name, typ string }
	existing := map[key]*dns.Record{}
	for _, r := range current.Records() {
		existing[key{r.Name, r.Type}] = r
	}

	var changes []dns.Change
	seen := map[key]bool{}
	for _, r := range desired.Records() {
		k := key{r.Name, r.Type}
		seen[k] = true
		old, ok := existing[k]
		switch {
		case !ok:
			changes = append(changes, dns.Create{New: r})
		case !reflect.DeepEqual(old, r):
			changes = append(changes, dns.Update{Existing: old, New: r})
		}
	}
	for _, r := range current.Records() {
		if !seen[key{r.Name, r.Type}] {
			changes = append(changes, dns.Delete{Existing: r})
		}
	}
	return changes
}

func printZone(ctx context.Context, provider *ns1.Provider, server *apitest.Server, zoneName string) error {
	zoneName = strings.TrimSuffix(zoneName, ".")
	zone, err := provider.Client().ZoneRetrieve(ctx, zoneName)
	if err != nil {
		return fmt.Errorf("unable to retrieve zone: %w", err)
	}

	for _, zr := range zone.Records {
		rec := server.Record(zoneName, zr.Domain, zr.Type)
		if rec == nil {
			continue
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("--- %s %s\n%s\n", zr.Domain, zr.Type, data)
	}

	monitors, err := provider.Client().MonitorsList(ctx)
	if err != nil {
		return fmt.Errorf("unable to list monitors: %w", err)
	}
	for _, m := range monitors {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("--- monitor %s\n%s\n", m.Name, data)
	}
	return nil
}
