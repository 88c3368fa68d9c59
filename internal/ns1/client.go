package ns1

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
)

// DataSourceName is the process-wide data source all monitor feeds hang off.
const DataSourceName = "yk-ns1-sync Data Source"

// DefaultRetryCount bounds the rate-limit retry loop.
const DefaultRetryCount = 4

// Client layers response caching and a bounded rate-limit retry policy over
// the raw API surface. It is not safe for concurrent use; external workers
// against the same account coordinate only through the parallelism hint,
// which widens the backoff window.
type Client struct {
	log         logr.Logger
	api         api.Client
	retryCount  int
	parallelism int

	datasourceID     string
	feedsForMonitors map[string]string
	monitorsCache    map[string]*api.Monitor
	notifyListsCache map[string]*api.NotifyList
	zonesCache       map[string]*api.Zone
	recordsCache     map[string]map[string]map[string]*api.Record
}

// ClientOptions tune the gateway.
type ClientOptions struct {
	// RetryCount bounds attempts per call under rate limiting; zero means
	// DefaultRetryCount.
	RetryCount int
	// Parallelism is the caller's worker-count hint. Backoff sleeps are
	// multiplied by it so concurrent workers spread out their retries.
	Parallelism int
}

// NewClient wraps the raw API client with caching and retries.
func NewClient(log logr.Logger, apiClient api.Client, opts ClientOptions) *Client {
	retryCount := opts.RetryCount
	if retryCount == 0 {
		retryCount = DefaultRetryCount
	}
	c := &Client{
		log:         log,
		api:         apiClient,
		retryCount:  retryCount,
		parallelism: opts.Parallelism,
	}
	c.ResetCaches()
	return c
}

// ResetCaches drops all cached remote state.
func (c *Client) ResetCaches() {
	c.datasourceID = ""
	c.feedsForMonitors = nil
	c.monitorsCache = nil
	c.notifyListsCache = nil
	c.zonesCache = map[string]*api.Zone{}
	c.recordsCache = map[string]map[string]map[string]*api.Record{}
}

// try runs a call, sleeping and retrying on rate-limit errors for the
// server-specified period (widened by the parallelism hint) until the retry
// budget is exhausted, at which point the last error is returned.
func (c *Client) try(ctx context.Context, name string, call func() error) error {
	apiCalls.WithLabelValues(name).Inc()
	tries := c.retryCount
	for {
		err := call()
		if err == nil {
			return nil
		}
		var rle *api.RateLimitError
		if !errors.As(err, &rle) {
			if !api.IsNotFound(err) {
				c.log.Error(err, "api call failed", "call", name)
			}
			return err
		}
		if tries <= 1 {
			return err
		}
		period := time.Duration(rle.Period) * time.Second
		if c.parallelism > 1 {
			period *= time.Duration(c.parallelism)
		}
		c.log.Info("rate limit encountered, pausing and trying again",
			"call", name, "period", period, "remaining", tries)
		rateLimitRetries.Inc()
		select {
		case <-time.After(period):
		case <-ctx.Done():
			return ctx.Err()
		}
		tries--
	}
}

// DataSourceID returns the id of the process-wide data source, finding or
// creating it on first use.
func (c *Client) DataSourceID(ctx context.Context) (string, error) {
	if c.datasourceID != "" {
		cacheHits.WithLabelValues("datasource").Inc()
		return c.datasourceID, nil
	}
	sources, err := c.DataSourcesList(ctx)
	if err != nil {
		return "", err
	}
	for _, candidate := range sources {
		if candidate.Name == DataSourceName {
			c.datasourceID = candidate.ID
			return c.datasourceID, nil
		}
	}

	c.log.Info("creating datasource", "name", DataSourceName)
	source, err := c.DataSourceCreate(ctx, &api.DataSource{
		Name:       DataSourceName,
		SourceType: "nsone_monitoring",
	})
	if err != nil {
		return "", err
	}
	c.log.Info("created datasource", "id", source.ID)
	c.datasourceID = source.ID
	return c.datasourceID, nil
}

// FeedsForMonitors returns the monitor-job-id to feed-id mapping, fetching
// and building it on first use.
func (c *Client) FeedsForMonitors(ctx context.Context) (map[string]string, error) {
	if c.feedsForMonitors != nil {
		cacheHits.WithLabelValues("feeds").Inc()
		return c.feedsForMonitors, nil
	}
	c.log.V(1).Info("fetching and building feeds for monitors")
	sourceID, err := c.DataSourceID(ctx)
	if err != nil {
		return nil, err
	}
	feeds, err := c.DataFeedsList(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	c.feedsForMonitors = map[string]string{}
	for _, f := range feeds {
		c.feedsForMonitors[f.Config.JobID] = f.ID
	}
	return c.feedsForMonitors, nil
}

// Monitors returns all monitors keyed by id, fetched once and cached.
func (c *Client) Monitors(ctx context.Context) (map[string]*api.Monitor, error) {
	if c.monitorsCache != nil {
		cacheHits.WithLabelValues("monitors").Inc()
		return c.monitorsCache, nil
	}
	c.log.V(1).Info("fetching and building monitors cache")
	monitors, err := c.MonitorsList(ctx)
	if err != nil {
		return nil, err
	}
	c.monitorsCache = map[string]*api.Monitor{}
	for i := range monitors {
		m := monitors[i]
		c.monitorsCache[m.ID] = &m
	}
	return c.monitorsCache, nil
}

// NotifyLists returns all notify lists keyed by name, fetched once and
// cached.
func (c *Client) NotifyLists(ctx context.Context) (map[string]*api.NotifyList, error) {
	if c.notifyListsCache != nil {
		cacheHits.WithLabelValues("notifylists").Inc()
		return c.notifyListsCache, nil
	}
	c.log.V(1).Info("fetching and building notify lists cache")
	lists, err := c.NotifyListsList(ctx)
	if err != nil {
		return nil, err
	}
	c.notifyListsCache = map[string]*api.NotifyList{}
	for i := range lists {
		nl := lists[i]
		c.notifyListsCache[nl.Name] = &nl
	}
	return c.notifyListsCache, nil
}

func (c *Client) DataFeedCreate(ctx context.Context, sourceID string, feed *api.DataFeed) (*api.DataFeed, error) {
	var created *api.DataFeed
	err := c.try(ctx, "datafeed_create", func() error {
		var err error
		created, err = c.api.DataFeedCreate(ctx, sourceID, feed)
		return err
	})
	if err != nil {
		return nil, err
	}
	feeds, err := c.FeedsForMonitors(ctx)
	if err != nil {
		return nil, err
	}
	feeds[created.Config.JobID] = created.ID
	return created, nil
}

func (c *Client) DataFeedDelete(ctx context.Context, sourceID, feedID string) error {
	err := c.try(ctx, "datafeed_delete", func() error {
		return c.api.DataFeedDelete(ctx, sourceID, feedID)
	})
	if err != nil {
		return err
	}
	for jobID, fid := range c.feedsForMonitors {
		if fid == feedID {
			delete(c.feedsForMonitors, jobID)
		}
	}
	return nil
}

func (c *Client) DataFeedsList(ctx context.Context, sourceID string) ([]api.DataFeed, error) {
	var feeds []api.DataFeed
	err := c.try(ctx, "datafeed_list", func() error {
		var err error
		feeds, err = c.api.DataFeedsList(ctx, sourceID)
		return err
	})
	return feeds, err
}

func (c *Client) DataSourceCreate(ctx context.Context, ds *api.DataSource) (*api.DataSource, error) {
	var created *api.DataSource
	err := c.try(ctx, "datasource_create", func() error {
		var err error
		created, err = c.api.DataSourceCreate(ctx, ds)
		return err
	})
	return created, err
}

func (c *Client) DataSourcesList(ctx context.Context) ([]api.DataSource, error) {
	var sources []api.DataSource
	err := c.try(ctx, "datasource_list", func() error {
		var err error
		sources, err = c.api.DataSourcesList(ctx)
		return err
	})
	return sources, err
}

func (c *Client) MonitorsList(ctx context.Context) ([]api.Monitor, error) {
	var monitors []api.Monitor
	err := c.try(ctx, "monitors_list", func() error {
		var err error
		monitors, err = c.api.MonitorsList(ctx)
		return err
	})
	return monitors, err
}

func (c *Client) MonitorCreate(ctx context.Context, m *api.Monitor) (*api.Monitor, error) {
	var created *api.Monitor
	err := c.try(ctx, "monitors_create", func() error {
		var err error
		created, err = c.api.MonitorCreate(ctx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	monitors, err := c.Monitors(ctx)
	if err != nil {
		return nil, err
	}
	monitors[created.ID] = created
	return created, nil
}

func (c *Client) MonitorUpdate(ctx context.Context, id string, m *api.Monitor) (*api.Monitor, error) {
	var updated *api.Monitor
	err := c.try(ctx, "monitors_update", func() error {
		var err error
		updated, err = c.api.MonitorUpdate(ctx, id, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	monitors, err := c.Monitors(ctx)
	if err != nil {
		return nil, err
	}
	monitors[updated.ID] = updated
	return updated, nil
}

func (c *Client) MonitorDelete(ctx context.Context, id string) error {
	err := c.try(ctx, "monitors_delete", func() error {
		return c.api.MonitorDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	delete(c.monitorsCache, id)
	return nil
}

func (c *Client) NotifyListsList(ctx context.Context) ([]api.NotifyList, error) {
	var lists []api.NotifyList
	err := c.try(ctx, "notifylists_list", func() error {
		var err error
		lists, err = c.api.NotifyListsList(ctx)
		return err
	})
	return lists, err
}

func (c *Client) NotifyListCreate(ctx context.Context, nl *api.NotifyList) (*api.NotifyList, error) {
	var created *api.NotifyList
	err := c.try(ctx, "notifylists_create", func() error {
		var err error
		created, err = c.api.NotifyListCreate(ctx, nl)
		return err
	})
	if err != nil {
		return nil, err
	}
	lists, err := c.NotifyLists(ctx)
	if err != nil {
		return nil, err
	}
	lists[created.Name] = created
	return created, nil
}

func (c *Client) NotifyListDelete(ctx context.Context, id string) error {
	for name, nl := range c.notifyListsCache {
		if nl.ID == id {
			delete(c.notifyListsCache, name)
			break
		}
	}
	return c.try(ctx, "notifylists_delete", func() error {
		return c.api.NotifyListDelete(ctx, id)
	})
}

// invalidateForRecordMutation drops the zone's aggregate cache entry (the
// zone's record list changed) and clears the per-record slot, returning it
// for the caller to fill in.
func (c *Client) invalidateForRecordMutation(zone, domain, typ string) map[string]*api.Record {
	delete(c.zonesCache, zone)
	byDomain := c.recordsCache[zone]
	if byDomain == nil {
		byDomain = map[string]map[string]*api.Record{}
		c.recordsCache[zone] = byDomain
	}
	byType := byDomain[domain]
	if byType == nil {
		byType = map[string]*api.Record{}
		byDomain[domain] = byType
	}
	delete(byType, typ)
	return byType
}

func (c *Client) RecordCreate(ctx context.Context, rec *api.Record) (*api.Record, error) {
	cached := c.invalidateForRecordMutation(rec.Zone, rec.Domain, rec.Type)
	var created *api.Record
	err := c.try(ctx, "records_create", func() error {
		var err error
		created, err = c.api.RecordCreate(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	cached[rec.Type] = created
	return created, nil
}

func (c *Client) RecordUpdate(ctx context.Context, rec *api.Record) (*api.Record, error) {
	cached := c.invalidateForRecordMutation(rec.Zone, rec.Domain, rec.Type)
	var updated *api.Record
	err := c.try(ctx, "records_update", func() error {
		var err error
		updated, err = c.api.RecordUpdate(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	cached[rec.Type] = updated
	return updated, nil
}

func (c *Client) RecordDelete(ctx context.Context, zone, domain, typ string) error {
	c.invalidateForRecordMutation(zone, domain, typ)
	return c.try(ctx, "records_delete", func() error {
		return c.api.RecordDelete(ctx, zone, domain, typ)
	})
}

func (c *Client) RecordRetrieve(ctx context.Context, zone, domain, typ string) (*api.Record, error) {
	if byDomain := c.recordsCache[zone]; byDomain != nil {
		if rec := byDomain[domain][typ]; rec != nil {
			cacheHits.WithLabelValues("records").Inc()
			return rec, nil
		}
	}
	var rec *api.Record
	err := c.try(ctx, "records_retrieve", func() error {
		var err error
		rec, err = c.api.RecordRetrieve(ctx, zone, domain, typ)
		return err
	})
	if err != nil {
		return nil, err
	}
	byDomain := c.recordsCache[zone]
	if byDomain == nil {
		byDomain = map[string]map[string]*api.Record{}
		c.recordsCache[zone] = byDomain
	}
	if byDomain[domain] == nil {
		byDomain[domain] = map[string]*api.Record{}
	}
	byDomain[domain][typ] = rec
	return rec, nil
}

func (c *Client) ZoneCreate(ctx context.Context, name string) (*api.Zone, error) {
	var zone *api.Zone
	err := c.try(ctx, "zones_create", func() error {
		var err error
		zone, err = c.api.ZoneCreate(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.zonesCache[name] = zone
	return zone, nil
}

func (c *Client) ZoneRetrieve(ctx context.Context, name string) (*api.Zone, error) {
	if zone := c.zonesCache[name]; zone != nil {
		cacheHits.WithLabelValues("zones").Inc()
		return zone, nil
	}
	var zone *api.Zone
	err := c.try(ctx, "zones_retrieve", func() error {
		var err error
		zone, err = c.api.ZoneRetrieve(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.zonesCache[name] = zone
	return zone, nil
}

func (c *Client) ZonesList(ctx context.Context) ([]api.Zone, error) {
	var zones []api.Zone
	err := c.try(ctx, "zones_list", func() error {
		var err error
		zones, err = c.api.ZonesList(ctx)
		return err
	})
	return zones, err
}

// RetryCount exposes the configured retry budget.
func (c *Client) RetryCount() int {
	return c.retryCount
}
