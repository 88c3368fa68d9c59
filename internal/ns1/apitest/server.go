// Package apitest provides an in-memory implementation of api.Client backed
// by maps. Tests and the offline preview command use it in place of the real
// transport; it mimics the platform behaviors the provider depends on, such
// as auto-created root NS records and message-matched zone absence.
package apitest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
)

// ZoneNotFoundMessage mirrors the platform's exact server message for a
// missing zone.
const ZoneNotFoundMessage = "server error: zone not found"

// Server is an in-memory api.Client.
type Server struct {
	mu     sync.Mutex
	nextID int

	zones       map[string]bool
	records     map[string]*api.Record
	monitors    map[string]*api.Monitor
	notifyLists map[string]*api.NotifyList
	dataSources map[string]*api.DataSource
	feeds       map[string]map[string]*api.DataFeed

	failures map[string][]error
	calls    map[string]int
}

var _ api.Client = (*Server)(nil)

// NewServer returns an empty Server.
func NewServer() *Server {
	return &Server{
		zones:       map[string]bool{},
		records:     map[string]*api.Record{},
		monitors:    map[string]*api.Monitor{},
		notifyLists: map[string]*api.NotifyList{},
		dataSources: map[string]*api.DataSource{},
		feeds:       map[string]map[string]*api.DataFeed{},
		failures:    map[string][]error{},
		calls:       map[string]int{},
	}
}

// Fail queues errors for the named call (the api.Client method name); each
// invocation consumes one queued error before the call can succeed again.
func (s *Server) Fail(name string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = append(s.failures[name], errs...)
}

// Calls reports how many times the named call was invoked, queued failures
// included.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// enter must be called with the lock held.
func (s *Server) enter(name string) error {
	s.calls[name]++
	if queue := s.failures[name]; len(queue) > 0 {
		err := queue[0]
		s.failures[name] = queue[1:]
		return err
	}
	return nil
}

func (s *Server) genID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%04d", prefix, s.nextID)
}

func recordKey(zone, domain, typ string) string {
	return zone + "/" + domain + "/" + typ
}

// Zones

func (s *Server) ZonesList(ctx context.Context) ([]api.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ZonesList"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.zones))
	for name := range s.zones {
		names = append(names, name)
	}
	sort.Strings(names)
	zones := make([]api.Zone, 0, len(names))
	for _, name := range names {
		zones = append(zones, api.Zone{Zone: name})
	}
	return zones, nil
}

func (s *Server) ZoneRetrieve(ctx context.Context, name string) (*api.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ZoneRetrieve"); err != nil {
		return nil, err
	}
	if !s.zones[name] {
		return nil, &api.ResourceError{Status: 404, Message: ZoneNotFoundMessage}
	}
	zone := &api.Zone{Zone: name}
	for _, rec := range s.sortedRecords(name) {
		zone.Records = append(zone.Records, api.ZoneRecord{
			Domain:       rec.Domain,
			Type:         rec.Type,
			TTL:          rec.TTL,
			Tier:         rec.Tier,
			ShortAnswers: shortAnswers(rec),
		})
	}
	return zone, nil
}

func (s *Server) ZoneCreate(ctx context.Context, name string) (*api.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ZoneCreate"); err != nil {
		return nil, err
	}
	if s.zones[name] {
		return nil, &api.ResourceError{Status: 400, Message: "zone already exists"}
	}
	s.zones[name] = true
	// The platform creates the root NS record along with the zone.
	rootNS := &api.Record{
		Zone:   name,
		Domain: name,
		Type:   "NS",
		TTL:    3600,
		Tier:   1,
		Answers: []api.Answer{
			{Answer: []string{"dns1.p01.nsone.net"}},
			{Answer: []string{"dns2.p01.nsone.net"}},
		},
	}
	s.records[recordKey(name, name, "NS")] = rootNS
	return &api.Zone{Zone: name}, nil
}

func (s *Server) sortedRecords(zone string) []*api.Record {
	var recs []*api.Record
	for _, rec := range s.records {
		if rec.Zone == zone {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Domain != recs[j].Domain {
			return recs[i].Domain < recs[j].Domain
		}
		return recs[i].Type < recs[j].Type
	})
	return recs
}

func shortAnswers(rec *api.Record) []string {
	if len(rec.ShortAnswers) > 0 {
		return rec.ShortAnswers
	}
	var short []string
	for _, a := range rec.Answers {
		if len(a.Answer) > 0 {
			short = append(short, a.Answer[0])
		}
	}
	return short
}

// Records

func (s *Server) RecordRetrieve(ctx context.Context, zone, domain, typ string) (*api.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecordRetrieve"); err != nil {
		return nil, err
	}
	rec := s.records[recordKey(zone, domain, typ)]
	if rec == nil {
		return nil, &api.ResourceError{Status: 404, Message: "server error: record not found"}
	}
	return copyRecord(rec), nil
}

func (s *Server) RecordCreate(ctx context.Context, rec *api.Record) (*api.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecordCreate"); err != nil {
		return nil, err
	}
	if !s.zones[rec.Zone] {
		return nil, &api.ResourceError{Status: 404, Message: ZoneNotFoundMessage}
	}
	key := recordKey(rec.Zone, rec.Domain, rec.Type)
	if s.records[key] != nil {
		return nil, &api.ResourceError{Status: 400, Message: "record already exists"}
	}
	stored := copyRecord(rec)
	stored.Tier = tierFor(stored)
	s.records[key] = stored
	return copyRecord(stored), nil
}

func (s *Server) RecordUpdate(ctx context.Context, rec *api.Record) (*api.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecordUpdate"); err != nil {
		return nil, err
	}
	key := recordKey(rec.Zone, rec.Domain, rec.Type)
	if s.records[key] == nil {
		return nil, &api.ResourceError{Status: 404, Message: "server error: record not found"}
	}
	stored := copyRecord(rec)
	stored.Tier = tierFor(stored)
	s.records[key] = stored
	return copyRecord(stored), nil
}

func (s *Server) RecordDelete(ctx context.Context, zone, domain, typ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecordDelete"); err != nil {
		return err
	}
	key := recordKey(zone, domain, typ)
	if s.records[key] == nil {
		return &api.ResourceError{Status: 404, Message: "server error: record not found"}
	}
	delete(s.records, key)
	return nil
}

// tierFor mirrors how the platform reports steered records: anything with
// regions or a filter chain is above tier 1.
func tierFor(rec *api.Record) int {
	if len(rec.Regions) > 0 || len(rec.Filters) > 0 {
		return 3
	}
	return 1
}

// Monitors

func (s *Server) MonitorsList(ctx context.Context) ([]api.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MonitorsList"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	monitors := make([]api.Monitor, 0, len(ids))
	for _, id := range ids {
		monitors = append(monitors, *copyMonitor(s.monitors[id]))
	}
	return monitors, nil
}

func (s *Server) MonitorCreate(ctx context.Context, m *api.Monitor) (*api.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MonitorCreate"); err != nil {
		return nil, err
	}
	stored := copyMonitor(m)
	stored.ID = s.genID("mon")
	s.monitors[stored.ID] = stored
	return copyMonitor(stored), nil
}

func (s *Server) MonitorUpdate(ctx context.Context, id string, m *api.Monitor) (*api.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MonitorUpdate"); err != nil {
		return nil, err
	}
	existing := s.monitors[id]
	if existing == nil {
		return nil, &api.ResourceError{Status: 404, Message: "server error: monitor not found"}
	}
	stored := copyMonitor(m)
	stored.ID = id
	if stored.NotifyList == "" {
		// Updates omitting the notify list leave the binding untouched.
		stored.NotifyList = existing.NotifyList
	}
	s.monitors[id] = stored
	return copyMonitor(stored), nil
}

func (s *Server) MonitorDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MonitorDelete"); err != nil {
		return err
	}
	if s.monitors[id] == nil {
		return &api.ResourceError{Status: 404, Message: "server error: monitor not found"}
	}
	delete(s.monitors, id)
	return nil
}

// Notify lists

func (s *Server) NotifyListsList(ctx context.Context) ([]api.NotifyList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("NotifyListsList"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.notifyLists))
	for id := range s.notifyLists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lists := make([]api.NotifyList, 0, len(ids))
	for _, id := range ids {
		lists = append(lists, *s.notifyLists[id])
	}
	return lists, nil
}

func (s *Server) NotifyListCreate(ctx context.Context, nl *api.NotifyList) (*api.NotifyList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("NotifyListCreate"); err != nil {
		return nil, err
	}
	stored := *nl
	stored.ID = s.genID("nl")
	s.notifyLists[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *Server) NotifyListDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("NotifyListDelete"); err != nil {
		return err
	}
	if s.notifyLists[id] == nil {
		return &api.ResourceError{Status: 404, Message: "server error: notify list not found"}
	}
	delete(s.notifyLists, id)
	return nil
}

// Data sources and feeds

func (s *Server) DataSourcesList(ctx context.Context) ([]api.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DataSourcesList"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.dataSources))
	for id := range s.dataSources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sources := make([]api.DataSource, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, *s.dataSources[id])
	}
	return sources, nil
}

func (s *Server) DataSourceCreate(ctx context.Context, ds *api.DataSource) (*api.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DataSourceCreate"); err != nil {
		return nil, err
	}
	stored := *ds
	stored.ID = s.genID("src")
	s.dataSources[stored.ID] = &stored
	s.feeds[stored.ID] = map[string]*api.DataFeed{}
	out := stored
	return &out, nil
}

func (s *Server) DataFeedsList(ctx context.Context, sourceID string) ([]api.DataFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DataFeedsList"); err != nil {
		return nil, err
	}
	byID := s.feeds[sourceID]
	if byID == nil {
		return nil, &api.ResourceError{Status: 404, Message: "server error: data source not found"}
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	feeds := make([]api.DataFeed, 0, len(ids))
	for _, id := range ids {
		feeds = append(feeds, *byID[id])
	}
	return feeds, nil
}

func (s *Server) DataFeedCreate(ctx context.Context, sourceID string, f *api.DataFeed) (*api.DataFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DataFeedCreate"); err != nil {
		return nil, err
	}
	byID := s.feeds[sourceID]
	if byID == nil {
		return nil, &api.ResourceError{Status: 404, Message: "server error: data source not found"}
	}
	stored := *f
	stored.ID = s.genID("feed")
	byID[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *Server) DataFeedDelete(ctx context.Context, sourceID, feedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DataFeedDelete"); err != nil {
		return err
	}
	byID := s.feeds[sourceID]
	if byID == nil || byID[feedID] == nil {
		return &api.ResourceError{Status: 404, Message: "server error: data feed not found"}
	}
	delete(byID, feedID)
	return nil
}

// Inspection helpers for tests.

// Record returns the stored record, or nil.
func (s *Server) Record(zone, domain, typ string) *api.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[recordKey(zone, domain, typ)]
	if rec == nil {
		return nil
	}
	return copyRecord(rec)
}

// MonitorCount returns the number of stored monitors.
func (s *Server) MonitorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors)
}

// NotifyListCount returns the number of stored notify lists.
func (s *Server) NotifyListCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifyLists)
}

// FeedCount returns the total number of stored feeds across sources.
func (s *Server) FeedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, byID := range s.feeds {
		n += len(byID)
	}
	return n
}

func copyRecord(rec *api.Record) *api.Record {
	out := *rec
	out.Answers = make([]api.Answer, len(rec.Answers))
	for i, a := range rec.Answers {
		ca := a
		ca.Answer = append([]string(nil), a.Answer...)
		out.Answers[i] = ca
	}
	if rec.Regions != nil {
		out.Regions = make(map[string]api.Region, len(rec.Regions))
		for label, region := range rec.Regions {
			out.Regions[label] = region
		}
	}
	if rec.Filters != nil {
		out.Filters = make([]api.Filter, len(rec.Filters))
		for i, f := range rec.Filters {
			cf := f
			if f.Config != nil {
				cf.Config = make(map[string]any, len(f.Config))
				for k, v := range f.Config {
					cf.Config[k] = v
				}
			}
			out.Filters[i] = cf
		}
	}
	out.ShortAnswers = append([]string(nil), rec.ShortAnswers...)
	return &out
}

func copyMonitor(m *api.Monitor) *api.Monitor {
	out := *m
	out.Regions = append([]string(nil), m.Regions...)
	if m.Config != nil {
		out.Config = make(map[string]any, len(m.Config))
		for k, v := range m.Config {
			out.Config[k] = v
		}
	}
	out.Rules = append([]api.MonitorRule(nil), m.Rules...)
	return &out
}
