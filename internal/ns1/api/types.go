// Package api defines the typed surface of the NS1 REST API as consumed by
// the provider: wire data shapes, the Client call set and the error taxonomy.
// Transport, TLS and authentication live behind implementations of Client and
// are out of scope here.
package api

// Zone is the aggregate zone object returned by zone retrieval, including
// the (possibly abbreviated) record list.
type Zone struct {
	Zone    string       `json:"zone"`
	Records []ZoneRecord `json:"records,omitempty"`
}

// ZoneRecord is the abbreviated per-record entry embedded in a Zone. Records
// with Tier > 1 carry traffic-steering config that is only available from a
// full record retrieval.
type ZoneRecord struct {
	Domain       string   `json:"domain"`
	Type         string   `json:"type"`
	TTL          int      `json:"ttl"`
	Tier         int      `json:"tier,omitempty"`
	ShortAnswers []string `json:"short_answers,omitempty"`
}

// Record is the full record object: answers, regions and the filter chain.
type Record struct {
	Zone         string            `json:"zone"`
	Domain       string            `json:"domain"`
	Type         string            `json:"type"`
	TTL          int               `json:"ttl"`
	Tier         int               `json:"tier,omitempty"`
	Answers      []Answer          `json:"answers,omitempty"`
	Regions      map[string]Region `json:"regions,omitempty"`
	Filters      []Filter          `json:"filters,omitempty"`
	ShortAnswers []string          `json:"short_answers,omitempty"`
}

// Answer is one prioritized answer within a record.
type Answer struct {
	Answer []string `json:"answer"`
	Meta   Meta     `json:"meta"`
	// Region is the label of the wire region this answer belongs to.
	Region string `json:"region,omitempty"`
}

// Meta is the targeting/steering metadata attached to an answer.
type Meta struct {
	Priority int    `json:"priority,omitempty"`
	Weight   int    `json:"weight,omitempty"`
	Note     string `json:"note,omitempty"`
	// Up is either a bool (forced state) or a FeedPtr binding the answer's
	// availability to a monitor's data feed.
	Up any `json:"up,omitempty"`
}

// FeedPtr points an answer's up state at a data feed.
type FeedPtr struct {
	Feed string `json:"feed"`
}

// UpBool returns the Up field as a bool when it is one.
func (m Meta) UpBool() (up, ok bool) {
	b, ok := m.Up.(bool)
	return b, ok
}

// Region is a named bundle of targeting metadata shared by a subset of a
// record's answers.
type Region struct {
	Meta RegionMeta `json:"meta"`
}

// RegionMeta carries the region's targeting payload plus an encoded note.
type RegionMeta struct {
	Note       string   `json:"note,omitempty"`
	Georegion  []string `json:"georegion,omitempty"`
	Country    []string `json:"country,omitempty"`
	USState    []string `json:"us_state,omitempty"`
	CAProvince []string `json:"ca_province,omitempty"`
	IPPrefixes []string `json:"ip_prefixes,omitempty"`
}

// Filter is one step of a record's filter chain.
type Filter struct {
	Filter string         `json:"filter"`
	Config map[string]any `json:"config"`
	// Disabled false is a no-op marker some historical writers emit; it is
	// equivalent to the field being absent.
	Disabled bool `json:"disabled,omitempty"`
}

// Monitor is a health-check job.
type Monitor struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	JobType string `json:"job_type"`
	Active  bool   `json:"active"`
	// Notes holds the encoded correlation note tying the monitor to a
	// record (host, type and, for http monitors, the probed value).
	Notes        string         `json:"notes,omitempty"`
	Policy       string         `json:"policy,omitempty"`
	Frequency    int            `json:"frequency,omitempty"`
	RapidRecheck bool           `json:"rapid_recheck"`
	RegionScope  string         `json:"region_scope,omitempty"`
	Regions      []string       `json:"regions,omitempty"`
	NotifyList   string         `json:"notify_list,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Rules        []MonitorRule  `json:"rules,omitempty"`
}

// MonitorRule is one output assertion of a monitor job.
type MonitorRule struct {
	Comparison string `json:"comparison"`
	Key        string `json:"key"`
	Value      string `json:"value"`
}

// NotifyList forwards monitor state changes to its targets.
type NotifyList struct {
	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name"`
	NotifyList []NotifyListEntry `json:"notify_list,omitempty"`
}

// NotifyListEntry is one forwarding target of a notify list.
type NotifyListEntry struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// DataSource groups data feeds under one source type.
type DataSource struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	SourceType string `json:"sourcetype"`
}

// DataFeed binds a monitor job to a data source so its state can drive
// answer up/down values.
type DataFeed struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Config DataFeedConfig `json:"config"`
}

// DataFeedConfig identifies the monitor job feeding the feed.
type DataFeedConfig struct {
	JobID string `json:"jobid"`
}
