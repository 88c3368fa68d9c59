package api

import "context"

// Client is the call surface the provider consumes. Implementations own
// transport and authentication; calls return the typed errors of this
// package (RateLimitError, ResourceError, AuthError).
type Client interface {
	// Zones
	ZonesList(ctx context.Context) ([]Zone, error)
	ZoneRetrieve(ctx context.Context, name string) (*Zone, error)
	ZoneCreate(ctx context.Context, name string) (*Zone, error)

	// Records
	RecordRetrieve(ctx context.Context, zone, domain, typ string) (*Record, error)
	RecordCreate(ctx context.Context, rec *Record) (*Record, error)
	RecordUpdate(ctx context.Context, rec *Record) (*Record, error)
	RecordDelete(ctx context.Context, zone, domain, typ string) error

	// Monitors
	MonitorsList(ctx context.Context) ([]Monitor, error)
	MonitorCreate(ctx context.Context, m *Monitor) (*Monitor, error)
	MonitorUpdate(ctx context.Context, id string, m *Monitor) (*Monitor, error)
	MonitorDelete(ctx context.Context, id string) error

	// Notify lists
	NotifyListsList(ctx context.Context) ([]NotifyList, error)
	NotifyListCreate(ctx context.Context, nl *NotifyList) (*NotifyList, error)
	NotifyListDelete(ctx context.Context, id string) error

	// Data sources and feeds
	DataSourcesList(ctx context.Context) ([]DataSource, error)
	DataSourceCreate(ctx context.Context, ds *DataSource) (*DataSource, error)
	DataFeedsList(ctx context.Context, sourceID string) ([]DataFeed, error)
	DataFeedCreate(ctx context.Context, sourceID string, f *DataFeed) (*DataFeed, error)
	DataFeedDelete(ctx context.Context, sourceID, feedID string) error
}
