package ns1

import (
	"context"
	"errors"
	"testing"

	logrtesting "github.com/go-logr/logr/testing"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/apitest"
)

func newTestClient(t *testing.T, opts ClientOptions) (*Client, *apitest.Server) {
	t.Helper()
	server := apitest.NewServer()
	return NewClient(logrtesting.NewTestLogger(t), server, opts), server
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{RetryCount: 4})
	rl := &api.RateLimitError{Message: "please slow down", Period: 0}
	server.Fail("ZonesList", rl, rl, rl)

	if _, err := c.ZonesList(context.Background()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := server.Calls("ZonesList"); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{RetryCount: 3})
	rl := &api.RateLimitError{Message: "please slow down", Period: 0}
	server.Fail("ZonesList", rl, rl, rl, rl)

	_, err := c.ZonesList(context.Background())
	if err == nil {
		t.Fatal("expected error once budget is exhausted")
	}
	var got *api.RateLimitError
	if !errors.As(err, &got) {
		t.Errorf("expected the rate limit error back, got %T: %v", err, err)
	}
	// retryCount attempts total: the first call plus retryCount-1 retries.
	if calls := server.Calls("ZonesList"); calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPassesThroughOtherErrors(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{})
	boom := &api.ResourceError{Status: 500, Message: "server exploded"}
	server.Fail("ZonesList", boom)

	_, err := c.ZonesList(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls := server.Calls("ZonesList"); calls != 1 {
		t.Errorf("expected no retries for non-rate-limit errors, got %d attempts", calls)
	}
}

func TestDefaultRetryCount(t *testing.T) {
	c, _ := newTestClient(t, ClientOptions{})
	if c.RetryCount() != DefaultRetryCount {
		t.Errorf("expected default retry count %d, got %d", DefaultRetryCount, c.RetryCount())
	}
}

func TestZoneRetrieveCached(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{})
	ctx := context.Background()
	if _, err := c.ZoneCreate(ctx, "unit.tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The create primed the cache; retrievals stay local.
	for i := 0; i < 3; i++ {
		if _, err := c.ZoneRetrieve(ctx, "unit.tests"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls := server.Calls("ZoneRetrieve"); calls != 0 {
		t.Errorf("expected 0 remote retrievals, got %d", calls)
	}
}

func TestRecordMutationInvalidatesZoneCache(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{})
	ctx := context.Background()
	if _, err := c.ZoneCreate(ctx, "unit.tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := c.RecordCreate(ctx, &api.Record{
		Zone: "unit.tests", Domain: "www.unit.tests", Type: "A", TTL: 60,
		Answers: []api.Answer{{Answer: []string{"1.2.3.4"}}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The zone's record list changed, so the next retrieval goes remote.
	zone, err := c.ZoneRetrieve(ctx, "unit.tests")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server.Calls("ZoneRetrieve") != 1 {
		t.Errorf("expected 1 remote retrieval, got %d", server.Calls("ZoneRetrieve"))
	}
	// Root NS plus the new record.
	if len(zone.Records) != 2 {
		t.Errorf("expected 2 records in zone, got %d", len(zone.Records))
	}
}

func TestRecordRetrieveReadThrough(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{})
	ctx := context.Background()
	if _, err := c.ZoneCreate(ctx, "unit.tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.RecordCreate(ctx, &api.Record{
		Zone: "unit.tests", Domain: "www.unit.tests", Type: "A", TTL: 60,
		Answers: []api.Answer{{Answer: []string{"1.2.3.4"}}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The create filled the per-record slot.
	for i := 0; i < 3; i++ {
		if _, err := c.RecordRetrieve(ctx, "unit.tests", "www.unit.tests", "A"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls := server.Calls("RecordRetrieve"); calls != 0 {
		t.Errorf("expected 0 remote retrievals, got %d", calls)
	}

	// A delete clears the slot; the next retrieval goes remote (and fails,
	// since the record is gone).
	if err := c.RecordDelete(ctx, "unit.tests", "www.unit.tests", "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.RecordRetrieve(ctx, "unit.tests", "www.unit.tests", "A"); !api.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestDataSourceIDFindOrCreate(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{})
	ctx := context.Background()

	id, err := c.DataSourceID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected datasource id")
	}
	if server.Calls("DataSourceCreate") != 1 {
		t.Errorf("expected 1 create, got %d", server.Calls("DataSourceCreate"))
	}

	// Cached afterwards.
	again, err := c.DataSourceID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != id {
		t.Errorf("expected same id, got %q and %q", id, again)
	}
	if server.Calls("DataSourcesList") != 1 {
		t.Errorf("expected 1 list call, got %d", server.Calls("DataSourcesList"))
	}

	// A fresh client finds the existing source instead of creating another.
	c2 := NewClient(logrtesting.NewTestLogger(t), server, ClientOptions{})
	found, err := c2.DataSourceID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != id {
		t.Errorf("expected existing source found, got %q", found)
	}
	if server.Calls("DataSourceCreate") != 1 {
		t.Errorf("expected no second create, got %d", server.Calls("DataSourceCreate"))
	}
}

func TestFeedsForMonitorsTracksMutations(t *testing.T) {
	c, _ := newTestClient(t, ClientOptions{})
	ctx := context.Background()

	sourceID, err := c.DataSourceID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	feed, err := c.DataFeedCreate(ctx, sourceID, &api.DataFeed{
		Name:   "test feed",
		Config: api.DataFeedConfig{JobID: "job-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	feeds, err := c.FeedsForMonitors(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if feeds["job-1"] != feed.ID {
		t.Errorf("expected feed %s for job-1, got %q", feed.ID, feeds["job-1"])
	}

	if err := c.DataFeedDelete(ctx, sourceID, feed.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	feeds, err = c.FeedsForMonitors(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := feeds["job-1"]; ok {
		t.Error("expected mapping removed after feed delete")
	}
}

func TestResetCaches(t *testing.T) {
	c, server := newTestClient(t, ClientOptions{})
	ctx := context.Background()
	if _, err := c.ZoneCreate(ctx, "unit.tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.ResetCaches()
	if _, err := c.ZoneRetrieve(ctx, "unit.tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := server.Calls("ZoneRetrieve"); calls != 1 {
		t.Errorf("expected remote retrieval after reset, got %d", calls)
	}
}
