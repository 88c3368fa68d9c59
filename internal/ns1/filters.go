package ns1

import (
	"reflect"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
)

// Filter chain building blocks. Constructors return fresh values so callers
// can embed them in payloads without sharing config maps.

func upFilter() api.Filter {
	return api.Filter{Filter: "up", Config: map[string]any{}}
}

func regionFilter() api.Filter {
	return api.Filter{
		Filter: "geofence_regional",
		Config: map[string]any{"remove_no_georegion": true},
	}
}

func countryFilter() api.Filter {
	return api.Filter{
		Filter: "geofence_country",
		Config: map[string]any{"remove_no_location": true},
	}
}

func subnetFilter() api.Filter {
	return api.Filter{
		Filter: "netfence_prefix",
		Config: map[string]any{"remove_no_ip_prefixes": true},
	}
}

// In the platform's portal this step is shown as "SELECT FIRST GROUP"; the
// API name is select_first_region.
func selectFirstRegionFilter() api.Filter {
	return api.Filter{Filter: "select_first_region", Config: map[string]any{}}
}

func priorityFilter() api.Filter {
	return api.Filter{
		Filter: "priority",
		Config: map[string]any{"eliminate": "1"},
	}
}

func weightedShuffleFilter() api.Filter {
	return api.Filter{Filter: "weighted_shuffle", Config: map[string]any{}}
}

func selectFirstNFilter() api.Filter {
	return api.Filter{
		Filter: "select_first_n",
		Config: map[string]any{"N": "1"},
	}
}

// filterChainFor returns the canonical ordered filter chain for the given
// targeting dimensions. It is a pure function of the three booleans: every
// chain opens with the up filter, runs the enabled targeting fences in
// subnet → country → region order, and closes with the fixed selection
// tail.
func filterChainFor(hasRegion, hasCountry, hasSubnet bool) []api.Filter {
	chain := []api.Filter{upFilter()}
	if hasSubnet {
		chain = append(chain, subnetFilter())
	}
	if hasCountry {
		chain = append(chain, countryFilter())
	}
	if hasRegion {
		chain = append(chain, regionFilter())
	}
	return append(chain,
		selectFirstRegionFilter(),
		priorityFilter(),
		weightedShuffleFilter(),
		selectFirstNFilter(),
	)
}

// validFilterConfig reports whether an existing chain structurally matches
// the chain this provider would write for the same targeting dimensions. A
// mismatch means the chain is stale and the record needs a rewrite.
//
// Some historical writers left an explicit disabled=false marker on steps;
// the typed model collapses that into the zero value, so it compares equal
// to an absent flag. A genuinely disabled step still fails the comparison.
func validFilterConfig(filters []api.Filter) bool {
	hasRegion := containsFilter(filters, regionFilter())
	hasCountry := containsFilter(filters, countryFilter())
	hasSubnet := containsFilter(filters, subnetFilter())
	expected := filterChainFor(hasRegion, hasCountry, hasSubnet)
	if len(filters) != len(expected) {
		return false
	}
	for i := range filters {
		if !filterEqual(filters[i], expected[i]) {
			return false
		}
	}
	return true
}

func containsFilter(filters []api.Filter, want api.Filter) bool {
	for _, f := range filters {
		if filterEqual(f, want) {
			return true
		}
	}
	return false
}

func filterEqual(a, b api.Filter) bool {
	return a.Filter == b.Filter &&
		a.Disabled == b.Disabled &&
		reflect.DeepEqual(a.Config, b.Config)
}
