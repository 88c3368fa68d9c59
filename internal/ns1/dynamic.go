package ns1

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ns1-sync/internal/ns1/api"
)

// defaultPoolMarker tags answers that carry the record's static default
// values rather than a pool member.
const defaultPoolMarker = "--default--"

// noteData is a decoded note: space-joined key:value tokens. Empty values
// decode to absent.
type noteData map[string]string

// parseNotes decodes an encoded note. Tokens without a colon are skipped,
// empty values are dropped.
func parseNotes(note string) noteData {
	data := noteData{}
	for _, piece := range strings.Split(note, " ") {
		k, v, ok := strings.Cut(piece, ":")
		if !ok || v == "" {
			continue
		}
		data[k] = v
	}
	return data
}

func (n noteData) get(key string) string {
	return n[key]
}

func (n noteData) has(key string) bool {
	_, ok := n[key]
	return ok
}

// getInt returns the value parsed as an integer, or ok=false when the key is
// absent or not numeric.
func (n noteData) getInt(key string) (int, bool) {
	v, ok := n[key]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// encodeNotes encodes note data with sorted keys. Empty values are kept
// ("fallback:" records an explicitly absent fallback).
func encodeNotes(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+data[k])
	}
	return strings.Join(parts, " ")
}

// parseDynamicPoolName recovers the pool name from a wire region label.
// Modern labels are <pool>__<dimension>; the old style used a catchall__
// prefix or a bare pool name.
func parseDynamicPoolName(label string) string {
	const catchallPrefix = "catchall__"
	if strings.HasPrefix(label, catchallPrefix) {
		return label[len(catchallPrefix):]
	}
	if idx := strings.LastIndex(label, "__"); idx >= 0 {
		return label[:idx]
	}
	return label
}

// parsedPool accumulates a pool's state while walking wire answers.
type parsedPool struct {
	fallback string
	values   []dns.Value
}

// parsePools rebuilds pools and the record's static default values from wire
// answers. Two note encodings are supported: modern answers name their pool
// in the note (and all priorities count), legacy answers only contribute at
// priority 1 with the pool name derived from their region label.
func parsePools(answers []api.Answer) (defaults []string, pools map[string]*parsedPool) {
	defaultSet := map[string]bool{}
	pools = map[string]*parsedPool{}

	for _, answer := range answers {
		if len(answer.Answer) == 0 {
			continue
		}
		notes := parseNotes(answer.Meta.Note)
		value := answer.Answer[0]

		if notes.get("from") == defaultPoolMarker {
			defaultSet[value] = true
			continue
		}

		poolName := notes.get("pool")
		if poolName == "" {
			// Legacy encoding: only first-tier answers belong to the
			// pool and the region label names it.
			if answer.Meta.Priority != 1 {
				continue
			}
			poolName = parseDynamicPoolName(answer.Region)
		}

		pool := pools[poolName]
		if pool == nil {
			pool = &parsedPool{}
			pools[poolName] = pool
		}

		weight := answer.Meta.Weight
		if weight == 0 {
			weight = 1
		}
		status := dns.StatusObey
		if up, ok := answer.Meta.UpBool(); ok {
			if up {
				status = dns.StatusUp
			} else {
				status = dns.StatusDown
			}
		}
		v := dns.Value{Value: value, Weight: weight, Status: status}
		if !containsValue(pool.values, v) {
			pool.values = append(pool.values, v)
		}

		if fallback := notes.get("fallback"); fallback != "" {
			pool.fallback = fallback
		}
	}

	defaults = make([]string, 0, len(defaultSet))
	for v := range defaultSet {
		defaults = append(defaults, v)
	}
	sort.Strings(defaults)
	return defaults, pools
}

func containsValue(values []dns.Value, v dns.Value) bool {
	for _, have := range values {
		if have == v {
			return true
		}
	}
	return false
}

// parseRules merges wire regions back into ordered rules. Regions sharing a
// rule-order index union their targeting payloads into one rule. A region
// note may also carry the pool's fallback (legacy encoding).
func parseRules(pools map[string]*parsedPool, regions map[string]api.Region) []dns.Rule {
	type parsedRule struct {
		order   int
		pool    string
		geos    map[string]bool
		subnets map[string]bool
	}
	rules := map[int]*parsedRule{}

	for _, label := range sortedRegionLabels(regions) {
		region := regions[label]
		poolName := parseDynamicPoolName(label)
		notes := parseNotes(region.Meta.Note)

		if fallback := notes.get("fallback"); fallback != "" {
			pool := pools[poolName]
			if pool == nil {
				pool = &parsedPool{}
				pools[poolName] = pool
			}
			pool.fallback = fallback
		}

		order, _ := notes.getInt("rule-order")
		rule := rules[order]
		if rule == nil {
			rule = &parsedRule{
				order:   order,
				pool:    poolName,
				geos:    map[string]bool{},
				subnets: map[string]bool{},
			}
			rules[order] = rule
		}

		for _, geo := range parseRuleGeos(region.Meta, notes) {
			rule.geos[geo] = true
		}
		for _, subnet := range region.Meta.IPPrefixes {
			rule.subnets[subnet] = true
		}
	}

	out := make([]*parsedRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].order != out[j].order {
			return out[i].order < out[j].order
		}
		return out[i].pool < out[j].pool
	})

	result := make([]dns.Rule, 0, len(out))
	for _, r := range out {
		rule := dns.Rule{Pool: r.pool}
		if len(r.geos) > 0 {
			rule.Geos = sortedKeys(r.geos)
		}
		if len(r.subnets) > 0 {
			rule.Subnets = sortedKeys(r.subnets)
		}
		result = append(result, rule)
	}
	return result
}

func sortedRegionLabels(regions map[string]api.Region) []string {
	labels := make([]string, 0, len(regions))
	for label := range regions {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// dataForDynamic converts a full wire record back into the declarative
// model. The wire filter chain is remembered so drift can be detected later
// without another retrieval.
func (p *Provider) dataForDynamic(rec *api.Record) *dns.Record {
	p.rememberFilters(rec.Domain, rec.Type, rec.Filters)

	defaults, parsed := parsePools(rec.Answers)
	rules := parseRules(parsed, rec.Regions)

	pools := make(map[string]*dns.Pool, len(parsed))
	for name, pp := range parsed {
		pools[name] = &dns.Pool{Fallback: pp.fallback, Values: pp.values}
	}

	return &dns.Record{
		Type:    rec.Type,
		TTL:     rec.TTL,
		Values:  defaults,
		Dynamic: &dns.Dynamic{Pools: pools, Rules: rules},
	}
}

// generateRegions expands a record's rules into wire regions, one per
// populated targeting dimension, and reports which filter-chain dimensions
// the record needs.
func (p *Provider) generateRegions(record *dns.Record) (hasSubnet, hasCountry, hasRegion bool, regions map[string]api.Region, err error) {
	pools := record.Dynamic.Pools
	regions = map[string]api.Region{}

	// Countries a rule author already carved into their own rule; they are
	// excluded when a continent has to be expanded into its country list.
	explicitCountries := map[string]map[string]bool{}
	for _, rule := range record.Dynamic.Rules {
		for _, geo := range rule.Geos {
			if len(geo) == 5 {
				con, country, _ := strings.Cut(geo, "-")
				if explicitCountries[con] == nil {
					explicitCountries[con] = map[string]bool{}
				}
				explicitCountries[con][country] = true
			}
		}
	}

	for i, rule := range record.Dynamic.Rules {
		poolName := rule.Pool

		notes := map[string]string{"rule-order": strconv.Itoa(i)}
		if pool := pools[poolName]; pool != nil && pool.Fallback != "" {
			notes["fallback"] = pool.Fallback
		}

		country := map[string]bool{}
		georegion := map[string]bool{}
		usState := map[string]bool{}
		caProvince := map[string]bool{}
		subnet := map[string]bool{}
		for _, s := range rule.Subnets {
			subnet[s] = true
		}
		var continents []string

		for _, geo := range rule.Geos {
			switch len(geo) {
			case 8:
				// US state (NA-US-KY) or CA province (NA-CA-NL); both
				// are evaluated by the country filtering stage.
				if strings.HasPrefix(geo, "NA-US") {
					usState[geo[len(geo)-2:]] = true
				} else {
					caProvince[geo[len(geo)-2:]] = true
				}
				hasCountry = true
			case 5:
				country[geo[len(geo)-2:]] = true
				hasCountry = true
			case 2:
				if native, ok := continentToRegions[geo]; ok {
					for _, r := range native {
						georegion[r] = true
					}
					hasRegion = true
					continue
				}
				if !continentNeedsExpansion(geo) {
					return false, false, false, nil, unsupportedf(
						"unsupported continent code %q in %s", geo, record.FQDN())
				}
				// No native georegion for this continent; target its
				// country list instead, minus countries already used
				// explicitly, and record the continent so the reverse
				// parse can collapse the list back.
				p.log.V(1).Info("expanding continent to country list", "continent", geo)
				exclude := explicitCountries[geo]
				for c := range continentCountries[geo] {
					if !exclude[c] {
						country[c] = true
					}
				}
				continents = append(continents, geo)
				hasCountry = true
			}
		}

		if len(continents) > 0 {
			sort.Strings(continents)
			notes["continents"] = strings.Join(continents, ",")
		}
		if len(subnet) > 0 {
			hasSubnet = true
		}

		note := encodeNotes(notes)

		if len(georegion) > 0 {
			regions[poolName+"__georegion"] = api.Region{Meta: api.RegionMeta{
				Note:      note,
				Georegion: sortedKeys(georegion),
			}}
		}

		if len(country) > 0 || len(usState) > 0 || len(caProvince) > 0 {
			// Countries and states share a region because the same
			// filter stage evaluates both; georegions cannot join them
			// since a separate stage would risk eliminating everything.
			meta := api.RegionMeta{Note: note}
			if len(country) > 0 {
				meta.Country = sortedKeys(country)
			}
			if len(usState) > 0 {
				meta.USState = sortedKeys(usState)
			}
			if len(caProvince) > 0 {
				meta.CAProvince = sortedKeys(caProvince)
			}
			regions[poolName+"__country"] = api.Region{Meta: meta}
		}

		if len(subnet) > 0 {
			regions[poolName+"__subnet"] = api.Region{Meta: api.RegionMeta{
				Note:       note,
				IPPrefixes: sortedKeys(subnet),
			}}
		}

		if len(georegion) == 0 && len(country) == 0 && len(usState) == 0 &&
			len(caProvince) == 0 && len(subnet) == 0 {
			regions[poolName+"__catchall"] = api.Region{Meta: api.RegionMeta{Note: note}}
		}
	}

	return hasSubnet, hasCountry, hasRegion, regions, nil
}

// poolAnswer is one expanded pool member, with its feed binding when the
// value is health-check governed.
type poolAnswer struct {
	value  string
	weight int
	feedID string
	status string
}

// generateAnswers expands every region's pool (with its fallback chain) into
// prioritized wire answers, syncing monitors for obey-status values along
// the way. It returns the set of monitor ids the answers reference.
func (p *Provider) generateAnswers(ctx context.Context, record *dns.Record, regions map[string]api.Region) (map[string]bool, []api.Answer, error) {
	pools := record.Dynamic.Pools
	existingMonitors, err := p.monitorsFor(ctx, record)
	if err != nil {
		return nil, nil, err
	}
	activeMonitors := map[string]bool{}

	// Expand each pool's own values once, binding feeds for values whose
	// state obeys a monitor. Identical values share one monitor.
	valueFeed := map[string]string{}
	poolAnswers := map[string][]poolAnswer{}
	for _, poolName := range sortedPoolNames(pools) {
		pool := pools[poolName]
		for _, value := range pool.Values {
			pa := poolAnswer{
				value:  value.Value,
				weight: value.EffectiveWeight(),
				status: value.Status,
			}
			if value.Status == dns.StatusObey {
				feedID := valueFeed[value.Value]
				if feedID == "" {
					existing := existingMonitors[value.Value]
					monitorID, newFeedID, err := p.monitorSync(ctx, record, value.Value, existing)
					if err != nil {
						return nil, nil, err
					}
					valueFeed[value.Value] = newFeedID
					activeMonitors[monitorID] = true
					feedID = newFeedID
				}
				pa.feedID = feedID
			}
			poolAnswers[poolName] = append(poolAnswers[poolName], pa)
		}
	}

	var answers []api.Answer
	for _, label := range sortedRegionLabels(regions) {
		poolName := parseDynamicPoolName(label)
		answers = p.addAnswersForPool(answers, record.Values, poolName, label, poolAnswers, pools)
	}

	return activeMonitors, answers, nil
}

// addAnswersForPool walks the pool's fallback chain emitting answers at
// increasing priority tiers, then appends the record's static defaults at
// the last tier. Traversal stops silently when a fallback pointer revisits a
// pool.
func (p *Provider) addAnswersForPool(answers []api.Answer, defaultValues []string, poolName, poolLabel string, poolAnswers map[string][]poolAnswer, pools map[string]*dns.Pool) []api.Answer {
	priority := 1
	seen := map[string]bool{}
	current := poolName
	for current != "" && !seen[current] {
		seen[current] = true
		pool := pools[current]
		if pool == nil {
			break
		}
		for _, pa := range poolAnswers[current] {
			var up any
			if pa.feedID != "" {
				up = api.FeedPtr{Feed: pa.feedID}
			} else {
				up = pa.status == dns.StatusUp
			}
			answers = append(answers, api.Answer{
				Answer: []string{pa.value},
				Meta: api.Meta{
					Priority: priority,
					Weight:   pa.weight,
					Up:       up,
					Note: encodeNotes(map[string]string{
						"from":     poolLabel,
						"pool":     current,
						"fallback": pool.Fallback,
					}),
				},
				Region: poolLabel,
			})
		}
		current = pool.Fallback
		priority++
	}

	for _, value := range defaultValues {
		answers = append(answers, api.Answer{
			Answer: []string{value},
			Meta: api.Meta{
				Priority: priority,
				Weight:   1,
				Up:       true,
				Note:     encodeNotes(map[string]string{"from": defaultPoolMarker}),
			},
			Region: poolLabel,
		})
	}

	return answers
}

func sortedPoolNames(pools map[string]*dns.Pool) []string {
	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// paramsForDynamic builds the full wire payload for a dynamic record and
// returns the monitor ids its answers reference.
func (p *Provider) paramsForDynamic(ctx context.Context, record *dns.Record) (*api.Record, map[string]bool, error) {
	hasSubnet, hasCountry, hasRegion, regions, err := p.generateRegions(record)
	if err != nil {
		return nil, nil, err
	}

	activeMonitors, answers, err := p.generateAnswers(ctx, record, regions)
	if err != nil {
		return nil, nil, err
	}

	return &api.Record{
		Answers: answers,
		Filters: filterChainFor(hasRegion, hasCountry, hasSubnet),
		Regions: regions,
		TTL:     record.TTL,
	}, activeMonitors, nil
}
