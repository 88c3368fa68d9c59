package dns

import "sort"

// Zone is a named collection of records being populated from or applied to a
// provider. Name carries a trailing dot.
type Zone struct {
	Name    string
	records map[recordKey]*Record
}

type recordKey struct {
	name string
	typ  string
}

// NewZone creates an empty zone. The name gains a trailing dot if missing.
func NewZone(name string) *Zone {
	if name != "" && name[len(name)-1] != '.' {
		name += "."
	}
	return &Zone{
		Name:    name,
		records: make(map[recordKey]*Record),
	}
}

// AddRecord inserts or replaces the record keyed by (name, type).
func (z *Zone) AddRecord(r *Record) {
	r.Zone = z.Name
	z.records[recordKey{name: r.Name, typ: r.Type}] = r
}

// Records returns the zone's records sorted by name then type.
func (z *Zone) Records() []*Record {
	out := make([]*Record, 0, len(z.records))
	for _, r := range z.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Len returns the number of records in the zone.
func (z *Zone) Len() int {
	return len(z.records)
}
