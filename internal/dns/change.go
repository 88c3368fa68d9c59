package dns

// Change is one planned operation against a zone, produced by the outer diff
// engine and consumed by a provider's apply path.
type Change interface {
	// Record returns the record the change is about: the new state for
	// creates and updates, the old state for deletes.
	Record() *Record
}

// Create adds a record that does not exist remotely.
type Create struct {
	New *Record
}

func (c Create) Record() *Record { return c.New }

// Update replaces an existing record's state. Existing may be nil when a
// create was rewritten into an update (see the root-NS handling on zone
// creation).
type Update struct {
	Existing *Record
	New      *Record
}

func (u Update) Record() *Record { return u.New }

// Delete removes an existing record.
type Delete struct {
	Existing *Record
}

func (d Delete) Record() *Record { return d.Existing }
