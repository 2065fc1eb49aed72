package manager

import "github.com/autopeer-io/drivermgr/internal/drivermgr/pool"

// StateCounts aggregates the attachment state of a set of entries.
// Attached+Detached equals the number of entries and Enabled+Disabled equals Attached.
type StateCounts struct {
	Attached int `json:"attached"`
	Detached int `json:"detached"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
}

// Total returns the number of entries counted.
func (c StateCounts) Total() int { return c.Attached + c.Detached }

// CountStates computes the counts of entries from their live state.
func CountStates(entries []*pool.Entry) StateCounts {
	var c StateCounts
	for _, e := range entries {
		st := e.Snapshot()
		switch {
		case !st.Attached:
			c.Detached++
		case st.Enabled:
			c.Attached++
			c.Enabled++
		default:
			c.Attached++
			c.Disabled++
		}
	}
	return c
}

// StateCounts computes the counts of entries. It never caches.
func (m *Manager) StateCounts(entries []*pool.Entry) StateCounts {
	return CountStates(entries)
}

// CountsAll computes the counts over the whole pool.
func (m *Manager) CountsAll() (StateCounts, error) {
	entries, err := m.pool.SortedEntries()
	if err != nil {
		return StateCounts{}, err
	}
	return CountStates(entries), nil
}

// CountsFor computes the counts over the named vehicles.
func (m *Manager) CountsFor(vehicles []string) (StateCounts, error) {
	entries := make([]*pool.Entry, 0, len(vehicles))
	for _, name := range vehicles {
		e, err := m.pool.GetEntryFor(name)
		if err != nil {
			return StateCounts{}, err
		}
		entries = append(entries, e)
	}
	return CountStates(entries), nil
}
