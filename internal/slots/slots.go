package slots

// Table maps physical key positions to window identities. Capacity is
// fixed at construction to the device's key count; a window identity
// occupies at most one slot at a time.
type Table struct {
	entries []string
}

// NewTable creates a table with the given number of key slots.
func NewTable(size int) *Table {
	if size < 0 {
		size = 0
	}
	return &Table{entries: make([]string, size)}
}

// Len returns the fixed slot count.
func (t *Table) Len() int {
	return len(t.entries)
}

// Assign places id in the first empty slot and returns its index.
// Returns false without mutating the table when every slot is occupied;
// running out of slots is a tolerated condition, not an error.
func (t *Table) Assign(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	// An identity never occupies two slots; re-assigning returns the
	// slot it already holds.
	for i, occupant := range t.entries {
		if occupant == id {
			return i, true
		}
	}
	for i, occupant := range t.entries {
		if occupant == "" {
			t.entries[i] = id
			return i, true
		}
	}
	return 0, false
}

// Release clears the slot occupied by id and returns its index, or
// false if id holds no slot.
func (t *Table) Release(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for i, occupant := range t.entries {
		if occupant == id {
			t.entries[i] = ""
			return i, true
		}
	}
	return 0, false
}

// Occupant returns the window identity shown on the given key, if any.
func (t *Table) Occupant(index int) (string, bool) {
	if index < 0 || index >= len(t.entries) {
		return "", false
	}
	if t.entries[index] == "" {
		return "", false
	}
	return t.entries[index], true
}

// Used returns the number of occupied slots.
func (t *Table) Used() int {
	n := 0
	for _, occupant := range t.entries {
		if occupant != "" {
			n++
		}
	}
	return n
}
