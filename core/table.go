package core

// Logical peripheral ids. Each kind is a contiguous, zero-based range closed at
// build time; the board package declares the members and a ...Last sentinel.
type (
	PinID     uint8
	StreamID  uint8
	BusID     uint8
	ADCID     uint8
	ChannelID uint8
)

// ID is the constraint satisfied by every logical peripheral id.
type ID interface {
	~uint8
}

// Table is a dense descriptor table indexed by a logical id.
// Entries are fixed once the table is built.
type Table[K ID, D any] struct {
	entries []D
}

// NewTable builds a table from descriptors listed in id order.
func NewTable[K ID, D any](entries ...D) Table[K, D] {
	return Table[K, D]{entries: entries}
}

// Len returns the Last sentinel of the id range.
func (t Table[K, D]) Len() int {
	return len(t.entries)
}

// Valid reports whether id lies in [0, Last).
func (t Table[K, D]) Valid(id K) bool {
	return int(id) < len(t.entries)
}

// Get returns a copy of the descriptor for id, or ErrRange. Pointer fields
// such as PinDescriptor.Interrupt are still shared and must not be written.
func (t Table[K, D]) Get(id K) (D, error) {
	if !t.Valid(id) {
		var zero D
		return zero, ErrRange
	}
	return t.entries[id], nil
}

// Each calls fn with a copy of every descriptor in declaration order.
func (t Table[K, D]) Each(fn func(id K, d D)) {
	for i, d := range t.entries {
		fn(K(i), d)
	}
}
