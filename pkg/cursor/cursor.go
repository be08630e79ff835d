// Package cursor tracks the next relay sequence id the poll loop has not
// consumed yet.
package cursor

// Store is a monotonic in-memory cursor. It is owned by a single poll loop
// and is not safe for concurrent mutation.
type Store struct {
	next int64
}

func New() *Store {
	return &Store{}
}

// AdvanceTo marks sequenceID as consumed. The cursor moves to
// sequenceID+1 only if that is ahead of the current value, so repeated or
// out-of-order calls are no-ops.
func (s *Store) AdvanceTo(sequenceID int64) bool {
	if sequenceID+1 <= s.next {
		return false
	}
	s.next = sequenceID + 1
	return true
}

// Current returns the lowest sequence id that has not been consumed.
func (s *Store) Current() int64 {
	return s.next
}

// Consumed reports whether sequenceID is behind the cursor.
func (s *Store) Consumed(sequenceID int64) bool {
	return sequenceID < s.next
}
