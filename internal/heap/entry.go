package heap

import "github.com/tuannm99/novarel/internal/record"

// Entry is one row together with its permanent identity.
// Rows inside the arena are ordered by ID, which is insertion order.
type Entry struct {
	ID  record.RowID
	Row record.Row
}

func entryLess(a, b Entry) bool { return a.ID < b.ID }
