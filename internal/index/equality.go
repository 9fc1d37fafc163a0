package index

import (
	"github.com/tuannm99/novarel/internal/record"
)

// Equality maps a column value to the set of rows holding it.
// NULL values are never indexed.
type Equality struct {
	Column  string
	entries map[any]map[record.RowID]struct{}
}

func NewEquality(column string) *Equality {
	return &Equality{
		Column:  column,
		entries: make(map[any]map[record.RowID]struct{}),
	}
}

func (ix *Equality) Add(key any, id record.RowID) {
	if key == nil {
		return
	}
	set, ok := ix.entries[key]
	if !ok {
		set = make(map[record.RowID]struct{}, 1)
		ix.entries[key] = set
	}
	set[id] = struct{}{}
}

func (ix *Equality) Remove(key any, id record.RowID) {
	if key == nil {
		return
	}
	set, ok := ix.entries[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.entries, key)
	}
}

// Lookup returns the rows holding key, in no particular order.
func (ix *Equality) Lookup(key any) []record.RowID {
	if key == nil {
		return nil
	}
	set := ix.entries[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]record.RowID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Contains reports whether any row other than except holds key.
func (ix *Equality) Contains(key any, except ...record.RowID) bool {
	if key == nil {
		return false
	}
	set := ix.entries[key]
	for id := range set {
		skip := false
		for _, e := range except {
			if id == e {
				skip = true
				break
			}
		}
		if !skip {
			return true
		}
	}
	return false
}

// Len returns the number of distinct keys.
func (ix *Equality) Len() int { return len(ix.entries) }

func (ix *Equality) Reset() {
	ix.entries = make(map[any]map[record.RowID]struct{})
}
