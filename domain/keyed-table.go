package domain

import (
	"github.com/gammazero/deque"
)

// KeyedTable is an ordered in-memory mirror of one exchange table.
// Rows are unique by the table's KeySpec, which is fixed when the table is created.
type KeyedTable struct {
	name string
	keys KeySpec
	rows deque.Deque[Record]
}

func NewKeyedTable(name string, keys KeySpec, rows []Record) *KeyedTable {
	t := &KeyedTable{
		name: name,
		keys: append(KeySpec(nil), keys...),
	}
	t.Reset(rows)
	return t
}

func (t *KeyedTable) Name() string {
	return t.name
}

func (t *KeyedTable) Keys() KeySpec {
	return append(KeySpec(nil), t.keys...)
}

func (t *KeyedTable) Len() int {
	return t.rows.Len()
}

// Reset replaces the table contents, keeping the KeySpec.
func (t *KeyedTable) Reset(rows []Record) {
	t.rows.Clear()
	for _, row := range rows {
		t.Upsert(row)
	}
}

// Upsert merges rec into the row with the same key, or appends it.
// Returns true when a new row was appended.
func (t *KeyedTable) Upsert(rec Record) bool {
	if i := t.index(rec); i >= 0 {
		t.rows.At(i).Merge(rec)
		return false
	}

	t.rows.PushBack(rec.Clone())
	return true
}

// Update merges partial into the matching row. A miss leaves the table untouched.
func (t *KeyedTable) Update(partial Record) bool {
	i := t.index(partial)
	if i < 0 {
		return false
	}

	t.rows.At(i).Merge(partial)
	return true
}

func (t *KeyedTable) Remove(match Record) bool {
	i := t.index(match)
	if i < 0 {
		return false
	}

	t.rows.Remove(i)
	return true
}

func (t *KeyedTable) Find(match Record) (Record, bool) {
	i := t.index(match)
	if i < 0 {
		return nil, false
	}
	return t.rows.At(i).Clone(), true
}

// Latest returns a copy of the most recently appended row.
func (t *KeyedTable) Latest() (Record, bool) {
	if t.rows.Len() == 0 {
		return nil, false
	}
	return t.rows.Back().Clone(), true
}

// Rows returns copies of all rows in table order.
func (t *KeyedTable) Rows() []Record {
	out := make([]Record, 0, t.rows.Len())
	for i := 0; i < t.rows.Len(); i++ {
		out = append(out, t.rows.At(i).Clone())
	}
	return out
}

// RemoveWhere drops every row matching pred and returns them in table order.
func (t *KeyedTable) RemoveWhere(pred func(Record) bool) []Record {
	var removed []Record
	for i := 0; i < t.rows.Len(); {
		if pred(t.rows.At(i)) {
			removed = append(removed, t.rows.Remove(i))
			continue
		}
		i++
	}
	return removed
}

// Trim drops the oldest half of maxLen rows, repeatedly, until the table fits.
// Returns the number of dropped rows. maxLen <= 0 disables trimming.
func (t *KeyedTable) Trim(maxLen int) int {
	if maxLen <= 0 {
		return 0
	}

	dropped := 0
	half := (maxLen + 1) / 2
	for t.rows.Len() > maxLen {
		for i := 0; i < half && t.rows.Len() > 0; i++ {
			t.rows.PopFront()
			dropped++
		}
	}
	return dropped
}

func (t *KeyedTable) index(match Record) int {
	if len(t.keys) == 0 {
		return -1
	}
	return t.rows.Index(func(row Record) bool {
		return row.Matches(t.keys, match)
	})
}
