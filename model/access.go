package model

// Accessor adapts an Entity to container-style access. Every failure is
// reported as false and the underlying error is dropped, so use the Entity
// methods directly wherever the cause matters.
type Accessor struct {
	entity *Entity
}

// NewAccessor wraps e.
func NewAccessor(e *Entity) Accessor {
	return Accessor{entity: e}
}

// OffsetGet returns the value of field, or false when Get fails.
func (a Accessor) OffsetGet(field string) (any, bool) {
	v, err := a.entity.Get(field)
	if err != nil {
		return nil, false
	}
	return v, true
}

// OffsetSet assigns field and reports whether Set succeeded.
func (a Accessor) OffsetSet(field string, value any) bool {
	return a.entity.Set(field, value) == nil
}

// OffsetExists reports whether field is a declared property.
func (a Accessor) OffsetExists(field string) bool {
	return a.entity.Has(field)
}

// OffsetUnset clears field.
func (a Accessor) OffsetUnset(field string) {
	a.entity.Clear(field)
}

// Iterator walks an entity snapshot with explicit cursor calls.
type Iterator struct {
	entity *Entity
	pairs  []Pair
	pos    int
}

// Iterator returns a cursor positioned on the first pair of a fresh snapshot.
func (e *Entity) Iterator() *Iterator {
	it := &Iterator{entity: e}
	it.Rewind()
	return it
}

// Rewind takes a new snapshot and moves to its first pair.
func (it *Iterator) Rewind() {
	it.pairs = it.entity.Pairs()
	it.pos = 0
}

// Valid reports whether the cursor is on a pair.
func (it *Iterator) Valid() bool {
	return it.pos < len(it.pairs)
}

// Key returns the field under the cursor.
func (it *Iterator) Key() string {
	if !it.Valid() {
		return ""
	}
	return it.pairs[it.pos].Field
}

// Current returns the value under the cursor.
func (it *Iterator) Current() any {
	if !it.Valid() {
		return nil
	}
	return it.pairs[it.pos].Value
}

// Next advances the cursor.
func (it *Iterator) Next() {
	if it.Valid() {
		it.pos++
	}
}
