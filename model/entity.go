package model

import (
	"iter"
	"reflect"
	"slices"
	"sort"
	"sync"
)

// Pair is one field and its value in an iteration snapshot.
type Pair struct {
	Field string
	Value any
}

// Entity is one logical row bound to a schema.
type Entity struct {
	mu     sync.RWMutex
	schema *Schema

	// fields keeps data keys in insertion order.
	fields []string
	data   map[string]any

	// original holds the values as last loaded from the store.
	original Values

	relFields []string
	relations map[string]any

	isNew  bool
	frozen bool
	view   string
}

func newEntity(s *Schema) *Entity {
	return &Entity{
		schema:    s,
		data:      make(map[string]any),
		original:  make(Values),
		relations: make(map[string]any),
		isNew:     true,
	}
}

// put stores a value, appending the field if it is new. Callers hold mu or
// own the entity exclusively.
func (e *Entity) put(field string, v any) {
	if _, ok := e.data[field]; !ok {
		e.fields = append(e.fields, field)
	}
	e.data[field] = v
}

// merge puts values in a stable order: declared properties first, in
// declared order, then any other keys sorted by name.
func (e *Entity) merge(values Values) {
	for _, k := range orderedKeys(e.schema, values) {
		e.put(k, values[k])
	}
}

func orderedKeys(s *Schema, values Values) []string {
	keys := make([]string, 0, len(values))
	for _, name := range s.order {
		if _, ok := values[name]; ok {
			keys = append(keys, name)
		}
	}
	var extra []string
	for k := range values {
		if !s.HasProperty(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func cloneValues(v Values) Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Class returns the class name of the entity.
func (e *Entity) Class() string { return e.schema.class }

// Schema returns the schema the entity is bound to.
func (e *Entity) Schema() *Schema { return e.schema }

// IsNew reports whether the entity was built fresh rather than loaded.
func (e *Entity) IsNew() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isNew
}

// View returns the active view name, or "" when none is bound.
func (e *Entity) View() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view
}

// Freeze makes the entity read-only for good.
func (e *Entity) Freeze() {
	e.mu.Lock()
	e.frozen = true
	e.mu.Unlock()
}

// Frozen reports whether the entity has been frozen.
func (e *Entity) Frozen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frozen
}

// Key returns the composed primary key of the current data.
func (e *Entity) Key() (string, bool) {
	return e.schema.ComposeKey(e)
}

// Lookup returns the raw current value of field without schema checks.
func (e *Entity) Lookup(field string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.data[field]
	return v, ok
}

// Get returns the value of a declared property, materialising an unset
// property as nil. Fields outside the schema are readable only through the
// active view.
func (e *Entity) Get(field string) (any, error) {
	if e.schema.HasProperty(field) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.data[field]; !ok {
			e.put(field, nil)
		}
		return e.data[field], nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.schema.inView(e.view, field) {
		return e.data[field], nil
	}
	return nil, &NotFoundError{Class: e.schema.class, Field: field}
}

// Set assigns a declared property.
func (e *Entity) Set(field string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set(field, value)
}

func (e *Entity) set(field string, value any) error {
	if e.frozen {
		return &FrozenError{Class: e.schema.class}
	}
	if e.schema.IsKey(field) && e.data[field] != nil {
		return &ImmutableKeyError{Class: e.schema.class, Field: field}
	}
	if !e.schema.HasProperty(field) {
		return &NotFoundError{Class: e.schema.class, Field: field}
	}
	e.put(field, value)
	return nil
}

// SetMany assigns each entry in lexical key order and stops at the first
// failure. Entries assigned before the failure stay assigned.
func (e *Entity) SetMany(values Values) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range keys {
		if err := e.set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// SetPairs assigns each pair in the given order and stops at the first
// failure. Pairs assigned before the failure stay assigned.
func (e *Entity) SetPairs(pairs []Pair) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range pairs {
		if err := e.set(p.Field, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether field is a declared property. Fields visible only
// through a view are not reported.
func (e *Entity) Has(field string) bool {
	return e.schema.HasProperty(field)
}

// Clear sets a declared property to nil. Unknown fields are left alone.
// A frozen entity is left alone too, unlike unsetting a field on an
// unfrozen one: every mutation of a frozen entity is refused, and Clear
// has no error to report it with.
func (e *Entity) Clear(field string) {
	if !e.schema.HasProperty(field) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return
	}
	e.put(field, nil)
}

// Values returns a copy of the current data.
func (e *Entity) Values() Values {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneValues(e.data)
}

// Original returns a copy of the data as last loaded from the store.
func (e *Entity) Original() Values {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneValues(e.original)
}

// IsChanged reports whether field diverges from its loaded value.
func (e *Entity) IsChanged(field string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.changed(field)
}

func (e *Entity) changed(field string) bool {
	cur, inData := e.data[field]
	orig, inOrig := e.original[field]
	if inData != inOrig {
		return inData
	}
	return !reflect.DeepEqual(cur, orig)
}

// Changed returns the fields diverging from their loaded values, in data order.
func (e *Entity) Changed() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []string
	for _, f := range e.fields {
		if e.changed(f) {
			out = append(out, f)
		}
	}
	return out
}

// SetRelation attaches loaded relation data under name.
func (e *Entity) SetRelation(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.relations[name]; !ok {
		e.relFields = append(e.relFields, name)
	}
	e.relations[name] = value
}

// Relation returns the relation data attached under name.
func (e *Entity) Relation(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.relations[name]
	return v, ok
}

// Reload merges values read back from the store into both the loaded and
// the current data. Primary key fields are never touched.
func (e *Entity) Reload(values Values) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return &FrozenError{Class: e.schema.class}
	}
	for _, k := range orderedKeys(e.schema, values) {
		if e.schema.IsKey(k) {
			continue
		}
		e.original[k] = values[k]
		e.put(k, values[k])
	}
	return nil
}

// Pairs returns a snapshot of the data fields in insertion order followed by
// the relation fields. A relation sharing a name with a data field replaces
// its value in place.
func (e *Entity) Pairs() []Pair {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pairs := make([]Pair, 0, len(e.fields)+len(e.relFields))
	for _, f := range e.fields {
		pairs = append(pairs, Pair{Field: f, Value: e.data[f]})
	}
	for _, name := range e.relFields {
		i := slices.IndexFunc(pairs, func(p Pair) bool { return p.Field == name })
		if i >= 0 {
			pairs[i].Value = e.relations[name]
			continue
		}
		pairs = append(pairs, Pair{Field: name, Value: e.relations[name]})
	}
	return pairs
}

// All iterates a snapshot taken when the iteration starts. Changes made
// while iterating are not observed; ranging again takes a new snapshot.
func (e *Entity) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, p := range e.Pairs() {
			if !yield(p.Field, p.Value) {
				return
			}
		}
	}
}
