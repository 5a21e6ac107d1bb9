package model

import (
	"sort"
	"sync"

	"github.com/jacentio/lattice/internal/shard"
)

// DefaultIdentityShards is the number of lock stripes guarding the identity map.
const DefaultIdentityShards = 16

// Registry resolves class schemas and owns the per-class identity maps.
// Both grow for the lifetime of the registry; nothing is evicted.
type Registry struct {
	mu           sync.RWMutex
	declarations map[string]Declaration
	schemas      map[string]*Schema

	identity *identityMap
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdentityShards sets the number of identity map lock stripes.
func WithIdentityShards(n int) RegistryOption {
	return func(r *Registry) {
		r.identity = newIdentityMap(n)
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		declarations: make(map[string]Declaration),
		schemas:      make(map[string]*Schema),
		identity:     newIdentityMap(DefaultIdentityShards),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Declare records the declaration of class. A class can be redeclared until
// its schema has been resolved; afterwards the schema is fixed.
func (r *Registry) Declare(class string, decl Declaration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, resolved := r.schemas[class]; resolved {
		return &SchemaError{Class: class, Reason: "already resolved"}
	}
	r.declarations[class] = decl
	return nil
}

// Resolve returns the cached schema of class, building it on first use.
func (r *Registry) Resolve(class string) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.schemas[class]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have resolved it between the locks.
	if s, ok := r.schemas[class]; ok {
		return s, nil
	}
	decl, ok := r.declarations[class]
	if !ok {
		return nil, &SchemaError{Class: class, Reason: "not declared"}
	}
	s, err := newSchema(class, decl)
	if err != nil {
		return nil, err
	}
	r.schemas[class] = s
	return s, nil
}

// Classes returns the declared class names, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.declarations))
	for name := range r.declarations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComposeKey builds the identity map key of rec for class.
func (r *Registry) ComposeKey(class string, rec Record) (string, bool, error) {
	s, err := r.Resolve(class)
	if err != nil {
		return "", false, err
	}
	key, ok := s.ComposeKey(rec)
	return key, ok, nil
}

// Lookup returns the registered entity of class for key. key is either a
// scalar primary key value or a Record holding the key fields.
func (r *Registry) Lookup(class string, key any) (*Entity, bool) {
	var id string
	switch k := key.(type) {
	case nil:
		return nil, false
	case string:
		id = k
	case Record:
		s, err := r.Resolve(class)
		if err != nil {
			return nil, false
		}
		composed, ok := s.ComposeKey(k)
		if !ok {
			return nil, false
		}
		id = composed
	case map[string]any:
		return r.Lookup(class, Values(k))
	default:
		id = keyString(k)
	}
	return r.identity.load(class, id)
}

// Len returns the number of entities registered for class.
func (r *Registry) Len(class string) int {
	return r.identity.count(class)
}

type forgeOptions struct {
	isNew bool
	view  string
	state Values
}

// ForgeOption configures Forge.
type ForgeOption func(*forgeOptions)

// AsNew marks the data as new (true, the default) or loaded from the store (false).
func AsNew(isNew bool) ForgeOption {
	return func(o *forgeOptions) { o.isNew = isNew }
}

// WithView binds a declared view to a loaded entity.
func WithView(view string) ForgeOption {
	return func(o *forgeOptions) { o.view = view }
}

// WithState hands over state an external loader populated before
// construction. A non-empty state always yields a loaded entity.
func WithState(state Values) ForgeOption {
	return func(o *forgeOptions) { o.state = state }
}

// New builds a fresh entity of class from data and the declared defaults.
func (r *Registry) New(class string, data Values) (*Entity, error) {
	return r.Forge(class, data)
}

// Hydrate builds an entity of class from data loaded from the store and
// registers it in the identity map. When an entity with the same key is
// already registered, that instance is returned unchanged.
func (r *Registry) Hydrate(class string, data Values, view string) (*Entity, error) {
	return r.Forge(class, data, AsNew(false), WithView(view))
}

// Forge is the general entity constructor behind New and Hydrate.
func (r *Registry) Forge(class string, data Values, opts ...ForgeOption) (*Entity, error) {
	o := forgeOptions{isNew: true}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := r.Resolve(class)
	if err != nil {
		return nil, err
	}

	e := newEntity(s)
	isNew := o.isNew
	if len(o.state) > 0 {
		e.merge(o.state)
		e.original = cloneValues(o.state)
		isNew = false
	}

	if isNew {
		for _, p := range s.Properties() {
			if v, ok := data[p.Name]; ok {
				e.put(p.Name, v)
			} else if p.HasDefault {
				e.put(p.Name, p.Default)
			}
		}
		return e, nil
	}

	for k, v := range data {
		e.original[k] = v
	}
	e.merge(data)
	if _, ok := s.views[o.view]; ok {
		e.view = o.view
	}
	e.isNew = false

	key, ok := s.ComposeKey(e)
	if !ok {
		return e, nil
	}
	if existing, loaded := r.identity.loadOrStore(class, key, e); loaded {
		return existing, nil
	}
	return e, nil
}

type identityKey struct {
	class string
	key   string
}

type identityStripe struct {
	mu      sync.RWMutex
	entries map[identityKey]*Entity
}

// identityMap is lock-striped so that registrations for unrelated keys do
// not contend.
type identityMap struct {
	stripes []*identityStripe
}

func newIdentityMap(numShards int) *identityMap {
	if numShards < 1 {
		numShards = 1
	}
	m := &identityMap{stripes: make([]*identityStripe, numShards)}
	for i := range m.stripes {
		m.stripes[i] = &identityStripe{entries: make(map[identityKey]*Entity)}
	}
	return m
}

func (m *identityMap) stripe(class, key string) *identityStripe {
	return m.stripes[shard.Stripe(class, key, len(m.stripes))]
}

func (m *identityMap) load(class, key string) (*Entity, bool) {
	st := m.stripe(class, key)
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.entries[identityKey{class, key}]
	return e, ok
}

func (m *identityMap) loadOrStore(class, key string, e *Entity) (*Entity, bool) {
	st := m.stripe(class, key)
	st.mu.Lock()
	defer st.mu.Unlock()

	ik := identityKey{class, key}
	if existing, ok := st.entries[ik]; ok {
		return existing, true
	}
	st.entries[ik] = e
	return e, false
}

func (m *identityMap) count(class string) int {
	n := 0
	for _, st := range m.stripes {
		st.mu.RLock()
		for k := range st.entries {
			if k.class == class {
				n++
			}
		}
		st.mu.RUnlock()
	}
	return n
}
