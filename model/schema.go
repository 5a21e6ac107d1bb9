package model

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/inflect"
)

// DefaultPrimaryKey is used when a declaration names no primary key fields.
var DefaultPrimaryKey = []string{"id"}

// Values maps field names to values.
type Values map[string]any

// Lookup returns the value stored for field.
func (v Values) Lookup(field string) (any, bool) {
	val, ok := v[field]
	return val, ok
}

// Record exposes field values by name. Both Values and *Entity implement it.
type Record interface {
	Lookup(field string) (any, bool)
}

// Property declares one field of a class.
type Property struct {
	Name string

	// Default is applied to new entities when HasDefault is set.
	Default    any
	HasDefault bool
}

// Field declares a property without settings.
func Field(name string) Property {
	return Property{Name: name}
}

// FieldDefault declares a property with a default value.
func FieldDefault(name string, def any) Property {
	return Property{Name: name, Default: def, HasDefault: true}
}

// Declaration is what a class states about itself before it is resolved.
type Declaration struct {
	// PrimaryKey lists the key fields in order. Empty means DefaultPrimaryKey.
	PrimaryKey []string

	// Properties lists the declared fields. At least one is required.
	Properties []Property

	// Views maps a view name to the columns it exposes.
	Views map[string][]string

	// Table names the column family holding the class. Empty means the
	// tableized class name: "UserProfile" is stored in "user_profiles".
	Table string
}

// Schema is the resolved, immutable form of a Declaration.
type Schema struct {
	class      string
	table      string
	primaryKey []string
	order      []string
	properties map[string]Property
	views      map[string][]string
}

func newSchema(class string, decl Declaration) (*Schema, error) {
	if len(decl.Properties) == 0 {
		return nil, &SchemaError{Class: class, Reason: "no properties declared"}
	}

	s := &Schema{
		class:      class,
		table:      decl.Table,
		properties: make(map[string]Property, len(decl.Properties)),
		views:      make(map[string][]string, len(decl.Views)),
	}
	for _, p := range decl.Properties {
		if p.Name == "" {
			return nil, &SchemaError{Class: class, Reason: "property with empty name"}
		}
		if _, dup := s.properties[p.Name]; !dup {
			s.order = append(s.order, p.Name)
		}
		s.properties[p.Name] = p
	}

	s.primaryKey = slices.Clone(decl.PrimaryKey)
	if len(s.primaryKey) == 0 {
		s.primaryKey = slices.Clone(DefaultPrimaryKey)
	}
	for _, k := range s.primaryKey {
		if _, ok := s.properties[k]; !ok {
			return nil, &SchemaError{Class: class, Reason: fmt.Sprintf("primary key %q is not a declared property", k)}
		}
	}

	for name, cols := range decl.Views {
		s.views[name] = slices.Clone(cols)
	}
	if s.table == "" {
		s.table = Tableize(class)
	}
	return s, nil
}

// Tableize returns the default table name of a class: the last segment of
// a dotted or slashed name, without a "Model_" prefix, snake cased and
// pluralized.
func Tableize(class string) string {
	if i := strings.LastIndexAny(class, `./\`); i >= 0 {
		class = class[i+1:]
	}
	class = strings.TrimPrefix(class, "Model_")
	return strings.ToLower(inflect.Pluralize(inflect.Underscore(class)))
}

// Class returns the class name the schema was resolved for.
func (s *Schema) Class() string { return s.class }

// Table returns the column family holding the class.
func (s *Schema) Table() string { return s.table }

// PrimaryKey returns the key fields in declared order.
func (s *Schema) PrimaryKey() []string { return slices.Clone(s.primaryKey) }

// Properties returns the declared properties in declared order.
func (s *Schema) Properties() []Property {
	props := make([]Property, 0, len(s.order))
	for _, name := range s.order {
		props = append(props, s.properties[name])
	}
	return props
}

// Property returns the settings of a declared property.
func (s *Schema) Property(name string) (Property, bool) {
	p, ok := s.properties[name]
	return p, ok
}

// HasProperty reports whether name is a declared property.
func (s *Schema) HasProperty(name string) bool {
	_, ok := s.properties[name]
	return ok
}

// IsKey reports whether name is one of the primary key fields.
func (s *Schema) IsKey(name string) bool {
	return slices.Contains(s.primaryKey, name)
}

// View returns the columns of a declared view.
func (s *Schema) View(name string) ([]string, bool) {
	cols, ok := s.views[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(cols), true
}

// Views returns the declared view names, sorted.
func (s *Schema) Views() []string {
	names := make([]string, 0, len(s.views))
	for name := range s.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Schema) inView(view, field string) bool {
	if view == "" {
		return false
	}
	return slices.Contains(s.views[view], field)
}

// ComposeKey builds the identity map key for rec.
// A single key field yields its string form; several yield "[v1][v2]...".
// The result is false when any key field is absent or nil.
func (s *Schema) ComposeKey(rec Record) (string, bool) {
	if rec == nil {
		return "", false
	}
	if len(s.primaryKey) == 1 {
		v, ok := rec.Lookup(s.primaryKey[0])
		if !ok || v == nil {
			return "", false
		}
		return keyString(v), true
	}

	var b strings.Builder
	for _, k := range s.primaryKey {
		v, ok := rec.Lookup(k)
		if !ok || v == nil {
			return "", false
		}
		b.WriteByte('[')
		b.WriteString(keyString(v))
		b.WriteByte(']')
	}
	return b.String(), true
}

// SplitKey is the inverse of ComposeKey for a row key: it returns the key
// field values a row key carries, as strings. The result is false when a
// composite row key is not of the form "[v1][v2]..." with one part per
// key field.
func (s *Schema) SplitKey(rowKey string) (Values, bool) {
	if len(s.primaryKey) == 1 {
		return Values{s.primaryKey[0]: rowKey}, true
	}
	if !strings.HasPrefix(rowKey, "[") || !strings.HasSuffix(rowKey, "]") {
		return nil, false
	}
	parts := strings.Split(rowKey[1:len(rowKey)-1], "][")
	if len(parts) != len(s.primaryKey) {
		return nil, false
	}
	values := make(Values, len(parts))
	for i, k := range s.primaryKey {
		values[k] = parts[i]
	}
	return values, true
}

// keyString formats one key value. Floats use plain decimal notation so
// that 1000000.0 and 1000000 share a key.
func keyString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
