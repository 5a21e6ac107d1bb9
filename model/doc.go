// Package model is a schema-aware entity layer over rows of a wide-column store.
//
// A class is declared once on a [Registry] and resolved lazily into a [Schema]:
//
//	reg := model.NewRegistry()
//	reg.Declare("User", model.Declaration{
//	    PrimaryKey: []string{"id"},
//	    Properties: []model.Property{
//	        model.Field("id"),
//	        model.FieldDefault("name", "anon"),
//	    },
//	    Views: map[string][]string{"card": {"avatar"}},
//	})
//
// # Entities
//
// [Registry.New] builds a fresh [Entity] from data and declared defaults.
// [Registry.Hydrate] builds one from data read from the store and registers it
// in the identity map, so that every later hydration or [Registry.Lookup] of
// the same class and primary key yields the same instance.
//
// Attribute access is explicit: [Entity.Get], [Entity.Set], [Entity.SetMany],
// [Entity.SetPairs], [Entity.Has] and [Entity.Clear]. Primary key fields are write-once and a
// frozen entity rejects every Set.
//
// # Keys
//
// The identity map key of an entity is also the row key it is stored under:
// the key value itself for a single key field, "[v1][v2]..." for a composite
// key. Floats format in plain decimal, so a numeric id of 1000000 read back
// as either an integer or a float has the key "1000000". [Schema.SplitKey]
// recovers the key fields from a row key.
//
// # Errors
//
//   - [ErrSchema] - class undeclared, without properties, or with a bad key
//   - [ErrNotFound] - field not declared and not visible through the view
//   - [ErrFrozen] - mutation of a frozen entity
//   - [ErrImmutableKey] - overwrite of a set primary key field
//
// The container adapters [Accessor] and [Iterator] turn errors into false
// results; nothing else in the package swallows errors.
//
// # Limits
//
// Schemas and identity maps are never evicted and grow with the registry.
package model
