package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is returned when a class cannot be resolved into a usable schema.
	ErrSchema = errors.New("lattice: invalid schema")

	// ErrNotFound is returned when a field is neither a declared property nor visible through the active view.
	ErrNotFound = errors.New("lattice: property not found")

	// ErrFrozen is returned when a frozen entity is mutated.
	ErrFrozen = errors.New("lattice: entity is frozen")

	// ErrImmutableKey is returned when an already-set primary key field is overwritten.
	ErrImmutableKey = errors.New("lattice: primary key cannot be changed")
)

// SchemaError reports why a class could not be resolved.
type SchemaError struct {
	Class  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("lattice: schema %s: %s", e.Class, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// NotFoundError reports access to an unknown field.
type NotFoundError struct {
	Class string
	Field string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lattice: property %q not found for %s", e.Field, e.Class)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FrozenError reports a mutation attempt on a frozen entity.
type FrozenError struct {
	Class string
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("lattice: %s is frozen, no changes allowed", e.Class)
}

func (e *FrozenError) Is(target error) bool {
	return target == ErrFrozen
}

// ImmutableKeyError reports an attempt to overwrite a set primary key field.
type ImmutableKeyError struct {
	Class string
	Field string
}

func (e *ImmutableKeyError) Error() string {
	return fmt.Sprintf("lattice: primary key %q of %s cannot be changed", e.Field, e.Class)
}

func (e *ImmutableKeyError) Is(target error) bool {
	return target == ErrImmutableKey
}
