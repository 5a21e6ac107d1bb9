package store

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when required connection parameters are missing.
	ErrConfig = errors.New("lattice: invalid store configuration")

	// ErrNotFound is returned when a row has no columns in the requested range.
	ErrNotFound = errors.New("lattice: row not found")

	// ErrUnsupportedCompression is returned for any compression other than CompressionNone.
	ErrUnsupportedCompression = errors.New("lattice: unsupported compression")

	// ErrEmptyClause is returned for an index clause without expressions.
	ErrEmptyClause = errors.New("lattice: index clause has no expressions")
)

// ConfigError reports which connection parameter is unusable.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("lattice: config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
