package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SuperSeparator joins a super column name and a subcolumn name in the
// column attribute.
const SuperSeparator = "\x1f"

// SuperColumnFamily stores rows of super columns, each a named group of
// subcolumns, in a column family table.
type SuperColumnFamily struct {
	cf *ColumnFamily
}

// Name returns the column family name.
func (s *SuperColumnFamily) Name() string { return s.cf.name }

// Get reads every super column of a row. Returns ErrNotFound when the row
// is empty.
func (s *SuperColumnFamily) Get(ctx context.Context, key string) (map[string]Row, error) {
	row, err := s.cf.Get(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	supers := make(map[string]Row)
	for _, col := range row {
		super, sub, ok := strings.Cut(col.Name, SuperSeparator)
		if !ok {
			continue
		}
		supers[super] = append(supers[super], Column{Name: sub, Value: col.Value})
	}
	if len(supers) == 0 {
		return nil, ErrNotFound
	}
	return supers, nil
}

// GetSuperColumn reads the subcolumns of one super column.
func (s *SuperColumnFamily) GetSuperColumn(ctx context.Context, key, super string) (Row, error) {
	prefix := super + SuperSeparator
	row, err := s.cf.query(ctx, key, "begins_with(#c, :prefix)", map[string]types.AttributeValue{
		":prefix": &types.AttributeValueMemberS{Value: prefix},
	}, true, 0)
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, ErrNotFound
	}
	for i := range row {
		row[i].Name = strings.TrimPrefix(row[i].Name, prefix)
	}
	return row, nil
}

// Insert writes subcolumns grouped by super column name.
func (s *SuperColumnFamily) Insert(ctx context.Context, key string, supers map[string]map[string]any) error {
	columns := make(map[string]any)
	for super, subs := range supers {
		if strings.Contains(super, SuperSeparator) {
			return fmt.Errorf("lattice: super column name %q contains the separator", super)
		}
		for sub, v := range subs {
			columns[super+SuperSeparator+sub] = v
		}
	}
	return s.cf.Insert(ctx, key, columns)
}

// Remove deletes one super column of a row, or the whole row when super
// is empty.
func (s *SuperColumnFamily) Remove(ctx context.Context, key, super string) error {
	if super == "" {
		return s.cf.Remove(ctx, key)
	}
	row, err := s.GetSuperColumn(ctx, key, super)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	names := make([]string, len(row))
	for i, c := range row {
		names[i] = super + SuperSeparator + c.Name
	}
	return s.cf.removeCells(ctx, key, names)
}
