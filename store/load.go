package store

import (
	"context"
	"fmt"

	"github.com/jacentio/lattice/model"
)

// Load returns the entity of class stored under rowKey. An instance
// already in the registry's identity map is returned without reading the
// store. The row key must be the entity's identity key (see
// model.Schema.SplitKey); key fields missing from the row are taken from it.
func Load(ctx context.Context, cf *ColumnFamily, reg *model.Registry, class, rowKey, view string) (*model.Entity, error) {
	if e, ok := reg.Lookup(class, rowKey); ok {
		return e, nil
	}
	schema, err := reg.Resolve(class)
	if err != nil {
		return nil, err
	}
	row, err := cf.Get(ctx, rowKey, nil)
	if err != nil {
		return nil, err
	}
	return hydrateRow(reg, schema, rowKey, row, view)
}

// LoadMany loads several entities, reading only the rows not already in
// the identity map. Missing rows are skipped. Results follow rowKeys order.
func LoadMany(ctx context.Context, cf *ColumnFamily, reg *model.Registry, class string, rowKeys []string, view string) ([]*model.Entity, error) {
	schema, err := reg.Resolve(class)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, key := range rowKeys {
		if _, ok := reg.Lookup(class, key); !ok {
			missing = append(missing, key)
		}
	}
	rows, err := cf.MultiGet(ctx, missing, nil)
	if err != nil {
		return nil, err
	}

	entities := make([]*model.Entity, 0, len(rowKeys))
	for _, key := range rowKeys {
		if e, ok := reg.Lookup(class, key); ok {
			entities = append(entities, e)
			continue
		}
		row, ok := rows[key]
		if !ok {
			continue
		}
		e, err := hydrateRow(reg, schema, key, row, view)
		if err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", key, err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// LoadClass is Load against the column family named by the class schema.
func LoadClass(ctx context.Context, client *Client, reg *model.Registry, class, rowKey, view string) (*model.Entity, error) {
	schema, err := reg.Resolve(class)
	if err != nil {
		return nil, err
	}
	return Load(ctx, client.ColumnFamily(schema.Table()), reg, class, rowKey, view)
}

// hydrateRow hydrates a row, refusing rows whose key fields do not compose
// back to rowKey, since such an entity could never be found by its row key.
func hydrateRow(reg *model.Registry, schema *model.Schema, rowKey string, row Row, view string) (*model.Entity, error) {
	parts, ok := schema.SplitKey(rowKey)
	if !ok {
		return nil, &model.SchemaError{
			Class:  schema.Class(),
			Reason: fmt.Sprintf("row key %q does not carry primary key %v", rowKey, schema.PrimaryKey()),
		}
	}
	data := model.Values(row.Map())
	for k, v := range parts {
		if cur, ok := data[k]; !ok || cur == nil {
			data[k] = v
		}
	}
	if key, _ := schema.ComposeKey(data); key != rowKey {
		return nil, &model.SchemaError{
			Class:  schema.Class(),
			Reason: fmt.Sprintf("row key %q does not match primary key %q", rowKey, key),
		}
	}
	return reg.Hydrate(schema.Class(), data, view)
}
