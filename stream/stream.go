// Package stream keeps hydrated entities in step with row changes arriving
// on DynamoDB Streams.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/store"
)

// Handler applies stream records to entities already in a registry's
// identity map. Rows that were never loaded are ignored.
type Handler struct {
	registry *model.Registry
	bindings map[string]string
	keyspace string
	config   store.Config
	logger   *zap.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithAttributes sets the wide-row attribute names to match a store
// config. Defaults to store.DefaultConfig.
func WithAttributes(cfg store.Config) Option {
	return func(h *Handler) {
		if cfg.RowKeyAttribute != "" {
			h.config.RowKeyAttribute = cfg.RowKeyAttribute
		}
		if cfg.ColumnAttribute != "" {
			h.config.ColumnAttribute = cfg.ColumnAttribute
		}
		if cfg.ValueAttribute != "" {
			h.config.ValueAttribute = cfg.ValueAttribute
		}
	}
}

// WithKeyspace binds every table "<keyspace>.<table>" to the registry
// class whose schema names that table. Explicit bindings take precedence.
func WithKeyspace(keyspace string) Option {
	return func(h *Handler) { h.keyspace = keyspace }
}

// NewHandler creates a handler. bindings maps table names to the entity
// class hydrated from each table.
func NewHandler(reg *model.Registry, bindings map[string]string, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := make(map[string]string, len(bindings))
	for table, class := range bindings {
		b[table] = class
	}
	h := &Handler{
		registry: reg,
		bindings: b,
		config:   store.DefaultConfig(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRowChanges applies every record of a stream event. It is designed
// to be used as an AWS Lambda handler; a returned error makes Lambda retry
// the batch.
func (h *Handler) HandleRowChanges(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.processRecord(record); err != nil {
			h.logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

// processRecord reloads the cached entity a record refers to, if any.
func (h *Handler) processRecord(record events.DynamoDBEventRecord) error {
	table := TableFromARN(record.EventSourceArn)
	class, ok := h.classFor(table)
	if !ok {
		return nil
	}

	rowKey := getStringAttr(record.Change.Keys, h.config.RowKeyAttribute)
	if rowKey == "" {
		return fmt.Errorf("record %s: no %q key attribute", record.EventID, h.config.RowKeyAttribute)
	}

	e, ok := h.registry.Lookup(class, rowKey)
	if !ok {
		return nil
	}

	values, err := h.changedValues(record)
	if err != nil {
		return fmt.Errorf("record %s: %w", record.EventID, err)
	}
	if len(values) == 0 {
		return nil
	}

	if err := e.Reload(values); err != nil {
		if errors.Is(err, model.ErrFrozen) {
			h.logger.Warn("skipping change to frozen entity",
				zap.String("class", class),
				zap.String("key", rowKey),
			)
			return nil
		}
		return fmt.Errorf("reload %s %s: %w", class, rowKey, err)
	}

	h.logger.Debug("entity reloaded",
		zap.String("class", class),
		zap.String("key", rowKey),
		zap.String("event", record.EventName),
		zap.Int("fields", len(values)),
	)
	return nil
}

// classFor returns the class bound to a table.
func (h *Handler) classFor(table string) (string, bool) {
	if class, ok := h.bindings[table]; ok {
		return class, true
	}
	if h.keyspace == "" {
		return "", false
	}
	family, ok := strings.CutPrefix(table, h.keyspace+".")
	if !ok {
		return "", false
	}
	for _, class := range h.registry.Classes() {
		s, err := h.registry.Resolve(class)
		if err != nil {
			continue
		}
		if s.Table() == family {
			return class, true
		}
	}
	return "", false
}

// changedValues returns the fields a record sets, with nil for removed
// ones. A wide-row record carries a single column; any other record
// carries a whole item.
func (h *Handler) changedValues(record events.DynamoDBEventRecord) (model.Values, error) {
	removed := events.DynamoDBOperationType(record.EventName) == events.DynamoDBOperationTypeRemove
	column := getStringAttr(record.Change.Keys, h.config.ColumnAttribute)

	if column != "" {
		if strings.Contains(column, store.SuperSeparator) {
			return nil, nil
		}
		if removed {
			return model.Values{column: nil}, nil
		}
		av, ok := record.Change.NewImage[h.config.ValueAttribute]
		if !ok {
			return model.Values{column: nil}, nil
		}
		v, err := decode(av)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", column, err)
		}
		return model.Values{column: v}, nil
	}

	image := record.Change.NewImage
	if removed {
		image = record.Change.OldImage
	}
	values := make(model.Values, len(image))
	for name, av := range image {
		if name == h.config.RowKeyAttribute {
			continue
		}
		if removed {
			values[name] = nil
			continue
		}
		v, err := decode(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}

// TableFromARN returns the table name of a stream or table ARN such as
// arn:aws:dynamodb:us-east-1:123456789012:table/app.users/stream/2024-01-01T00:00:00.000.
func TableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	table, _, _ := strings.Cut(rest, "/")
	return table
}

// decode converts a stream attribute to the Go value the store reads for
// the same attribute.
func decode(av events.DynamoDBAttributeValue) (any, error) {
	return store.DecodeValue(ConvertAttribute(av))
}

// getStringAttr extracts a string or number attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	v, ok := image[key]
	if !ok {
		return ""
	}
	switch v.DataType() {
	case events.DataTypeString:
		return v.String()
	case events.DataTypeNumber:
		return v.Number()
	}
	return ""
}

// ConvertStreamImage converts a DynamoDB stream image to SDK attribute values.
func ConvertStreamImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		result[k] = ConvertAttribute(v)
	}
	return result
}

// ConvertAttribute converts one stream attribute to an SDK attribute value.
func ConvertAttribute(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			list = append(list, ConvertAttribute(item))
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertStreamImage(v.Map())}
	default:
		return &types.AttributeValueMemberNULL{Value: true}
	}
}
