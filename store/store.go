package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Compression selects the statement compression. Only CompressionNone is
// supported by the DynamoDB transport.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "NONE"
	case CompressionGzip:
		return "GZIP"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// Rows maps row key to column name to value.
type Rows map[string]map[string]any

// maxBatchWrite is the BatchWriteItem request limit.
const maxBatchWrite = 25

// maxBatchAttempts bounds resubmission of unprocessed batch items.
const maxBatchAttempts = 5

// Client is a connection to one store instance.
type Client struct {
	config  Config
	pool    *Pool
	workers *ants.Pool
	logger  *zap.Logger
}

// New creates a Client over existing connections. A nil logger is
// replaced with a no-op logger.
func New(config Config, conns []API, logger *zap.Logger) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := NewPool(conns)
	if err != nil {
		return nil, err
	}
	workers, err := ants.NewPool(config.Workers, ants.WithPanicHandler(func(p any) {
		logger.Error("worker panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Client{
		config:  config,
		pool:    pool,
		workers: workers,
		logger:  logger.With(zap.String("keyspace", config.Keyspace)),
	}, nil
}

// Open builds one DynamoDB client per configured server and returns a
// Client pooling PoolSize handles to each.
func Open(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKey != "" && config.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	servers := make([]API, 0, len(config.Servers))
	for _, server := range config.Servers {
		servers = append(servers, dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(server)
		}))
	}
	conns := make([]API, 0, len(servers)*config.PoolSize)
	for range config.PoolSize {
		conns = append(conns, servers...)
	}

	client, err := New(config, conns, logger)
	if err != nil {
		return nil, err
	}
	client.logger.Info("store client opened",
		zap.Strings("servers", config.Servers),
		zap.Int("pool_size", config.PoolSize),
	)
	return client, nil
}

// Config returns the validated configuration.
func (c *Client) Config() Config { return c.config }

// Close releases the worker pool. Connections need no teardown.
func (c *Client) Close() {
	c.workers.Release()
}

// withConn borrows a connection for the duration of fn and returns it on
// every exit path.
func (c *Client) withConn(ctx context.Context, fn func(API) error) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer c.pool.Return(conn)
	return fn(conn)
}

// ExecuteQuery runs a PartiQL statement and groups the returned items by
// row key. Wide-row items contribute one column each; any other item
// contributes all of its attributes. Returns nil when nothing matched.
// Transport errors are returned unchanged.
func (c *Client) ExecuteQuery(ctx context.Context, query string, compression Compression) (Rows, error) {
	if compression != CompressionNone {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, compression)
	}

	var rows Rows
	err := c.withConn(ctx, func(api API) error {
		input := &dynamodb.ExecuteStatementInput{Statement: aws.String(query)}
		for {
			out, err := api.ExecuteStatement(ctx, input)
			if err != nil {
				return err
			}
			for _, item := range out.Items {
				key, cols, err := c.decodeItem(item)
				if err != nil {
					return err
				}
				if rows == nil {
					rows = make(Rows)
				}
				row, ok := rows[key]
				if !ok {
					row = make(map[string]any, len(cols))
					rows[key] = row
				}
				for name, v := range cols {
					row[name] = v
				}
			}
			if out.NextToken == nil {
				return nil
			}
			input.NextToken = out.NextToken
		}
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("query executed",
		zap.String("statement", query),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// ColumnFamily returns a handle to the named column family.
func (c *Client) ColumnFamily(name string) *ColumnFamily {
	return &ColumnFamily{
		client: c,
		name:   name,
		table:  c.config.TableName(name),
	}
}

// SuperColumnFamily returns a handle to the named super column family.
func (c *Client) SuperColumnFamily(name string) *SuperColumnFamily {
	return &SuperColumnFamily{cf: c.ColumnFamily(name)}
}

// decodeItem splits an item into its row key and columns.
func (c *Client) decodeItem(item map[string]types.AttributeValue) (string, map[string]any, error) {
	key, err := stringAttr(item, c.config.RowKeyAttribute)
	if err != nil {
		return "", nil, err
	}

	if _, ok := item[c.config.ColumnAttribute]; ok {
		col, err := c.decodeCell(item)
		if err != nil {
			return "", nil, err
		}
		return key, map[string]any{col.Name: col.Value}, nil
	}

	cols := make(map[string]any, len(item))
	for name, av := range item {
		if name == c.config.RowKeyAttribute {
			continue
		}
		v, err := DecodeValue(av)
		if err != nil {
			return "", nil, fmt.Errorf("unmarshal %s: %w", name, err)
		}
		cols[name] = v
	}
	return key, cols, nil
}

// decodeCell reads one wide-row item as a column.
func (c *Client) decodeCell(item map[string]types.AttributeValue) (Column, error) {
	name, err := stringAttr(item, c.config.ColumnAttribute)
	if err != nil {
		return Column{}, err
	}
	var v any
	if av, ok := item[c.config.ValueAttribute]; ok {
		if v, err = DecodeValue(av); err != nil {
			return Column{}, fmt.Errorf("unmarshal column %s: %w", name, err)
		}
	}
	return Column{Name: name, Value: v}, nil
}

// cellItem encodes one column of a row as an item.
func (c *Client) cellItem(key, column string, value any) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal column %s: %w", column, err)
	}
	return map[string]types.AttributeValue{
		c.config.RowKeyAttribute: &types.AttributeValueMemberS{Value: key},
		c.config.ColumnAttribute: &types.AttributeValueMemberS{Value: column},
		c.config.ValueAttribute:  av,
	}, nil
}

// cellKey is the primary key of one column of a row.
func (c *Client) cellKey(key, column string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		c.config.RowKeyAttribute: &types.AttributeValueMemberS{Value: key},
		c.config.ColumnAttribute: &types.AttributeValueMemberS{Value: column},
	}
}

// batchWrite submits requests in chunks, resubmitting unprocessed items.
func (c *Client) batchWrite(ctx context.Context, table string, requests []types.WriteRequest) error {
	return c.withConn(ctx, func(api API) error {
		for start := 0; start < len(requests); start += maxBatchWrite {
			end := min(start+maxBatchWrite, len(requests))
			pending := map[string][]types.WriteRequest{table: requests[start:end]}
			for attempt := 0; len(pending[table]) > 0; attempt++ {
				if attempt == maxBatchAttempts {
					return fmt.Errorf("batch write %s: %d items unprocessed after %d attempts",
						table, len(pending[table]), attempt)
				}
				if attempt > 0 {
					c.logger.Warn("resubmitting unprocessed writes",
						zap.String("table", table),
						zap.Int("items", len(pending[table])),
						zap.Int("attempt", attempt),
					)
				}
				out, err := api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
					RequestItems: pending,
				})
				if err != nil {
					return err
				}
				pending = out.UnprocessedItems
			}
		}
		return nil
	})
}

// DecodeValue converts an attribute value to a Go value. Numbers become
// int64 when integral and in range, float64 otherwise, so that ids keep
// their decimal form. Lists, maps and number sets are converted
// recursively; everything else decodes as attributevalue.Unmarshal does.
func DecodeValue(av types.AttributeValue) (any, error) {
	var v any
	if err := numberDecoder.Decode(av, &v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

var numberDecoder = attributevalue.NewDecoder(func(o *attributevalue.DecoderOptions) {
	o.UseNumber = true
})

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case attributevalue.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []attributevalue.Number:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = normalizeNumbers(n)
		}
		return out
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	}
	return v
}

// stringAttr reads a string or number attribute as a string.
func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	switch v := item[name].(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case nil:
		return "", fmt.Errorf("lattice: item has no %q attribute", name)
	default:
		return "", fmt.Errorf("lattice: attribute %q is %T, want string", name, v)
	}
}
