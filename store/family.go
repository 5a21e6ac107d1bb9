package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Column is one named value of a row.
type Column struct {
	Name  string
	Value any
}

// Row is a row's columns in column-name order.
type Row []Column

// Map returns the row as column name to value.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, c := range r {
		m[c.Name] = c.Value
	}
	return m
}

// Names returns the column names in row order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

// ColumnFamily reads and writes the rows of one table.
type ColumnFamily struct {
	client *Client
	name   string
	table  string
}

// Name returns the column family name.
func (cf *ColumnFamily) Name() string { return cf.name }

// Table returns the backing table name.
func (cf *ColumnFamily) Table() string { return cf.table }

// Get reads a row. A nil slice reads every column. Returns ErrNotFound when
// no column is in range.
func (cf *ColumnFamily) Get(ctx context.Context, key string, slice *ColumnSlice) (Row, error) {
	cond, values := "", map[string]types.AttributeValue{}
	forward, limit := true, 0
	if slice != nil {
		cond, values = sliceCondition(slice)
		forward, limit = !slice.Reversed, slice.Count
	}
	row, err := cf.query(ctx, key, cond, values, forward, limit)
	if err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, ErrNotFound
	}
	return row, nil
}

// MultiGet reads several rows concurrently. Rows without columns are
// omitted from the result.
func (cf *ColumnFamily) MultiGet(ctx context.Context, keys []string, slice *ColumnSlice) (map[string]Row, error) {
	rows := make(map[string]Row, len(keys))
	if len(keys) == 0 {
		return rows, nil
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = make(chan error, len(keys))
	)
	for _, key := range keys {
		wg.Add(1)
		err := cf.client.workers.Submit(func() {
			defer wg.Done()
			row, err := cf.Get(ctx, key, slice)
			if errors.Is(err, ErrNotFound) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("get %s: %w", key, err)
				return
			}
			mu.Lock()
			rows[key] = row
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			errs <- fmt.Errorf("submit %s: %w", key, err)
		}
	}
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return nil, err
	}
	return rows, nil
}

// Insert writes columns into a row, replacing existing values.
func (cf *ColumnFamily) Insert(ctx context.Context, key string, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	names := sortedNames(columns)
	requests := make([]types.WriteRequest, 0, len(names))
	for _, name := range names {
		item, err := cf.client.cellItem(key, name, columns[name])
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}
	return cf.client.batchWrite(ctx, cf.table, requests)
}

// Remove deletes the named columns of a row, or the whole row when no
// column is named. Removing a missing row is not an error.
func (cf *ColumnFamily) Remove(ctx context.Context, key string, columns ...string) error {
	if len(columns) == 0 {
		row, err := cf.Get(ctx, key, nil)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		columns = row.Names()
	}
	return cf.removeCells(ctx, key, columns)
}

func (cf *ColumnFamily) removeCells(ctx context.Context, key string, columns []string) error {
	requests := make([]types.WriteRequest, 0, len(columns))
	for _, name := range columns {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: cf.client.cellKey(key, name)},
		})
	}
	return cf.client.batchWrite(ctx, cf.table, requests)
}

// GetIndexedSlices returns the rows matching every expression of the
// clause, in row-key order starting at clause.StartKey, each read with
// slice.
func (cf *ColumnFamily) GetIndexedSlices(ctx context.Context, clause IndexClause, slice *ColumnSlice) (map[string]Row, error) {
	if len(clause.Expressions) == 0 {
		return nil, ErrEmptyClause
	}

	var matched map[string]struct{}
	for _, expr := range clause.Expressions {
		keys, err := cf.matchingKeys(ctx, expr, clause.StartKey)
		if err != nil {
			return nil, err
		}
		if matched == nil {
			matched = keys
			continue
		}
		for k := range matched {
			if _, ok := keys[k]; !ok {
				delete(matched, k)
			}
		}
	}

	keys := sortedNames(matched)
	if clause.Count > 0 && len(keys) > clause.Count {
		keys = keys[:clause.Count]
	}

	cf.client.logger.Debug("index scan",
		zap.String("table", cf.table),
		zap.Int("expressions", len(clause.Expressions)),
		zap.Int("rows", len(keys)),
	)
	return cf.MultiGet(ctx, keys, slice)
}

// matchingKeys scans for rows holding a column that satisfies expr.
func (cf *ColumnFamily) matchingKeys(ctx context.Context, expr IndexExpression, startKey string) (map[string]struct{}, error) {
	value, err := attributevalue.Marshal(expr.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal index value for %s: %w", expr.Column, err)
	}

	filter := fmt.Sprintf("#c = :c AND #v %s :v", expr.Op.symbol())
	values := map[string]types.AttributeValue{
		":c": &types.AttributeValueMemberS{Value: expr.Column},
		":v": value,
	}
	if startKey != "" {
		filter += " AND #k >= :start"
		values[":start"] = &types.AttributeValueMemberS{Value: startKey}
	}

	cfg := cf.client.config
	keys := make(map[string]struct{})
	err = cf.client.withConn(ctx, func(api API) error {
		paginator := dynamodb.NewScanPaginator(api, &dynamodb.ScanInput{
			TableName:            aws.String(cf.table),
			FilterExpression:     aws.String(filter),
			ProjectionExpression: aws.String("#k"),
			ExpressionAttributeNames: map[string]string{
				"#k": cfg.RowKeyAttribute,
				"#c": cfg.ColumnAttribute,
				"#v": cfg.ValueAttribute,
			},
			ExpressionAttributeValues: values,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, item := range page.Items {
				key, err := stringAttr(item, cfg.RowKeyAttribute)
				if err != nil {
					return err
				}
				keys[key] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// query reads the columns of one row matching an optional sort-key
// condition. limit <= 0 reads every match.
func (cf *ColumnFamily) query(ctx context.Context, key, cond string, values map[string]types.AttributeValue, forward bool, limit int) (Row, error) {
	cfg := cf.client.config
	keyCond := "#k = :k"
	names := map[string]string{"#k": cfg.RowKeyAttribute}
	if cond != "" {
		keyCond += " AND " + cond
		names["#c"] = cfg.ColumnAttribute
	}
	exprValues := map[string]types.AttributeValue{
		":k": &types.AttributeValueMemberS{Value: key},
	}
	for k, v := range values {
		exprValues[k] = v
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(cf.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: exprValues,
		ScanIndexForward:          aws.Bool(forward),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var row Row
	err := cf.client.withConn(ctx, func(api API) error {
		paginator := dynamodb.NewQueryPaginator(api, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, item := range page.Items {
				col, err := cf.client.decodeCell(item)
				if err != nil {
					return err
				}
				row = append(row, col)
				if limit > 0 && len(row) == limit {
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// sliceCondition returns the sort-key condition for a column range.
func sliceCondition(s *ColumnSlice) (string, map[string]types.AttributeValue) {
	lo, hi := s.Start, s.Finish
	if s.Reversed {
		lo, hi = hi, lo
	}
	values := map[string]types.AttributeValue{}
	switch {
	case lo != "" && hi != "":
		values[":lo"] = &types.AttributeValueMemberS{Value: lo}
		values[":hi"] = &types.AttributeValueMemberS{Value: hi}
		return "#c BETWEEN :lo AND :hi", values
	case lo != "":
		values[":lo"] = &types.AttributeValueMemberS{Value: lo}
		return "#c >= :lo", values
	case hi != "":
		values[":hi"] = &types.AttributeValueMemberS{Value: hi}
		return "#c <= :hi", values
	}
	return "", values
}

// sortedNames returns the keys of m in ascending order.
func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
