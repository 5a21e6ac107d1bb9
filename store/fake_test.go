package store

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeDynamo is an in-memory wide-row table set understanding the
// expressions the store builds.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]map[string]types.AttributeValue

	err         error
	pages       []*dynamodb.ExecuteStatementOutput
	statements  []*dynamodb.ExecuteStatementInput
	unprocessed int
	batchCalls  int
	queries     int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string]map[string]map[string]map[string]types.AttributeValue)}
}

func newTestClient(t *testing.T) (*Client, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	cfg := DefaultConfig()
	cfg.Keyspace = "app"
	cfg.Servers = []string{"http://localhost:8000"}
	client, err := New(cfg, []API{fake, fake}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, fake
}

func sAttr(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) ExecuteStatement(_ context.Context, in *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *in
	f.statements = append(f.statements, &cp)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return &dynamodb.ExecuteStatementOutput{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.err != nil {
		return nil, f.err
	}

	vals := in.ExpressionAttributeValues
	key := sAttr(vals[":k"])
	row := f.tables[aws.ToString(in.TableName)][key]
	cond := aws.ToString(in.KeyConditionExpression)

	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	slices.Sort(names)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		slices.Reverse(names)
	}

	var matched []string
	for _, name := range names {
		if matchSortKey(cond, vals, name) {
			matched = append(matched, name)
		}
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		start = slices.Index(matched, sAttr(in.ExclusiveStartKey["column"])) + 1
	}
	end := len(matched)
	out := &dynamodb.QueryOutput{}
	if in.Limit != nil && start+int(*in.Limit) < end {
		end = start + int(*in.Limit)
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"key":    &types.AttributeValueMemberS{Value: key},
			"column": &types.AttributeValueMemberS{Value: matched[end-1]},
		}
	}
	for _, name := range matched[start:end] {
		out.Items = append(out.Items, row[name])
	}
	return out, nil
}

func matchSortKey(cond string, vals map[string]types.AttributeValue, name string) bool {
	switch {
	case strings.Contains(cond, "BETWEEN"):
		return name >= sAttr(vals[":lo"]) && name <= sAttr(vals[":hi"])
	case strings.Contains(cond, ">= :lo"):
		return name >= sAttr(vals[":lo"])
	case strings.Contains(cond, "<= :hi"):
		return name <= sAttr(vals[":hi"])
	case strings.Contains(cond, "begins_with"):
		return strings.HasPrefix(name, sAttr(vals[":prefix"]))
	}
	return true
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	filter := aws.ToString(in.FilterExpression)
	vals := in.ExpressionAttributeValues
	column := sAttr(vals[":c"])
	op := strings.TrimSpace(filter[strings.Index(filter, "#v ")+3 : strings.Index(filter, " :v")])
	startKey, hasStart := vals[":start"]

	out := &dynamodb.ScanOutput{}
	for key, row := range f.tables[aws.ToString(in.TableName)] {
		item, ok := row[column]
		if !ok {
			continue
		}
		if hasStart && key < sAttr(startKey) {
			continue
		}
		if compareAttr(item["value"], vals[":v"], op) {
			out.Items = append(out.Items, map[string]types.AttributeValue{
				"key": &types.AttributeValueMemberS{Value: key},
			})
		}
	}
	return out, nil
}

func compareAttr(a, b types.AttributeValue, op string) bool {
	var cmp int
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		x, _ := strconv.ParseFloat(av.Value, 64)
		y, _ := strconv.ParseFloat(bv.Value, 64)
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		cmp = strings.Compare(av.Value, bv.Value)
	default:
		return false
	}
	switch op {
	case "=":
		return cmp == 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}
	for _, reqs := range in.RequestItems {
		if len(reqs) > maxBatchWrite {
			return nil, errors.New("too many items in batch")
		}
	}
	if f.unprocessed > 0 {
		f.unprocessed--
		return &dynamodb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
	}

	for table, reqs := range in.RequestItems {
		for _, req := range reqs {
			switch {
			case req.PutRequest != nil:
				f.put(table, req.PutRequest.Item)
			case req.DeleteRequest != nil:
				key := sAttr(req.DeleteRequest.Key["key"])
				row := f.tables[table][key]
				delete(row, sAttr(req.DeleteRequest.Key["column"]))
				if len(row) == 0 {
					delete(f.tables[table], key)
				}
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *fakeDynamo) put(table string, item map[string]types.AttributeValue) {
	rows, ok := f.tables[table]
	if !ok {
		rows = make(map[string]map[string]map[string]types.AttributeValue)
		f.tables[table] = rows
	}
	key := sAttr(item["key"])
	row, ok := rows[key]
	if !ok {
		row = make(map[string]map[string]types.AttributeValue)
		rows[key] = row
	}
	row[sAttr(item["column"])] = item
}
