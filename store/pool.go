package store

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// API is the subset of the DynamoDB client the store uses.
// *dynamodb.Client satisfies it.
type API interface {
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Pool hands out connections one borrower at a time. Every Get must be
// paired with a Return.
type Pool struct {
	conns chan API
	size  int
}

// NewPool creates a pool over conns. A connection listed twice may be
// borrowed twice concurrently.
func NewPool(conns []API) (*Pool, error) {
	if len(conns) == 0 {
		return nil, errors.New("lattice: pool needs at least one connection")
	}
	p := &Pool{
		conns: make(chan API, len(conns)),
		size:  len(conns),
	}
	for _, c := range conns {
		p.conns <- c
	}
	return p, nil
}

// Get borrows a connection, waiting until one is free or ctx is done.
func (p *Pool) Get(ctx context.Context) (API, error) {
	select {
	case c := <-p.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return gives a borrowed connection back.
func (p *Pool) Return(c API) {
	if c == nil {
		return
	}
	select {
	case p.conns <- c:
	default:
		// More returns than borrows; drop the extra.
	}
}

// Size returns the number of connections the pool was built with.
func (p *Pool) Size() int { return p.size }

// Idle returns the number of connections currently not borrowed.
func (p *Pool) Idle() int { return len(p.conns) }
