package store

import (
	"time"

	"github.com/google/uuid"
)

// DefaultColumnCount is the column limit of a slice built with count <= 0.
const DefaultColumnCount = 100

// DefaultRowCount is the row limit of an index clause built with count <= 0.
const DefaultRowCount = 100

// ColumnSlice restricts a row read to a range of column names.
// Empty Start or Finish leaves that end open. With Reversed set, columns
// come back in descending order and Start is the upper bound.
type ColumnSlice struct {
	Start    string
	Finish   string
	Count    int
	Reversed bool
}

// NewColumnSlice builds a column range.
func NewColumnSlice(start, finish string, count int, reversed bool) *ColumnSlice {
	if count <= 0 {
		count = DefaultColumnCount
	}
	return &ColumnSlice{Start: start, Finish: finish, Count: count, Reversed: reversed}
}

// IndexOperator compares a column value in an index expression.
type IndexOperator string

const (
	OpEQ  IndexOperator = "EQ"
	OpGT  IndexOperator = "GT"
	OpGTE IndexOperator = "GTE"
	OpLT  IndexOperator = "LT"
	OpLTE IndexOperator = "LTE"
)

// symbol returns the DynamoDB comparator for op. Unknown operators compare
// for equality.
func (op IndexOperator) symbol() string {
	switch op {
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	default:
		return "="
	}
}

// IndexExpression matches rows whose Column compares to Value under Op.
type IndexExpression struct {
	Column string
	Value  any
	Op     IndexOperator
}

// NewIndexExpression builds an expression. An empty op means OpEQ.
func NewIndexExpression(column string, value any, op IndexOperator) IndexExpression {
	if op == "" {
		op = OpEQ
	}
	return IndexExpression{Column: column, Value: value, Op: op}
}

// IndexClause selects rows matching every expression, starting at
// StartKey and returning at most Count rows.
type IndexClause struct {
	Expressions []IndexExpression
	StartKey    string
	Count       int
}

// NewIndexClause builds a clause.
func NewIndexClause(expressions []IndexExpression, startKey string, count int) IndexClause {
	if count <= 0 {
		count = DefaultRowCount
	}
	return IndexClause{Expressions: expressions, StartKey: startKey, Count: count}
}

// NewTimeOrderedID returns a version 1 UUID, which sorts by creation time
// within one node.
func NewTimeOrderedID() (uuid.UUID, error) {
	return uuid.NewUUID()
}

// TimeOf returns the creation time embedded in a version 1 UUID. Other
// versions yield the zero time.
func TimeOf(id uuid.UUID) time.Time {
	if id.Version() != 1 {
		return time.Time{}
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec)
}
