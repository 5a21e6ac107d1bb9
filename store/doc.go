// Package store is the wide-row store client behind lattice entities.
//
// Rows live in DynamoDB tables named "<keyspace>.<column family>". Each
// item holds one cell of a row:
//
//	key (partition key)  column (sort key)  value
//
// so a row is read with a single Query and its columns come back in
// column-name order. Super column families encode "super\x1fsub" in the
// sort key.
//
// # Connecting
//
//	cfg := store.DefaultConfig()
//	cfg.Keyspace = "app"
//	cfg.Servers = []string{"http://localhost:8000"}
//	client, err := store.Open(ctx, cfg, logger)
//	defer client.Close()
//
// Connections are borrowed from a [Pool] for every call and returned on
// all exit paths. [Clients] keeps one lazily opened [Client] per named
// instance.
//
// # Reading entities
//
// [Load] and [LoadMany] hydrate rows through a [model.Registry], consulting
// its identity map first so a row is read at most once per registry.
//
// # Errors
//
//   - [ErrConfig] - keyspace or servers missing, or unknown instance name
//   - [ErrNotFound] - row has no columns in range
//   - [ErrUnsupportedCompression] - statement compression other than none
//   - [ErrEmptyClause] - index clause without expressions
//
// Transport errors from DynamoDB are returned unchanged.
package store
