/*
Package datastore defines the contract between the document store and the
external store that holds the data.

The main interface is Backend, the primitive per-collection operations:

	type Backend interface {
	    Get(ctx context.Context, collection, id string) (*Record, error)
	    Query(ctx context.Context, collection string, q Query) ([]Record, error)
	    Count(ctx context.Context, collection string, f filter.Node) (int64, error)
	    Create(ctx context.Context, collection string, data map[string]any) (string, error)
	    Set(ctx context.Context, collection, id string, data map[string]any) error
	    Update(ctx context.Context, collection, id string, data map[string]any) error
	    Delete(ctx context.Context, collection, id string) error
	    Increment(ctx context.Context, collection, id, field string, delta float64) error
	    Watch(ctx context.Context, collection, id string, fn ChangeFunc) (storagemodels.Subscription, error)
	    Close() error
	}

Backends may also implement BatchWriter for atomic multi-document writes.

Implementations:
  - ddb: DynamoDB, one partition per collection, change notification over DynamoDB Streams
  - sqlite: SQLite with JSON1 filters
  - mock: in-memory implementation for testing
*/
package datastore
