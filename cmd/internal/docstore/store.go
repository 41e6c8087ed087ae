package docstore

import "context"

// Store is the document store boundary used by every feature package.
//
// Requirements:
//   - Add assigns a fresh, lexicographically time-ordered id.
//   - Create is a conditional insert: it fails with ErrAlreadyExists instead of overwriting.
//   - Update merges top-level fields and bumps Rev; it fails with ErrNotFound on a missing doc.
//   - Query and Subscribe results honor the query order, ties broken by insertion order.
//   - Subscribe delivers the initial snapshot asynchronously and one snapshot per
//     observable change until the returned Unsubscribe is called.
type Store interface {
	Add(ctx context.Context, collection string, data Fields) (string, error)
	Create(ctx context.Context, collection, id string, data Fields) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error)
	Close() error
}
