package store

import "context"

// DocumentStore is the persistence engine consumed by the queue, the
// dispatcher, and administrative operations.
// Version: 1.0
type DocumentStore interface {
	// Get returns the document with the given id.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns the documents matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Add inserts a document under a store-generated id and returns the id.
	Add(ctx context.Context, collection string, fields Fields) (string, error)

	// Put inserts a document under an explicit id.
	// Returns ErrDuplicate if the id is taken.
	Put(ctx context.Context, collection, id string, fields Fields) error

	// Update merges fields into an existing document. A DeleteField value
	// removes the key. Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields Fields) error

	// UpdateIf applies the update only when every condition holds on the
	// current document. It returns false, without error, when a condition
	// fails, and ErrNotFound when the document does not exist.
	UpdateIf(ctx context.Context, collection, id string, conds []Filter, fields Fields) (bool, error)

	// BatchDelete removes all listed documents atomically. Missing ids are ignored.
	BatchDelete(ctx context.Context, collection string, ids []string) error

	// Commit applies every write atomically: either all take effect or none do.
	// Returns ErrConditionFailed if a guarded update does not hold or targets a
	// missing document, and ErrDuplicate if a create collides.
	Commit(ctx context.Context, writes ...Write) error
}
