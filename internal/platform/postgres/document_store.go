package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/phrazzld/vendorflow/internal/store"
)

// DocumentStore implements store.DocumentStore on the documents table.
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

var _ store.DocumentStore = (*DocumentStore)(nil)

// Get implements store.DocumentStore.
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		return store.Document{}, MapError(err)
	}

	fields, err := decode(raw)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Fields: fields}, nil
}

// Query implements store.DocumentStore.
func (s *DocumentStore) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	log := logger.FromContext(ctx)

	query, args, err := selectQuery(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query documents", "collection", collection, "error", err)
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", "error", err)
		}
	}()

	var docs []store.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, MapError(err)
		}
		fields, err := decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return docs, nil
}

// Add implements store.DocumentStore.
func (s *DocumentStore) Add(ctx context.Context, collection string, fields store.Fields) (string, error) {
	id := store.NewID()
	if err := s.Put(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Put implements store.DocumentStore.
func (s *DocumentStore) Put(ctx context.Context, collection, id string, fields store.Fields) error {
	return applyCreate(ctx, s.db, store.Create(collection, id, fields))
}

// Update implements store.DocumentStore.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	n, err := applyUpdate(ctx, s.db, store.Update(collection, id, fields))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return nil
}

// UpdateIf implements store.DocumentStore.
func (s *DocumentStore) UpdateIf(
	ctx context.Context,
	collection, id string,
	conds []store.Filter,
	fields store.Fields,
) (bool, error) {
	n, err := applyUpdate(ctx, s.db, store.Update(collection, id, fields, conds...))
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
		collection, id,
	).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	if !exists {
		return false, fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return false, nil
}

// BatchDelete implements store.DocumentStore.
func (s *DocumentStore) BatchDelete(ctx context.Context, collection string, ids []string) error {
	writes := make([]store.Write, len(ids))
	for i, id := range ids {
		writes[i] = store.Delete(collection, id)
	}
	return s.Commit(ctx, writes...)
}

// Commit implements store.DocumentStore inside a single transaction.
func (s *DocumentStore) Commit(ctx context.Context, writes ...store.Write) error {
	if len(writes) == 0 {
		return nil
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, w := range writes {
			if err := apply(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func apply(ctx context.Context, db store.DBTX, w store.Write) error {
	if w.ID == "" {
		return fmt.Errorf("%w: %s write without id", store.ErrInvalidEntity, w.Kind)
	}
	switch w.Kind {
	case store.WriteCreate:
		return applyCreate(ctx, db, w)
	case store.WriteUpdate:
		n, err := applyUpdate(ctx, db, w)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s/%s", store.ErrConditionFailed, w.Collection, w.ID)
		}
		return nil
	case store.WriteDelete:
		_, err := db.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`, w.Collection, w.ID)
		return MapError(err)
	default:
		return fmt.Errorf("%w: unknown write kind %d", store.ErrInvalidEntity, w.Kind)
	}
}

func applyCreate(ctx context.Context, db store.DBTX, w store.Write) error {
	set, _ := store.SplitUpdate(w.Fields)
	data, err := toJSON(set)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		w.Collection, w.ID, data)
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", w.Collection, w.ID, MapError(err))
	}
	return nil
}

func applyUpdate(ctx context.Context, db store.DBTX, w store.Write) (int64, error) {
	query, args, err := updateQuery(w)
	if err != nil {
		return 0, err
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s/%s: %w", w.Collection, w.ID, MapError(err))
	}
	return rowsAffected(result)
}

func decode(raw []byte) (store.Fields, error) {
	fields := store.Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return fields, nil
}

// Ping verifies connectivity.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
