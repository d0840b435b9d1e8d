package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/phrazzld/vendorflow/internal/store"
)

// Store is a mutex-guarded map of collections. Documents are deep-copied on
// every read and write, so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Fields
	newID       func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the generator used by Add.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]store.Fields),
		newID:       store.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.DocumentStore = (*Store)(nil)

// Get implements store.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	clone, err := fields.Clone()
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Fields: clone}, nil
}

// Query implements store.DocumentStore.
func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := make([]store.Document, 0, len(s.collections[collection]))
	for id, fields := range s.collections[collection] {
		if store.Matches(fields, q.Filters) {
			docs = append(docs, store.Document{ID: id, Fields: fields})
		}
	}
	s.mu.RUnlock()

	docs = store.Apply(docs, q)
	out := make([]store.Document, len(docs))
	for i, d := range docs {
		clone, err := d.Fields.Clone()
		if err != nil {
			return nil, err
		}
		out[i] = store.Document{ID: d.ID, Fields: clone}
	}
	return out, nil
}

// Add implements store.DocumentStore.
func (s *Store) Add(ctx context.Context, collection string, fields store.Fields) (string, error) {
	id := s.newID()
	if err := s.Commit(ctx, store.Create(collection, id, fields)); err != nil {
		return "", err
	}
	return id, nil
}

// Put implements store.DocumentStore.
func (s *Store) Put(ctx context.Context, collection, id string, fields store.Fields) error {
	return s.Commit(ctx, store.Create(collection, id, fields))
}

// Update implements store.DocumentStore.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	err := s.Commit(ctx, store.Update(collection, id, fields))
	if store.IsConditionFailed(err) {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return err
}

// UpdateIf implements store.DocumentStore.
func (s *Store) UpdateIf(
	ctx context.Context,
	collection, id string,
	conds []store.Filter,
	fields store.Fields,
) (bool, error) {
	s.mu.RLock()
	_, exists := s.collections[collection][id]
	s.mu.RUnlock()
	if !exists {
		return false, fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}

	err := s.Commit(ctx, store.Update(collection, id, fields, conds...))
	if store.IsConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BatchDelete implements store.DocumentStore.
func (s *Store) BatchDelete(ctx context.Context, collection string, ids []string) error {
	writes := make([]store.Write, len(ids))
	for i, id := range ids {
		writes[i] = store.Delete(collection, id)
	}
	return s.Commit(ctx, writes...)
}

// Commit implements store.DocumentStore. Writes are validated and staged on
// copies first; the collections are swapped in only if every write applies.
func (s *Store) Commit(ctx context.Context, writes ...store.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]map[string]store.Fields)
	stage := func(collection string) map[string]store.Fields {
		if c, ok := staged[collection]; ok {
			return c
		}
		c := make(map[string]store.Fields, len(s.collections[collection]))
		for id, f := range s.collections[collection] {
			c[id] = f
		}
		staged[collection] = c
		return c
	}

	for _, w := range writes {
		if w.ID == "" {
			return fmt.Errorf("%w: %s write without id", store.ErrInvalidEntity, w.Kind)
		}
		c := stage(w.Collection)

		switch w.Kind {
		case store.WriteCreate:
			if _, exists := c[w.ID]; exists {
				return fmt.Errorf("%w: %s/%s", store.ErrDuplicate, w.Collection, w.ID)
			}
			set, _ := store.SplitUpdate(w.Fields)
			clone, err := set.Clone()
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
			}
			c[w.ID] = clone

		case store.WriteUpdate:
			current, exists := c[w.ID]
			if !exists {
				return fmt.Errorf("%w: %s/%s does not exist", store.ErrConditionFailed, w.Collection, w.ID)
			}
			for _, cond := range w.Conditions {
				if err := cond.Validate(); err != nil {
					return err
				}
			}
			if !store.Matches(current, w.Conditions) {
				return fmt.Errorf("%w: %s/%s", store.ErrConditionFailed, w.Collection, w.ID)
			}
			set, remove := store.SplitUpdate(w.Fields)
			patch, err := set.Clone()
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
			}
			next := make(store.Fields, len(current)+len(patch))
			for k, v := range current {
				next[k] = v
			}
			for k, v := range patch {
				next[k] = v
			}
			for _, k := range remove {
				delete(next, k)
			}
			c[w.ID] = next

		case store.WriteDelete:
			delete(c, w.ID)

		default:
			return fmt.Errorf("%w: unknown write kind %d", store.ErrInvalidEntity, w.Kind)
		}
	}

	for collection, c := range staged {
		s.collections[collection] = c
	}
	return nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}
