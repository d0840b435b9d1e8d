package store

// WriteKind identifies the mutation performed by a Write.
type WriteKind int

// Write kinds.
const (
	// WriteCreate inserts a new document; it fails with ErrDuplicate if the id exists.
	WriteCreate WriteKind = iota
	// WriteUpdate merges fields into an existing document.
	WriteUpdate
	// WriteDelete removes a document. Deleting a missing document is not an error.
	WriteDelete
)

// String returns a readable name for the kind.
func (k WriteKind) String() string {
	switch k {
	case WriteCreate:
		return "create"
	case WriteUpdate:
		return "update"
	case WriteDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Write is one mutation inside an atomic Commit.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Fields     Fields
	// Conditions must hold on the current document for an update to apply.
	Conditions []Filter
}

// Create builds a create write. An empty id is replaced with NewID.
func Create(collection, id string, fields Fields) Write {
	if id == "" {
		id = NewID()
	}
	return Write{Kind: WriteCreate, Collection: collection, ID: id, Fields: fields}
}

// Update builds an update write guarded by optional conditions.
func Update(collection, id string, fields Fields, conds ...Filter) Write {
	return Write{Kind: WriteUpdate, Collection: collection, ID: id, Fields: fields, Conditions: conds}
}

// Delete builds a delete write.
func Delete(collection, id string) Write {
	return Write{Kind: WriteDelete, Collection: collection, ID: id}
}
