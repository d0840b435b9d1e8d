// Package store defines the document store abstraction consumed by the
// task queue, dispatcher, and administrative operations.
//
// A DocumentStore keeps schemaless documents grouped into collections and
// offers point lookups, filtered queries, partial updates, conditional
// updates, batch deletes, and an atomic multi-document Commit. Engines live
// under internal/platform. The package also holds the codecs that map
// vendors, tasks, and activities onto their persisted field layouts.
package store
