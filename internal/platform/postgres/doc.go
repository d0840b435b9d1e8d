// Package postgres implements store.DocumentStore on PostgreSQL.
//
// Documents live in a single jsonb-backed table keyed by (collection, id).
// Filters compile to jsonb operators, and Commit runs every write inside one
// database transaction. The schema is managed with goose migrations embedded
// in this package.
package postgres
