// Package memory provides an in-process store.DocumentStore. It serves local
// development, single-node deployments, and tests across the module.
package memory
