// Package app assembles the vendor workflow from configuration: the document
// store, task queue, handlers, dispatcher, reaper, and the operator service.
// Both the dispatcher server and the vendorctl CLI build on it.
package app
