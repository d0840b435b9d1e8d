// Package api exposes the operator HTTP surface: seeding and inspecting
// vendors, applying lifecycle events, and submitting documents and messages
// for asynchronous processing. Handlers translate requests into
// service.VendorService calls and map domain errors to status codes.
package api
