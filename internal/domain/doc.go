// Package domain contains the core business entities of vendor onboarding:
// vendors and their lifecycle statuses, the asynchronous tasks processed
// against them, and the append-only activity entries that audit both.
// It is independent of any specific storage engine or delivery mechanism.
package domain
