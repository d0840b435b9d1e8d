// Package activity maintains the append-only audit trail of vendor activity.
//
// Entries are written either on their own with Append or as part of a larger
// atomic commit through EntryWrite. Once a commit is durable the entries are
// published as activity.appended events.
package activity
