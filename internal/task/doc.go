// Package task implements the vendor task queue and the dispatcher that
// executes it.
//
// Tasks are documents in the tasks collection. The Queue moves them
// between statuses with conditional writes, so a claim has exactly one
// winner. The Dispatcher fetches due tasks, leases the vendor, claims the
// task, and runs the registered Handler under a timeout. A handler never
// writes to the store; it returns an Outcome whose Effects the dispatcher
// commits atomically with the vendor transition, the activity entries, any
// follow-up tasks, and the task completion. The Reaper returns claims left
// behind by crashed workers.
package task
