// Package events carries post-commit notifications about vendors.
//
// Publishers such as the activity logger and the dispatcher emit
// VendorEvents after their writes are durable. Sinks (the Kafka mirror, the
// human review hook, tests) register EventHandlers with an emitter and never
// participate in the commit itself.
package events
