// Package dynamo implements store.DocumentStore on Amazon DynamoDB.
//
// All collections share one table with a string partition key (the
// collection) and a string sort key (the document id). Document fields are
// kept under a single map attribute. Conditional writes compile to
// ConditionExpressions, Commit uses TransactWriteItems, and queries read the
// collection partition and evaluate filters and ordering client-side.
package dynamo
