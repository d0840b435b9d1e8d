// Package testdb provides a migrated PostgreSQL database for integration
// tests. A database URL from the environment is used when set, which is how
// CI supplies one; otherwise a disposable container is started.
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.Reset(t, db)
//	    ...
//	}
package testdb
