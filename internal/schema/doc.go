// Package schema declares the static shape of the backup database the
// merge engine knows how to reconcile: each table's primary key, its
// alternative semantic-identity rules, its foreign keys, and its position
// in the foreign-key dependency order.
//
// Nothing in this package touches a database connection. It is read by
// the Location merger and the generic row merger to decide how a table's
// rows are compared and rewritten; tables absent from the catalogue fall
// back to a generic row-content identity rule.
package schema
