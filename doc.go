// Package labelledset implements a labelled set: unique values grouped under
// string keys, with lookups in both directions.
//
// Keys are held in a fixed-bucket hash table and values in a binary search
// tree; both resolve to the same *SubSet, so
//
//	set := labelledset.New[string, int](labelledset.Config{})
//	set.Upsert("pumps", 4)
//	set.Lookup("pumps") == set.Owner(4) // true
//
// A value belongs to at most one group at a time. Add and AddSubSet take an
// overwrite flag that decides what happens on collisions; Upsert (merge) and
// ReplaceGroup (destructive replace) name the two usual policies.
//
// The wire messages in this package (AssignMessage, RemoveMessage,
// DropMessage) describe set mutations carried over AMQP.
package labelledset
