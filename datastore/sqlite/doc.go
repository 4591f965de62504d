/*
Package sqlite provides a SQLite implementation of datastore.Backend and
datastore.BatchWriter using mattn/go-sqlite3 and the JSON1 functions.

	backend, err := sqlite.Open("data/store.db")
	if err != nil {
	    return err
	}
	defer backend.Close()

Comparisons are type strict like the in-memory matcher: a number never
equals a string and booleans are distinct from 0 and 1. Filters that SQL
cannot express exactly (equality on lists or objects, keys containing
quotes) fall back to an in-memory scan of the collection.

Ordering by a list valued field ties the lists and sorts them by id.

Watch only reports changes made through the same Backend value.
*/
package sqlite
