/*
Package filter turns declarative where clauses into a combinator tree.

The tree is built once from a flat clause list and handed to backends, which
translate it into their native query language (DynamoDB condition
expressions, SQLite JSON1 predicates) or evaluate it in memory with Match:

	node, err := filter.Combined(&storagemodels.CombinedWhere{
	    Type: storagemodels.CombineAndOr,
	    Parameter: clauses,
	})
	// node == And{a == 1, Or{b == 2, c == 3}}

Values are normalized to their JSON shapes (float64 numbers, []any lists,
map[string]any objects), so comparisons behave the same whether a document
was written by Go code or decoded from a store.
*/
package filter
