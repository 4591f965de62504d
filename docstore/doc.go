/*
Package docstore is the uniform data access layer over one collection of an
external document store.

A DocumentStore translates declarative arguments (where clause batches, an
order field, a cursor document, a limit) into datastore.Backend calls and
normalizes every outcome into a storagemodels.Result:

	store, _ := docstore.New(backend, "Players")

	res := store.Save(ctx, map[string]any{"name": "ada", "rating": 1500}, "")
	id := res.Data.(string)

	res = store.FindWhereOrAnd(ctx, storagemodels.CombinedParams{
	    Where: &storagemodels.CombinedWhere{
	        Type: storagemodels.CombineAndOr,
	        Parameter: []storagemodels.AndOrWhereClause{
	            {WhereClause: storagemodels.WhereClause{Key: "club", Operator: "==", Value: "north"}, Type: "and"},
	            {WhereClause: storagemodels.WhereClause{Key: "rating", Operator: ">", Value: 2000}, Type: "or"},
	            {WhereClause: storagemodels.WhereClause{Key: "coach", Operator: "==", Value: true}, Type: "or"},
	        },
	    },
	    Order: "rating",
	})

Not found is a success without data. Store faults become error results with a
fixed message; the classified cause is kept in Result.Err for errors.Is.

Stream and StreamWhere return a result whose Data is a
storagemodels.Subscription. Deliveries are serialized per subscription and
coalesced when changes arrive faster than the callback consumes them.
*/
package docstore
