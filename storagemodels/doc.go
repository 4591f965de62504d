/*
Package storagemodels defines the data structures shared across storemodel.

Result:
Every store operation returns a Result envelope:

	type Result struct {
	    Status  Status // "success" or "error"
	    Message string // human readable outcome
	    Data    any    // record, record list, id, count or subscription
	    Err     error  // classified cause of an error result, not serialized
	}

Where clauses:
Filters are declarative and serializable:

	params := WhereParams{
	    Where: []WhereClause{{Key: "age", Operator: OpGreaterOrEqual, Value: 18}},
	    Order: "age",
	    Limit: 20,
	}

	combined := CombinedParams{
	    Where: &CombinedWhere{
	        Type: CombineAndOr,
	        Parameter: []AndOrWhereClause{
	            {WhereClause: WhereClause{Key: "a", Operator: OpEqual, Value: 1}, Type: ClauseAnd},
	            {WhereClause: WhereClause{Key: "b", Operator: OpEqual, Value: 2}, Type: ClauseOr},
	            {WhereClause: WhereClause{Key: "c", Operator: OpEqual, Value: 3}, Type: ClauseOr},
	        },
	    },
	}

StreamOptions:
Configuration for backends that poll for changes:

	opts := []StreamOption{
	    WithPollInterval(500 * time.Millisecond),
	    WithMaxRetries(3),
	}
*/
package storagemodels
