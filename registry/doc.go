/*
Package registry holds the DynamoDB key layout (index map) of each collection.

An index map associates attribute names with templates. Templates reference
macros in braces: {collection} and {id} are supplied by the store, any other
macro names a document field:

	registry.RegisterIndexMap("Players", map[string]string{
	    "PK":     "LEAGUE#{collection}",
	    "SK":     "PLAYER#{id}",
	    "GSI1PK": "EMAIL#{email}",
	})

Collections without a registered map use DefaultIndexMap. The registry is
safe for concurrent use and is normally populated during initialization.
*/
package registry
