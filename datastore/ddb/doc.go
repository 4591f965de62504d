/*
Package ddb provides a DynamoDB implementation of datastore.Backend.

Every collection lives in one shared table, laid out by its registry index
map. Collections without a registered map use the default layout:

	PK = "COLL#{collection}"
	SK = "DOC#{id}"

Index map entries other than PK and SK are derived attributes expanded from
document fields on every write, which makes them usable as GSI keys:

	registry.RegisterIndexMap("Users", map[string]string{
	    "PK":  "COLL#{collection}",
	    "SK":  "USER#{id}",
	    "PK1": "EMAIL#{email}", // GSI1 partition key
	    "SK1": "{id}",
	})

	backend := ddb.New(client, streams, "app-table", ddb.WithGSI(ddb.DefaultGSIConfigs["GSI1"]))

A query whose top level equality predicates determine a GSI partition key is
routed through that index. Other queries read the collection partition with
strongly consistent reads. Filters are evaluated by DynamoDB; ordering,
cursor and limit are applied once all pages are read.

Batch writes use TransactWriteItems and are limited to MaxTransactItems
documents.

Change notification polls the table's DynamoDB stream:

	backend := ddb.New(client, streams, "app-table",
	    ddb.WithStreamOptions(
	        storagemodels.WithPollInterval(500*time.Millisecond),
	        storagemodels.WithMaxRetries(3),
	    ),
	)

Nested field updates ("stats.wins") require the parent map to exist in the
stored item.
*/
package ddb
