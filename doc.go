/*
Package storemodel is a document store data access layer. Every collection
is reached through one uniform contract that returns a Result envelope
instead of raising errors, over interchangeable backends: an in-memory
store, SQLite and DynamoDB.

Layout:
  - docstore: the per-collection contract (find, query, save, update,
    delete, realtime streams, counts, batches and counters)
  - identity: account registration and sign in over a user collection
  - filter: the where clause model shared by every backend
  - datastore: the backend contract and its implementations
  - config: YAML, .env and environment settings

Basic Usage:

	cfg, _ := config.Load("storemodel.yaml")
	client, _ := storemodel.Open(ctx, cfg)
	defer client.Close()

	players, _ := client.Collection("Players")
	res := players.FindWhere(ctx, storagemodels.WhereParams{
		Where: []storagemodels.WhereClause{{Key: "rating", Operator: ">=", Value: 1600}},
		Order: "rating",
		Limit: 10,
	})
	for _, doc := range res.Records() {
		fmt.Println(doc["reference"], doc["name"])
	}

Typed access decodes documents through their JSON tags:

	systems, _ := storemodel.CollectionOf[RatingSystem](client, "RatingSystems")
	rs, err := systems.Get(ctx, "elo")
*/
package storemodel
