//go:build integration

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storemodel_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/storemodel"
	"github.com/suparena/storemodel/config"
	"github.com/suparena/storemodel/datastore/testmodels"
	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

// openDynamo opens the table named by AWS_DDB_TABLE, read from the
// environment or a .env file.
func openDynamo(t *testing.T) *storemodel.Client {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	if cfg.DynamoDB.Table == "" {
		t.Skip("AWS_DDB_TABLE not set, skipping integration test")
	}
	cfg.Backend = config.BackendDynamoDB
	cfg.DynamoDB.IndexMaps = map[string]map[string]string{
		testmodels.RatingSystemCollection: {
			"PK":  "COLL#{collection}",
			"SK":  "RS#{id}",
			"PK1": "RSNAME#{name}",
			"SK1": "{id}",
		},
	}
	cfg.DynamoDB.GSIs = []string{"GSI1"}

	client, err := storemodel.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegrationTypedLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	client := openDynamo(t)

	systems, err := storemodel.CollectionOf[testmodels.RatingSystem](client, testmodels.RatingSystemCollection)
	require.NoError(t, err)

	id := fmt.Sprintf("it-%d", time.Now().UnixNano())
	name := "Integration " + id
	rs := testmodels.NewRatingSystem("", name, strfmt.DateTime(time.Now().UTC()))
	_, err = systems.Put(ctx, *rs, id)
	require.NoError(t, err)
	t.Cleanup(func() { _ = systems.Delete(ctx, id) })

	got, err := systems.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)

	// routed through GSI1 by the name equality
	found, err := systems.List(ctx, sm.WhereParams{
		Where: []sm.WhereClause{{Key: "name", Operator: sm.OpEqual, Value: name}},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	store, err := client.Collection(testmodels.RatingSystemCollection)
	require.NoError(t, err)
	res := store.IncrementDecrement(ctx, sm.IncrementParams{DBReference: id, Key: "players", IsIncrement: true})
	require.True(t, res.OK(), res.Message)
	got, err = systems.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Players)

	require.NoError(t, systems.Delete(ctx, id))
	_, err = systems.Get(ctx, id)
	assert.True(t, errors.IsNotFound(err))
}

func TestIntegrationBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	client := openDynamo(t)
	store, err := client.Collection(testmodels.RatingSystemCollection)
	require.NoError(t, err)

	tag := fmt.Sprintf("batch-%d", time.Now().UnixNano())
	res := store.SaveBatch(ctx, []map[string]any{
		{"name": tag + "-a", "tag": tag},
		{"name": tag + "-b", "tag": tag},
	})
	require.True(t, res.OK(), res.Message)
	ids, ok := res.Data.([]string)
	require.True(t, ok)
	t.Cleanup(func() { store.DeleteBatch(ctx, ids) })

	count := store.CountData(ctx, []sm.WhereClause{{Key: "tag", Operator: sm.OpEqual, Value: tag}})
	require.True(t, count.OK())
	assert.Equal(t, int64(2), count.Data)

	require.True(t, store.DeleteBatch(ctx, ids).OK())
}
