/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storemodel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/suparena/storemodel/config"
	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/datastore/sqlite"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/identity"
	"github.com/suparena/storemodel/identity/local"
	sm "github.com/suparena/storemodel/storagemodels"
)

func TestOpenMemory(t *testing.T) {
	ctx := context.Background()
	client, err := Open(ctx, config.Default())
	require.NoError(t, err)
	defer client.Close()

	_, ok := client.Backend().(datastore.BatchWriter)
	assert.True(t, ok, "memory backend supports batches")

	players, err := client.Collection("Players")
	require.NoError(t, err)
	again, err := client.Collection("Players")
	require.NoError(t, err)
	assert.Same(t, players, again)
	assert.Equal(t, []string{"Players"}, client.Storage().ListStores())

	res := players.SaveBatch(ctx, []map[string]any{{"name": "ada"}, {"name": "bob"}})
	require.True(t, res.OK(), res.Message)
	count := players.CountData(ctx, nil)
	require.True(t, count.OK())
	assert.Equal(t, int64(2), count.Data)
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "store.db")

	client, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, ok := client.Backend().(*sqlite.Backend)
	require.True(t, ok)

	players, err := client.Collection("Players")
	require.NoError(t, err)
	require.True(t, players.Save(ctx, map[string]any{"name": "ada", "rating": 1500}, "ada").OK())
	require.NoError(t, client.Close())

	// the data survives a reopen
	client, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()
	players, err = client.Collection("Players")
	require.NoError(t, err)
	res := players.Find(ctx, "ada")
	require.True(t, res.OK())
	doc, ok := res.Record()
	require.True(t, ok)
	assert.Equal(t, 1500.0, doc["rating"])
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendDynamoDB
	_, err := Open(context.Background(), cfg)
	assert.True(t, errors.IsValidationError(err))

	cfg.DynamoDB.Table, cfg.DynamoDB.Region = "t", "us-east-1"
	cfg.DynamoDB.GSIs = []string{"GSI9"}
	_, err = Open(context.Background(), cfg)
	assert.True(t, errors.IsValidationError(err))
}

func TestClientIdentity(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.UsersCollection = "Members"
	client, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	auth, err := client.Identity(local.New(client.Backend(), local.WithCost(bcrypt.MinCost)))
	require.NoError(t, err)

	res := auth.Register(ctx, identity.RegisterParams{
		Email:    "ada@example.com",
		Password: "secret",
		UserData: map[string]any{"name": "Ada"},
	})
	require.True(t, res.OK(), res.Message)
	account, ok := res.Data.(identity.Account)
	require.True(t, ok)

	members, err := client.Collection("Members")
	require.NoError(t, err)
	profile := members.Find(ctx, account.UID)
	require.True(t, profile.OK())
	doc, ok := profile.Record()
	require.True(t, ok)
	assert.Equal(t, "Ada", doc["name"])

	login := auth.Login(ctx, identity.LoginParams{Email: "ada@example.com", Password: "wrong"})
	assert.Equal(t, sm.StatusError, login.Status)
	assert.True(t, errors.Is(login.Err, errors.ErrInvalidCredentials))
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
