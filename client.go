/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storemodel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/suparena/storemodel/config"
	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/datastore/ddb"
	"github.com/suparena/storemodel/datastore/mock"
	"github.com/suparena/storemodel/datastore/sqlite"
	"github.com/suparena/storemodel/docstore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/identity"
	"github.com/suparena/storemodel/logging"
	"github.com/suparena/storemodel/registry"
)

// Client owns a configured backend and the collection stores bound to it.
type Client struct {
	backend datastore.Backend
	storage Storage
	cfg     config.Config
	logger  *slog.Logger

	mu sync.Mutex
}

// Open validates cfg, applies its log level and index maps, and connects
// the selected backend.
func Open(ctx context.Context, cfg config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := NewClient(backend)
	c.cfg = cfg
	c.logger.Info("store opened", "backend", cfg.Backend)
	return c, nil
}

// NewClient wraps an already connected backend with default settings.
func NewClient(backend datastore.Backend) *Client {
	return &Client{
		backend: backend,
		storage: NewStorageManager(),
		cfg:     config.Default(),
		logger:  logging.Logger("storemodel"),
	}
}

func openBackend(ctx context.Context, cfg config.Config) (datastore.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return mock.NewBatch(), nil

	case config.BackendSQLite:
		return sqlite.Open(cfg.SQLite.Path)

	case config.BackendDynamoDB:
		for collection, m := range cfg.DynamoDB.IndexMaps {
			if err := registry.RegisterIndexMap(collection, m); err != nil {
				return nil, err
			}
		}
		opts := []ddb.Option{ddb.WithStreamOptions(cfg.StreamOptions()...)}
		for _, name := range cfg.DynamoDB.GSIs {
			gsi, ok := ddb.GetGSIConfig(name)
			if !ok {
				return nil, errors.NewValidationError("dynamodb.gsis", fmt.Sprintf("unknown index %q", name))
			}
			opts = append(opts, ddb.WithGSI(gsi))
		}
		return ddb.NewFromConfig(ctx, ddb.Config{
			AccessKey: cfg.DynamoDB.AccessKey,
			SecretKey: cfg.DynamoDB.SecretKey,
			Region:    cfg.DynamoDB.Region,
			Table:     cfg.DynamoDB.Table,
			Endpoint:  cfg.DynamoDB.Endpoint,
		}, opts...)
	}
	return nil, errors.NewValidationError("backend", fmt.Sprintf("unknown backend %q", cfg.Backend))
}

// Backend returns the connected backend.
func (c *Client) Backend() datastore.Backend { return c.backend }

// Storage returns the stores opened so far, keyed by collection.
func (c *Client) Storage() Storage { return c.storage }

// Collection returns the store of collection, binding it on first use.
func (c *Client) Collection(name string) (docstore.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if store, err := c.storage.GetStore(name); err == nil {
		return store, nil
	}
	store, err := docstore.New(c.backend, name)
	if err != nil {
		return nil, err
	}
	if err := c.storage.RegisterStore(name, store); err != nil {
		return nil, err
	}
	return store, nil
}

// Identity composes provider with the configured user collection.
func (c *Client) Identity(provider identity.Provider) (*identity.IdentityStore, error) {
	users, err := c.Collection(c.cfg.UsersCollection)
	if err != nil {
		return nil, err
	}
	return identity.New(users, provider)
}

// Close releases the backend. Subscriptions end.
func (c *Client) Close() error {
	return c.backend.Close()
}

// CollectionOf is Collection wrapped for T.
func CollectionOf[T any](c *Client, name string) (*TypedStore[T], error) {
	store, err := c.Collection(name)
	if err != nil {
		return nil, err
	}
	return NewTypedStore[T](store), nil
}
