/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock

import (
	"context"

	"github.com/rs/xid"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/storagemodels"
)

// BatchBackend is a mock Backend that also implements datastore.BatchWriter.
// The plain Backend deliberately lacks the capability.
type BatchBackend struct {
	*Backend
}

// NewBatch creates a mock backend with batch write support
func NewBatch() *BatchBackend {
	return &BatchBackend{Backend: New()}
}

var _ datastore.BatchWriter = (*BatchBackend)(nil)

// CreateBatch stores every document under one lock
func (m *BatchBackend) CreateBatch(ctx context.Context, collection string, docs []map[string]any) ([]string, error) {
	m.mu.Lock()
	if m.writeError != nil {
		m.mu.Unlock()
		return nil, m.writeError
	}
	ids := make([]string, len(docs))
	table := m.table(collection)
	for i, doc := range docs {
		ids[i] = xid.New().String()
		table[ids[i]] = deepCopy(doc)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpPut})
	}
	return ids, nil
}

// UpdateBatch applies every update or none
func (m *BatchBackend) UpdateBatch(ctx context.Context, collection string, updates []storagemodels.BatchUpdate) error {
	m.mu.Lock()
	if m.writeError != nil {
		m.mu.Unlock()
		return m.writeError
	}
	if err := datastore.UniqueIDs(batchIDs(updates)); err != nil {
		m.mu.Unlock()
		return err
	}
	table := m.collections[collection]
	for _, u := range updates {
		if _, ok := table[u.ID]; !ok {
			m.mu.Unlock()
			return errors.NewNotFoundError(collection, u.ID)
		}
	}
	for _, u := range updates {
		for k, v := range deepCopy(u.Data) {
			datastore.SetPath(table[u.ID], k, v)
		}
	}
	m.mu.Unlock()

	for _, u := range updates {
		m.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: u.ID, Op: datastore.OpUpdate})
	}
	return nil
}

// DeleteBatch removes every id under one lock
func (m *BatchBackend) DeleteBatch(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	if m.deleteError != nil {
		m.mu.Unlock()
		return m.deleteError
	}
	if err := datastore.UniqueIDs(ids); err != nil {
		m.mu.Unlock()
		return err
	}
	for _, id := range ids {
		delete(m.collections[collection], id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpDelete})
	}
	return nil
}

func batchIDs(updates []storagemodels.BatchUpdate) []string {
	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
	}
	return ids
}
