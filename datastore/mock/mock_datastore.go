/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory implementation of datastore.Backend for testing
package mock

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/xid"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/filter"
	"github.com/suparena/storemodel/storagemodels"
)

// Backend is an in-memory datastore.Backend. Documents are deep copied
// through JSON on the way in and out, so they have the same shapes a real
// store would return.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	hub         *datastore.Hub

	getError       error
	queryError     error
	writeError     error
	deleteError    error
	watchError     error
	incrementError error
}

// New creates a new mock Backend
func New() *Backend {
	return &Backend{
		collections: make(map[string]map[string]map[string]any),
		hub:         datastore.NewHub(),
	}
}

// WithGetError makes Get operations return an error
func (m *Backend) WithGetError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getError = err
	return m
}

// WithQueryError makes Query and Count operations return an error
func (m *Backend) WithQueryError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryError = err
	return m
}

// WithWriteError makes Create, Set and Update operations return an error
func (m *Backend) WithWriteError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
	return m
}

// WithDeleteError makes Delete operations return an error
func (m *Backend) WithDeleteError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteError = err
	return m
}

// WithWatchError makes Watch registrations fail
func (m *Backend) WithWatchError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchError = err
	return m
}

// WithIncrementError makes Increment operations return an error
func (m *Backend) WithIncrementError(err error) *Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrementError = err
	return m
}

// Get retrieves a document by id
func (m *Backend) Get(ctx context.Context, collection, id string) (*datastore.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getError != nil {
		return nil, m.getError
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &datastore.Record{ID: id, Data: deepCopy(doc)}, nil
}

// Query filters, orders and paginates a collection
func (m *Backend) Query(ctx context.Context, collection string, q datastore.Query) ([]datastore.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryError != nil {
		return nil, m.queryError
	}
	matched := make([]datastore.Record, 0, len(m.collections[collection]))
	for id, doc := range m.collections[collection] {
		if filter.Match(q.Filter, doc) {
			matched = append(matched, datastore.Record{ID: id, Data: deepCopy(doc)})
		}
	}
	return datastore.Arrange(matched, q), nil
}

// Count counts the documents matching f
func (m *Backend) Count(ctx context.Context, collection string, f filter.Node) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.queryError != nil {
		return 0, m.queryError
	}
	var n int64
	for _, doc := range m.collections[collection] {
		if filter.Match(f, doc) {
			n++
		}
	}
	return n, nil
}

// Create stores data under a generated id
func (m *Backend) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := xid.New().String()
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Set replaces the document at id
func (m *Backend) Set(ctx context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	if m.writeError != nil {
		m.mu.Unlock()
		return m.writeError
	}
	m.table(collection)[id] = deepCopy(data)
	m.mu.Unlock()

	m.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpPut})
	return nil
}

// Update merges data into an existing document
func (m *Backend) Update(ctx context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	if m.writeError != nil {
		m.mu.Unlock()
		return m.writeError
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return errors.NewNotFoundError(collection, id)
	}
	for k, v := range deepCopy(data) {
		datastore.SetPath(doc, k, v)
	}
	m.mu.Unlock()

	m.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpUpdate})
	return nil
}

// Delete removes a document; deleting an absent id succeeds
func (m *Backend) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if m.deleteError != nil {
		m.mu.Unlock()
		return m.deleteError
	}
	_, existed := m.collections[collection][id]
	delete(m.collections[collection], id)
	m.mu.Unlock()

	if existed {
		m.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpDelete})
	}
	return nil
}

// Increment adds delta to a numeric field under the write lock
func (m *Backend) Increment(ctx context.Context, collection, id, field string, delta float64) error {
	m.mu.Lock()
	if m.incrementError != nil {
		m.mu.Unlock()
		return m.incrementError
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return errors.NewNotFoundError(collection, id)
	}
	current := 0.0
	if v, exists := filter.Lookup(doc, field); exists && v != nil {
		n, isNum := v.(float64)
		if !isNum {
			m.mu.Unlock()
			return errors.NewValidationError(field, fmt.Sprintf("cannot increment a %T", v))
		}
		current = n
	}
	datastore.SetPath(doc, field, current+delta)
	m.mu.Unlock()

	m.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpUpdate})
	return nil
}

// Watch subscribes to in-memory change events
func (m *Backend) Watch(ctx context.Context, collection, id string, fn datastore.ChangeFunc) (storagemodels.Subscription, error) {
	m.mu.RLock()
	watchErr := m.watchError
	m.mu.RUnlock()

	if watchErr != nil {
		return nil, watchErr
	}
	return m.hub.Subscribe(ctx, collection, id, fn), nil
}

// Close cancels every watcher
func (m *Backend) Close() error {
	m.hub.CloseAll()
	return nil
}

// Helper methods for testing

// SetData directly sets the documents of a collection (for testing)
func (m *Backend) SetData(collection string, docs map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := make(map[string]map[string]any, len(docs))
	for id, doc := range docs {
		table[id] = deepCopy(doc)
	}
	m.collections[collection] = table
}

// GetData returns a copy of the documents of a collection (for testing)
func (m *Backend) GetData(collection string) map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]map[string]any, len(m.collections[collection]))
	for id, doc := range m.collections[collection] {
		result[id] = deepCopy(doc)
	}
	return result
}

// Len returns the number of documents in a collection
func (m *Backend) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Watchers returns the number of active watch subscriptions
func (m *Backend) Watchers() int {
	return m.hub.Len()
}

// Clear removes all data
func (m *Backend) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = make(map[string]map[string]map[string]any)
}

func (m *Backend) table(collection string) map[string]map[string]any {
	t, ok := m.collections[collection]
	if !ok {
		t = make(map[string]map[string]any)
		m.collections[collection] = t
	}
	return t
}

// deepCopy returns a deep copy of a document by round-tripping through JSON.
func deepCopy(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(src)
	if err != nil {
		return filter.Normalize(src).(map[string]any)
	}
	dst := map[string]any{}
	_ = json.Unmarshal(b, &dst)
	return dst
}
