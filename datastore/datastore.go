/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"

	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/filter"
	"github.com/suparena/storemodel/storagemodels"
)

// Record is a stored document with its identifier.
type Record struct {
	ID   string
	Data map[string]any
}

// Query describes a filtered, ordered, paginated listing.
type Query struct {
	// Filter restricts the result set. Nil matches every document.
	Filter filter.Node
	// OrderBy sorts by a field; documents lacking it are excluded.
	// Without it results are ordered by ID.
	OrderBy string
	// StartAfter is the cursor document; results begin after its position.
	StartAfter *Record
	// Limit caps the result count when positive.
	Limit int
}

// Op is the kind of change a ChangeEvent reports.
type Op string

const (
	OpPut    Op = "put"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent notifies a watcher that a document changed.
type ChangeEvent struct {
	Collection string
	ID         string
	Op         Op
}

// ChangeFunc receives change events. It must not block.
type ChangeFunc func(ChangeEvent)

// Backend is the external document store: per-collection primitive
// operations the document store composes.
type Backend interface {
	// Get returns nil, nil when the document does not exist.
	Get(ctx context.Context, collection, id string) (*Record, error)

	Query(ctx context.Context, collection string, q Query) ([]Record, error)

	Count(ctx context.Context, collection string, f filter.Node) (int64, error)

	// Create stores data under a generated identifier and returns it.
	Create(ctx context.Context, collection string, data map[string]any) (string, error)

	// Set replaces the document at id, creating it if needed.
	Set(ctx context.Context, collection, id string, data map[string]any) error

	// Update merges data into an existing document. Returns an error matching
	// errors.ErrNotFound when the document does not exist.
	Update(ctx context.Context, collection, id string, data map[string]any) error

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Increment atomically adds delta to a numeric field of an existing document.
	Increment(ctx context.Context, collection, id, field string, delta float64) error

	// Watch reports changes to a collection, or to one document when id is set,
	// until the subscription is cancelled or ctx is done.
	Watch(ctx context.Context, collection, id string, fn ChangeFunc) (storagemodels.Subscription, error)

	Close() error
}

// BatchWriter is implemented by backends that can write several documents
// atomically.
type BatchWriter interface {
	// CreateBatch stores every document under a generated id and returns the ids
	// in input order.
	CreateBatch(ctx context.Context, collection string, docs []map[string]any) ([]string, error)

	// UpdateBatch merges every update; if any target is missing nothing is written.
	UpdateBatch(ctx context.Context, collection string, updates []storagemodels.BatchUpdate) error

	// DeleteBatch removes every id. Batches naming an id twice are rejected
	// before anything is written, as are duplicate update targets.
	DeleteBatch(ctx context.Context, collection string, ids []string) error
}

// UniqueIDs returns a validation error for the first id that repeats.
func UniqueIDs(ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return errors.NewValidationError("id", fmt.Sprintf("duplicate id %q in batch", id))
		}
		seen[id] = true
	}
	return nil
}
