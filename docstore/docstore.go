/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/filter"
	"github.com/suparena/storemodel/logging"
	sm "github.com/suparena/storemodel/storagemodels"
)

// Result messages.
const (
	MsgFound         = "Document found"
	MsgNotExist      = "Document does not exist"
	MsgFetchFailed   = "Unable to fetch document"
	MsgListFound     = "Documents found"
	MsgListEmpty     = "Documents empty"
	MsgListFailed    = "Unable to fetch documents"
	MsgNoMatches     = "No Documents found"
	MsgQueryFailed   = "Unable to query documents"
	MsgAdded         = "Document added successfully!"
	MsgReplaced      = "Document updated successfully!"
	MsgSaveFailed    = "Unable to save document"
	MsgUpdated       = "Data updated successfully"
	MsgUpdateFailed  = "Unable to update document"
	MsgDeleted       = "Document deleted successfully!"
	MsgDeleteFailed  = "Unable to delete document"
	MsgCounted       = "Counted data"
	MsgCountFailed   = "Unable to count data"
	MsgCounter       = "Counter successful"
	MsgCounterFailed = "Unable to update counter"
	MsgStreaming     = "Stream started"
	MsgStreamFailed  = "Unable to stream data"

	MsgBatchSaved        = "Batch saved successfully"
	MsgBatchSaveFailed   = "Unable to save batch"
	MsgBatchSaveNA       = "Batch save is not supported"
	MsgBatchUpdated      = "Batch updated successfully"
	MsgBatchUpdateFailed = "Unable to update batch"
	MsgBatchUpdateNA     = "Batch update is not supported"
	MsgBatchDeleted      = "Batch deleted successfully"
	MsgBatchDeleteFailed = "Unable to delete batch"
	MsgBatchDeleteNA     = "Batch delete is not supported"
)

// Store is the uniform CRUD, query, count and realtime contract over one
// collection. Every method returns exactly one Result and never panics.
type Store interface {
	Find(ctx context.Context, id string) sm.Result
	FindAll(ctx context.Context, ids ...string) sm.Result
	FindWhere(ctx context.Context, params sm.WhereParams) sm.Result
	FindWhereOrAnd(ctx context.Context, params sm.CombinedParams) sm.Result
	Save(ctx context.Context, data map[string]any, id string) sm.Result
	Update(ctx context.Context, data map[string]any, id string) sm.Result
	Delete(ctx context.Context, id string) sm.Result
	Stream(ctx context.Context, fn sm.StreamFunc, id string) sm.Result
	StreamWhere(ctx context.Context, fn sm.StreamFunc, params sm.WhereParams) sm.Result
	CountData(ctx context.Context, where []sm.WhereClause) sm.Result
	SaveBatch(ctx context.Context, docs []map[string]any) sm.Result
	UpdateBatch(ctx context.Context, updates []sm.BatchUpdate) sm.Result
	DeleteBatch(ctx context.Context, ids []string) sm.Result
	IncrementDecrement(ctx context.Context, params sm.IncrementParams) sm.Result
}

// DocumentStore implements Store over one collection of a datastore.Backend.
type DocumentStore struct {
	backend    datastore.Backend
	collection string
	logger     *slog.Logger
}

var _ Store = (*DocumentStore)(nil)

// New binds a DocumentStore to a collection of backend.
func New(backend datastore.Backend, collection string) (*DocumentStore, error) {
	if backend == nil {
		return nil, errors.NewValidationError("backend", "must not be nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.NewValidationError("collection", "must not be empty")
	}
	return &DocumentStore{
		backend:    backend,
		collection: collection,
		logger:     logging.Logger("docstore").With("collection", collection),
	}, nil
}

// Collection returns the bound collection name.
func (d *DocumentStore) Collection() string { return d.collection }

// Backend returns the underlying backend.
func (d *DocumentStore) Backend() datastore.Backend { return d.backend }

// fail logs the cause and builds the error envelope.
func (d *DocumentStore) fail(op, message string, err error) sm.Result {
	err = errors.Fault(err)
	d.logger.Debug("operation failed", "op", op, "error", err)
	return sm.Failure(message, err)
}

// guard turns a panic escaping an operation into an error envelope.
func (d *DocumentStore) guard(op, message string, res *sm.Result) {
	if r := recover(); r != nil {
		d.logger.Warn("recovered panic", "op", op, "panic", r)
		*res = sm.Failure(message, errors.Fault(fmt.Errorf("panic: %v", r)))
	}
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewValidationError("id", "must not be empty")
	}
	return nil
}

// Find fetches one document. An absent document is a success without data.
func (d *DocumentStore) Find(ctx context.Context, id string) (res sm.Result) {
	defer d.guard("find", MsgFetchFailed, &res)

	if err := requireID(id); err != nil {
		return d.fail("find", MsgFetchFailed, err)
	}
	rec, err := d.backend.Get(ctx, d.collection, id)
	if err != nil {
		return d.fail("find", MsgFetchFailed, err)
	}
	if rec == nil {
		return sm.Success(MsgNotExist, nil)
	}
	return sm.Success(MsgFound, datastore.WithReference(*rec))
}

// FindAll resolves ids one after another and keeps the hits in input order.
// Without ids it lists the whole collection.
func (d *DocumentStore) FindAll(ctx context.Context, ids ...string) (res sm.Result) {
	defer d.guard("findAll", MsgListFailed, &res)

	if len(ids) == 0 {
		recs, err := d.backend.Query(ctx, d.collection, datastore.Query{})
		if err != nil {
			return d.fail("findAll", MsgListFailed, err)
		}
		return listResult(recs, MsgListFound, MsgListEmpty)
	}

	docs := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		r := d.Find(ctx, id)
		if !r.OK() {
			return d.fail("findAll", MsgListFailed, r.Err)
		}
		if doc, ok := r.Record(); ok {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return sm.Success(MsgListEmpty, nil)
	}
	return sm.Success(MsgListFound, docs)
}

// FindWhere runs an AND-only filtered query.
func (d *DocumentStore) FindWhere(ctx context.Context, params sm.WhereParams) (res sm.Result) {
	defer d.guard("findWhere", MsgQueryFailed, &res)

	node, err := filter.Where(params.Where)
	if err != nil {
		return d.fail("findWhere", MsgQueryFailed, err)
	}
	recs, err := d.query(ctx, node, params.Order, params.Offset, params.Limit)
	if err != nil {
		return d.fail("findWhere", MsgQueryFailed, err)
	}
	return listResult(recs, MsgListFound, MsgNoMatches)
}

// FindWhereOrAnd runs a query over a tagged clause batch composed by its
// combinator.
func (d *DocumentStore) FindWhereOrAnd(ctx context.Context, params sm.CombinedParams) (res sm.Result) {
	defer d.guard("findWhereOrAnd", MsgQueryFailed, &res)

	node, err := filter.Combined(params.Where)
	if err != nil {
		return d.fail("findWhereOrAnd", MsgQueryFailed, err)
	}
	recs, err := d.query(ctx, node, params.Order, params.Offset, params.Limit)
	if err != nil {
		return d.fail("findWhereOrAnd", MsgQueryFailed, err)
	}
	return listResult(recs, MsgListFound, MsgNoMatches)
}

// query resolves the cursor document and runs the backend query. A cursor
// that no longer exists applies no offset.
func (d *DocumentStore) query(ctx context.Context, node filter.Node, order, offset string, limit int) ([]datastore.Record, error) {
	q := datastore.Query{Filter: node, OrderBy: order, Limit: limit}
	if offset != "" {
		cursor, err := d.backend.Get(ctx, d.collection, offset)
		if err != nil {
			return nil, err
		}
		if cursor == nil {
			d.logger.Debug("cursor document missing, no offset applied", "offset", offset)
		}
		q.StartAfter = cursor
	}
	return d.backend.Query(ctx, d.collection, q)
}

func listResult(recs []datastore.Record, found, empty string) sm.Result {
	if len(recs) == 0 {
		return sm.Success(empty, nil)
	}
	docs := make([]map[string]any, len(recs))
	for i, r := range recs {
		docs[i] = datastore.WithReference(r)
	}
	return sm.Success(found, docs)
}

// Save creates a document under a generated id when id is empty, or replaces
// the document at id. The result data is the identifier.
func (d *DocumentStore) Save(ctx context.Context, data map[string]any, id string) (res sm.Result) {
	defer d.guard("save", MsgSaveFailed, &res)

	doc := datastore.StripReference(data)
	if id != "" {
		if err := requireID(id); err != nil {
			return d.fail("save", MsgSaveFailed, err)
		}
	}
	if id == "" {
		newID, err := d.backend.Create(ctx, d.collection, doc)
		if err != nil {
			return d.fail("save", MsgSaveFailed, err)
		}
		return sm.Success(MsgAdded, newID)
	}
	if err := d.backend.Set(ctx, d.collection, id, doc); err != nil {
		return d.fail("save", MsgSaveFailed, err)
	}
	return sm.Success(MsgReplaced, id)
}

// Update merges data into an existing document.
func (d *DocumentStore) Update(ctx context.Context, data map[string]any, id string) (res sm.Result) {
	defer d.guard("update", MsgUpdateFailed, &res)

	if err := requireID(id); err != nil {
		return d.fail("update", MsgUpdateFailed, err)
	}
	if err := d.backend.Update(ctx, d.collection, id, datastore.StripReference(data)); err != nil {
		return d.fail("update", MsgUpdateFailed, err)
	}
	return sm.Success(MsgUpdated, nil)
}

// Delete removes a document. Deleting an absent document succeeds.
func (d *DocumentStore) Delete(ctx context.Context, id string) (res sm.Result) {
	defer d.guard("delete", MsgDeleteFailed, &res)

	if err := requireID(id); err != nil {
		return d.fail("delete", MsgDeleteFailed, err)
	}
	if err := d.backend.Delete(ctx, d.collection, id); err != nil {
		return d.fail("delete", MsgDeleteFailed, err)
	}
	return sm.Success(MsgDeleted, nil)
}

// CountData counts the documents matching an AND-only clause batch on the
// server. The result data is an int64.
func (d *DocumentStore) CountData(ctx context.Context, where []sm.WhereClause) (res sm.Result) {
	defer d.guard("countData", MsgCountFailed, &res)

	node, err := filter.Where(where)
	if err != nil {
		return d.fail("countData", MsgCountFailed, err)
	}
	n, err := d.backend.Count(ctx, d.collection, node)
	if err != nil {
		return d.fail("countData", MsgCountFailed, err)
	}
	return sm.Success(MsgCounted, n)
}

// IncrementDecrement atomically moves a numeric field by the signed delta of
// params.
func (d *DocumentStore) IncrementDecrement(ctx context.Context, params sm.IncrementParams) (res sm.Result) {
	defer d.guard("incrementDecrement", MsgCounterFailed, &res)

	if err := requireID(params.DBReference); err != nil {
		return d.fail("incrementDecrement", MsgCounterFailed, err)
	}
	if strings.TrimSpace(params.Key) == "" {
		return d.fail("incrementDecrement", MsgCounterFailed, errors.NewValidationError("key", "must not be empty"))
	}
	if err := d.backend.Increment(ctx, d.collection, params.DBReference, params.Key, params.Delta()); err != nil {
		return d.fail("incrementDecrement", MsgCounterFailed, err)
	}
	return sm.Success(MsgCounter, nil)
}
