/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

// batchWriter returns the backend's batch capability, if it has one.
func (d *DocumentStore) batchWriter() (datastore.BatchWriter, bool) {
	bw, ok := d.backend.(datastore.BatchWriter)
	return bw, ok
}

// SaveBatch creates every document atomically. The result data is the list
// of generated ids in input order.
func (d *DocumentStore) SaveBatch(ctx context.Context, docs []map[string]any) (res sm.Result) {
	defer d.guard("saveBatch", MsgBatchSaveFailed, &res)

	bw, ok := d.batchWriter()
	if !ok {
		return d.fail("saveBatch", MsgBatchSaveNA, errors.NewUnsupportedError("batch save"))
	}
	stripped := make([]map[string]any, len(docs))
	for i, doc := range docs {
		stripped[i] = datastore.StripReference(doc)
	}
	ids, err := bw.CreateBatch(ctx, d.collection, stripped)
	if err != nil {
		return d.fail("saveBatch", MsgBatchSaveFailed, err)
	}
	return sm.Success(MsgBatchSaved, ids)
}

// UpdateBatch merges every update atomically.
func (d *DocumentStore) UpdateBatch(ctx context.Context, updates []sm.BatchUpdate) (res sm.Result) {
	defer d.guard("updateBatch", MsgBatchUpdateFailed, &res)

	bw, ok := d.batchWriter()
	if !ok {
		return d.fail("updateBatch", MsgBatchUpdateNA, errors.NewUnsupportedError("batch update"))
	}
	stripped := make([]sm.BatchUpdate, len(updates))
	for i, u := range updates {
		if err := requireID(u.ID); err != nil {
			return d.fail("updateBatch", MsgBatchUpdateFailed, err)
		}
		stripped[i] = sm.BatchUpdate{ID: u.ID, Data: datastore.StripReference(u.Data)}
	}
	if err := bw.UpdateBatch(ctx, d.collection, stripped); err != nil {
		return d.fail("updateBatch", MsgBatchUpdateFailed, err)
	}
	return sm.Success(MsgBatchUpdated, nil)
}

// DeleteBatch removes every id atomically.
func (d *DocumentStore) DeleteBatch(ctx context.Context, ids []string) (res sm.Result) {
	defer d.guard("deleteBatch", MsgBatchDeleteFailed, &res)

	bw, ok := d.batchWriter()
	if !ok {
		return d.fail("deleteBatch", MsgBatchDeleteNA, errors.NewUnsupportedError("batch delete"))
	}
	for _, id := range ids {
		if err := requireID(id); err != nil {
			return d.fail("deleteBatch", MsgBatchDeleteFailed, err)
		}
	}
	if err := bw.DeleteBatch(ctx, d.collection, ids); err != nil {
		return d.fail("deleteBatch", MsgBatchDeleteFailed, err)
	}
	return sm.Success(MsgBatchDeleted, nil)
}
