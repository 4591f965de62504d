/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"context"
	"database/sql"

	"github.com/rs/xid"

	"github.com/suparena/storemodel/datastore"
	sm "github.com/suparena/storemodel/storagemodels"
)

// CreateBatch stores docs under new ids in one transaction.
func (s *Backend) CreateBatch(ctx context.Context, collection string, docs []map[string]any) ([]string, error) {
	ids := make([]string, len(docs))
	raws := make([]string, len(docs))
	for i, doc := range docs {
		raw, err := encode(doc)
		if err != nil {
			return nil, err
		}
		ids[i] = xid.New().String()
		raws[i] = raw
	}

	s.mu.Lock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range ids {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
				collection, ids[i], raws[i],
			); err != nil {
				return err
			}
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.publish(collection, ids, datastore.OpPut)
	return ids, nil
}

// UpdateBatch merges every update in one transaction; a missing target
// rolls back the whole batch.
func (s *Backend) UpdateBatch(ctx context.Context, collection string, updates []sm.BatchUpdate) error {
	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
	}
	if err := datastore.UniqueIDs(ids); err != nil {
		return err
	}

	s.mu.Lock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			if err := merge(ctx, tx, collection, u.ID, u.Data); err != nil {
				return err
			}
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(collection, ids, datastore.OpUpdate)
	return nil
}

// DeleteBatch removes ids in one transaction.
func (s *Backend) DeleteBatch(ctx context.Context, collection string, ids []string) error {
	if err := datastore.UniqueIDs(ids); err != nil {
		return err
	}

	var deleted []string
	s.mu.Lock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND id = ?",
				collection, id,
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				deleted = append(deleted, id)
			}
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(collection, deleted, datastore.OpDelete)
	return nil
}

func (s *Backend) publish(collection string, ids []string, op datastore.Op) {
	for _, id := range ids {
		s.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: op})
	}
}
