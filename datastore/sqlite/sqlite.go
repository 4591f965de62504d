/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/logging"
	"github.com/suparena/storemodel/storagemodels"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

// Backend stores all collections in a single SQLite database.
//
// Tables:
//
//	documents(collection, id, data)  PRIMARY KEY (collection, id)
//
// data holds the document as JSON text; filters and ordering run through
// the JSON1 functions.
type Backend struct {
	mu     sync.RWMutex
	db     *sql.DB
	hub    *datastore.Hub
	logger *slog.Logger
}

var (
	_ datastore.Backend     = (*Backend)(nil)
	_ datastore.BatchWriter = (*Backend)(nil)
)

// Open opens or creates the database at path.
func Open(path string) (*Backend, error) {
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection: writes are serialized and :memory: stays one database
	db.SetMaxOpenConns(1)

	if path != Memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Backend{
		db:     db,
		hub:    datastore.NewHub(),
		logger: logging.Logger("sqlite").With("path", path),
	}, nil
}

// Close cancels every watcher and closes the database.
func (s *Backend) Close() error {
	s.hub.CloseAll()
	return s.db.Close()
}

func decode(raw string) (map[string]any, error) {
	doc := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("corrupt document: %w", err)
	}
	return doc, nil
}

func encode(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.NewValidationError("data", fmt.Sprintf("failed to encode document: %v", err))
	}
	return string(b), nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, collection, id string) (*datastore.Record, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &datastore.Record{ID: id, Data: doc}, nil
}

// Get retrieves a single document.
func (s *Backend) Get(ctx context.Context, collection, id string) (*datastore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(ctx, s.db, collection, id)
}

// Create stores data under a new xid.
func (s *Backend) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := xid.New().String()
	raw, err := encode(data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)",
		collection, id, raw,
	)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpPut})
	return id, nil
}

func put(ctx context.Context, q querier, collection, id, raw string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data`,
		collection, id, raw,
	)
	return err
}

// Set replaces the document at id.
func (s *Backend) Set(ctx context.Context, collection, id string, data map[string]any) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	err = put(ctx, s.db, collection, id, raw)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpPut})
	return nil
}

// merge applies a partial update inside q. Dotted keys address nested fields.
func merge(ctx context.Context, q querier, collection, id string, data map[string]any) error {
	rec, err := get(ctx, q, collection, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.NewNotFoundError(collection, id)
	}
	// round trip the update so values have document shapes
	raw, err := encode(data)
	if err != nil {
		return err
	}
	update, err := decode(raw)
	if err != nil {
		return err
	}
	for k, v := range update {
		datastore.SetPath(rec.Data, k, v)
	}
	merged, err := encode(rec.Data)
	if err != nil {
		return err
	}
	return put(ctx, q, collection, id, merged)
}

// Update merges data into an existing document in a transaction.
func (s *Backend) Update(ctx context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return merge(ctx, tx, collection, id, data)
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpUpdate})
	return nil
}

// Increment adds delta to a numeric field in a single UPDATE. A missing
// field counts as zero.
func (s *Backend) Increment(ctx context.Context, collection, id, field string, delta float64) error {
	path, ok := jsonPath(field)
	if !ok {
		return errors.NewValidationError(field, "field cannot be addressed as a JSON path")
	}

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents
		 SET data = json_set(data, ?, COALESCE(json_extract(data, ?), 0) + ?)
		 WHERE collection = ? AND id = ?
		   AND (json_type(data, ?) IS NULL OR json_type(data, ?) IN ('integer', 'real', 'null'))`,
		path, path, delta, collection, id, path, path,
	)
	var n int64
	if err == nil {
		n, err = res.RowsAffected()
	}
	if err == nil && n == 0 {
		err = s.explainIncrement(ctx, collection, id, field)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpUpdate})
	return nil
}

// explainIncrement reports why an increment matched no row.
func (s *Backend) explainIncrement(ctx context.Context, collection, id, field string) error {
	rec, err := get(ctx, s.db, collection, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.NewNotFoundError(collection, id)
	}
	return errors.NewValidationError(field, "cannot increment a non-numeric field")
}

// Delete removes a document. Deleting an absent document succeeds.
func (s *Backend) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.hub.Publish(datastore.ChangeEvent{Collection: collection, ID: id, Op: datastore.OpDelete})
	}
	return nil
}

// Watch reports changes made through this Backend.
func (s *Backend) Watch(ctx context.Context, collection, id string, fn datastore.ChangeFunc) (storagemodels.Subscription, error) {
	return s.hub.Subscribe(ctx, collection, id, fn), nil
}

// ListCollections returns the names of non-empty collections.
func (s *Backend) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Backend) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !stderrors.Is(rerr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", "error", rerr)
		}
		return err
	}
	return tx.Commit()
}
