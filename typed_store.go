/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storemodel

import (
	"context"
	stderrors "errors"

	json "github.com/goccy/go-json"

	"github.com/suparena/storemodel/docstore"
	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

// TypedStore decodes the documents of a Store into T. T is encoded and
// decoded through its JSON tags; a field tagged "reference" receives the
// document id.
type TypedStore[T any] struct {
	store docstore.Store
}

// NewTypedStore wraps store.
func NewTypedStore[T any](store docstore.Store) *TypedStore[T] {
	return &TypedStore[T]{store: store}
}

// Typed looks up key in storage and wraps the store for T.
func Typed[T any](storage Storage, key string) (*TypedStore[T], error) {
	store, err := storage.GetStore(key)
	if err != nil {
		return nil, err
	}
	return NewTypedStore[T](store), nil
}

// Store returns the wrapped store.
func (s *TypedStore[T]) Store() docstore.Store { return s.store }

func (s *TypedStore[T]) collection() string {
	if named, ok := s.store.(interface{ Collection() string }); ok {
		return named.Collection()
	}
	return ""
}

// resultError returns the cause of an error envelope.
func resultError(res sm.Result) error {
	if res.OK() {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	return errors.Fault(stderrors.New(res.Message))
}

func decode[T any](doc map[string]any) (*T, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, errors.NewValidationError("document", err.Error())
	}
	return v, nil
}

func encode[T any](v T) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewValidationError("document", err.Error())
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.NewValidationError("document", "must encode as a JSON object")
	}
	return doc, nil
}

// Get returns the document at id, or an error matching errors.ErrNotFound.
func (s *TypedStore[T]) Get(ctx context.Context, id string) (*T, error) {
	res := s.store.Find(ctx, id)
	if err := resultError(res); err != nil {
		return nil, err
	}
	doc, ok := res.Record()
	if !ok {
		return nil, errors.NewNotFoundError(s.collection(), id)
	}
	return decode[T](doc)
}

// List runs an AND-only query. No matches is an empty slice.
func (s *TypedStore[T]) List(ctx context.Context, params sm.WhereParams) ([]T, error) {
	res := s.store.FindWhere(ctx, params)
	if err := resultError(res); err != nil {
		return nil, err
	}
	return decodeAll[T](res.Records())
}

// All lists the collection.
func (s *TypedStore[T]) All(ctx context.Context) ([]T, error) {
	res := s.store.FindAll(ctx)
	if err := resultError(res); err != nil {
		return nil, err
	}
	return decodeAll[T](res.Records())
}

func decodeAll[T any](docs []map[string]any) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Put stores v under id, or under a generated id when id is empty, and
// returns the id.
func (s *TypedStore[T]) Put(ctx context.Context, v T, id string) (string, error) {
	doc, err := encode(v)
	if err != nil {
		return "", err
	}
	res := s.store.Save(ctx, doc, id)
	if err := resultError(res); err != nil {
		return "", err
	}
	saved, _ := res.Data.(string)
	return saved, nil
}

// Update merges fields into the document at id.
func (s *TypedStore[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	return resultError(s.store.Update(ctx, fields, id))
}

// Delete removes the document at id.
func (s *TypedStore[T]) Delete(ctx context.Context, id string) error {
	return resultError(s.store.Delete(ctx, id))
}

// Count counts the documents matching where.
func (s *TypedStore[T]) Count(ctx context.Context, where []sm.WhereClause) (int64, error) {
	res := s.store.CountData(ctx, where)
	if err := resultError(res); err != nil {
		return 0, err
	}
	n, _ := res.Data.(int64)
	return n, nil
}

// Watch calls fn with the current state of the document at id and again
// after every change. A deleted or absent document is delivered as nil.
func (s *TypedStore[T]) Watch(ctx context.Context, id string, fn func(*T, error)) (sm.Subscription, error) {
	if id == "" {
		return nil, errors.NewValidationError("id", "must not be empty")
	}
	res := s.store.Stream(ctx, func(r sm.Result) {
		if err := resultError(r); err != nil {
			fn(nil, err)
			return
		}
		doc, ok := r.Record()
		if !ok {
			fn(nil, nil)
			return
		}
		fn(decode[T](doc))
	}, id)
	if err := resultError(res); err != nil {
		return nil, err
	}
	sub, _ := res.Data.(sm.Subscription)
	return sub, nil
}
