/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/storagemodels"
)

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestArrange(t *testing.T) {
	records := []Record{
		{ID: "c", Data: map[string]any{"score": 2.0}},
		{ID: "a", Data: map[string]any{"score": 3.0}},
		{ID: "b", Data: map[string]any{"score": 1.0}},
		{ID: "d", Data: map[string]any{}},
	}

	t.Run("ByID", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b", "c", "d"}, ids(Arrange(records, Query{})))
	})

	t.Run("OrderByExcludesMissing", func(t *testing.T) {
		assert.Equal(t, []string{"b", "c", "a"}, ids(Arrange(records, Query{OrderBy: "score"})))
	})

	t.Run("StartAfter", func(t *testing.T) {
		cursor := records[0]
		got := Arrange(records, Query{OrderBy: "score", StartAfter: &cursor})
		assert.Equal(t, []string{"a"}, ids(got))
	})

	t.Run("StartAfterByID", func(t *testing.T) {
		cursor := Record{ID: "b"}
		assert.Equal(t, []string{"c", "d"}, ids(Arrange(records, Query{StartAfter: &cursor})))
	})

	t.Run("Limit", func(t *testing.T) {
		assert.Equal(t, []string{"b", "c"}, ids(Arrange(records, Query{OrderBy: "score", Limit: 2})))
	})

	t.Run("TiesBrokenByID", func(t *testing.T) {
		tied := []Record{
			{ID: "y", Data: map[string]any{"n": 1.0}},
			{ID: "x", Data: map[string]any{"n": 1.0}},
		}
		assert.Equal(t, []string{"x", "y"}, ids(Arrange(tied, Query{OrderBy: "n"})))
	})
}

func TestReferenceHelpers(t *testing.T) {
	in := map[string]any{"name": "ada", storagemodels.ReferenceField: "forged"}

	stripped := StripReference(in)
	assert.NotContains(t, stripped, storagemodels.ReferenceField)
	assert.Contains(t, in, storagemodels.ReferenceField, "input must not be mutated")

	withRef := WithReference(Record{ID: "42", Data: map[string]any{"name": "ada"}})
	assert.Equal(t, map[string]any{"name": "ada", "reference": "42"}, withRef)
}

func TestHub(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	var all, one int32
	subAll := hub.Subscribe(ctx, "users", "", func(ChangeEvent) { atomic.AddInt32(&all, 1) })
	subOne := hub.Subscribe(ctx, "users", "1", func(ChangeEvent) { atomic.AddInt32(&one, 1) })
	assert.Equal(t, 2, hub.Len())

	hub.Publish(ChangeEvent{Collection: "users", ID: "1", Op: OpPut})
	hub.Publish(ChangeEvent{Collection: "users", ID: "2", Op: OpPut})
	hub.Publish(ChangeEvent{Collection: "orders", ID: "1", Op: OpPut})

	assert.Equal(t, int32(2), atomic.LoadInt32(&all))
	assert.Equal(t, int32(1), atomic.LoadInt32(&one))

	subOne.Cancel()
	subOne.Cancel()
	hub.Publish(ChangeEvent{Collection: "users", ID: "1", Op: OpDelete})
	assert.Equal(t, int32(1), atomic.LoadInt32(&one))
	assert.Equal(t, 1, hub.Len())

	hub.CloseAll()
	<-subAll.Done()
	assert.Equal(t, 0, hub.Len())
}

func TestHubContextCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	sub := hub.Subscribe(ctx, "users", "", func(ChangeEvent) {})
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop on context cancellation")
	}
	assert.Equal(t, 0, hub.Len())
}

func TestUniqueIDs(t *testing.T) {
	assert.NoError(t, UniqueIDs(nil))
	assert.NoError(t, UniqueIDs([]string{"a", "b", "c"}))

	err := UniqueIDs([]string{"a", "b", "a"})
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), `"a"`)
}
