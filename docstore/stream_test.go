/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/storemodel/datastore/mock"
	"github.com/suparena/storemodel/docstore"
	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

func collect() (sm.StreamFunc, <-chan sm.Result) {
	ch := make(chan sm.Result, 64)
	return func(r sm.Result) { ch <- r }, ch
}

func next(t *testing.T, ch <-chan sm.Result) sm.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return sm.Result{}
	}
}

func subscriptionOf(t *testing.T, res sm.Result) sm.Subscription {
	t.Helper()
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, docstore.MsgStreaming, res.Message)
	sub, ok := res.Data.(sm.Subscription)
	require.True(t, ok)
	require.NotEmpty(t, sub.ID())
	return sub
}

func TestStreamDocument(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	backend.SetData(players, map[string]map[string]any{"p1": {"score": 1}})
	store := newStore(t, backend)

	fn, ch := collect()
	sub := subscriptionOf(t, store.Stream(ctx, fn, "p1"))
	defer sub.Cancel()

	initial := next(t, ch)
	assert.Equal(t, map[string]any{"score": 1.0, "reference": "p1"}, initial.Data)

	require.True(t, store.Update(ctx, map[string]any{"score": 2}, "p1").OK())
	changed := next(t, ch)
	assert.Equal(t, 2.0, changed.Data.(map[string]any)["score"])

	require.True(t, store.Delete(ctx, "p1").OK())
	gone := next(t, ch)
	assert.True(t, gone.OK())
	assert.Equal(t, docstore.MsgNotExist, gone.Message)
}

func TestStreamCollection(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, mock.New())

	fn, ch := collect()
	sub := subscriptionOf(t, store.Stream(ctx, fn, ""))
	defer sub.Cancel()

	assert.Equal(t, docstore.MsgListEmpty, next(t, ch).Message)

	require.True(t, store.Save(ctx, map[string]any{"n": 1}, "a").OK())
	assert.Equal(t, []string{"a"}, refs(next(t, ch)))
}

func TestStreamWhere(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	seedLeague(backend)
	store := newStore(t, backend)

	fn, ch := collect()
	sub := subscriptionOf(t, store.StreamWhere(ctx, fn, sm.WhereParams{
		Where: []sm.WhereClause{{Key: "rating", Operator: sm.OpGreaterOrEqual, Value: 1700}},
		Order: "rating",
	}))
	defer sub.Cancel()

	assert.Equal(t, []string{"p2", "p4"}, refs(next(t, ch)))

	require.True(t, store.Update(ctx, map[string]any{"rating": 1750}, "p3").OK())
	assert.Equal(t, []string{"p2", "p3", "p4"}, refs(next(t, ch)))

	res := store.StreamWhere(ctx, fn, sm.WhereParams{Where: []sm.WhereClause{{Key: "", Operator: sm.OpEqual}}})
	assert.False(t, res.OK())
	assert.True(t, errors.IsInvalidFilter(res.Err))
}

func TestStreamCancel(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	store := newStore(t, backend)

	fn, ch := collect()
	sub := subscriptionOf(t, store.Stream(ctx, fn, ""))
	next(t, ch)

	sub.Cancel()
	sub.Cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
	assert.Equal(t, 0, backend.Watchers())

	require.True(t, store.Save(ctx, map[string]any{"n": 1}, "a").OK())
	select {
	case r := <-ch:
		t.Fatalf("delivery after cancel: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newStore(t, mock.New())

	fn, ch := collect()
	sub := subscriptionOf(t, store.Stream(ctx, fn, ""))
	next(t, ch)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop on context cancellation")
	}
}

func TestStreamRegistrationFailure(t *testing.T) {
	backend := mock.New().WithWatchError(fmt.Errorf("streams disabled"))
	store := newStore(t, backend)

	var calls int32
	res := store.Stream(context.Background(), func(sm.Result) { atomic.AddInt32(&calls, 1) }, "")
	assert.False(t, res.OK())
	assert.Equal(t, docstore.MsgStreamFailed, res.Message)
	assert.ErrorIs(t, res.Err, errors.ErrSubscription)
	assert.Nil(t, res.Data)

	res = store.Stream(context.Background(), nil, "")
	assert.False(t, res.OK())
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestStreamCoalescesBursts(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	store := newStore(t, backend)

	started := make(chan struct{})
	release := make(chan struct{})
	var deliveries int32
	res := store.Stream(ctx, func(sm.Result) {
		if atomic.AddInt32(&deliveries, 1) == 1 {
			close(started)
			<-release
		}
	}, "")
	sub := subscriptionOf(t, res)
	defer sub.Cancel()
	<-started

	for i := 0; i < 20; i++ {
		require.True(t, store.Save(ctx, map[string]any{"n": i}, fmt.Sprintf("doc-%02d", i)).OK())
	}
	close(release)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&deliveries) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&deliveries), "a burst during a delivery coalesces into one more")
}

func TestStreamSkipsFailedReads(t *testing.T) {
	ctx := context.Background()
	backend := mock.New()
	store := newStore(t, backend)

	fn, ch := collect()
	sub := subscriptionOf(t, store.Stream(ctx, fn, ""))
	defer sub.Cancel()
	next(t, ch)

	backend.WithQueryError(fmt.Errorf("boom"))
	require.True(t, store.Save(ctx, map[string]any{"n": 1}, "a").OK())
	select {
	case r := <-ch:
		t.Fatalf("unexpected delivery: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	backend.WithQueryError(nil)
	require.True(t, store.Save(ctx, map[string]any{"n": 2}, "b").OK())
	assert.Equal(t, []string{"a", "b"}, refs(next(t, ch)))
}
