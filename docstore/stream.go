/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/filter"
	sm "github.com/suparena/storemodel/storagemodels"
)

// Stream subscribes fn to changes. With an id, fn receives Find shaped
// results for that document; without one it receives FindAll shaped results
// for the whole collection. fn is called once on registration and again after
// every change, always from the same goroutine. Changes arriving while a
// delivery is in progress are coalesced into one further delivery.
//
// The success result carries the storagemodels.Subscription handle as Data.
// The subscription lasts until it is cancelled or ctx is done.
func (d *DocumentStore) Stream(ctx context.Context, fn sm.StreamFunc, id string) (res sm.Result) {
	defer d.guard("stream", MsgStreamFailed, &res)

	read := func(ctx context.Context) sm.Result {
		if id != "" {
			return d.Find(ctx, id)
		}
		return d.FindAll(ctx)
	}
	return d.subscribe(ctx, "stream", id, fn, read)
}

// StreamWhere subscribes fn to the result list of an AND-only query. The
// cursor document is resolved once at registration.
func (d *DocumentStore) StreamWhere(ctx context.Context, fn sm.StreamFunc, params sm.WhereParams) (res sm.Result) {
	defer d.guard("streamWhere", MsgStreamFailed, &res)

	node, err := filter.Where(params.Where)
	if err != nil {
		return d.fail("streamWhere", MsgStreamFailed, err)
	}
	var cursor *datastore.Record
	if params.Offset != "" {
		cursor, err = d.backend.Get(ctx, d.collection, params.Offset)
		if err != nil {
			return d.fail("streamWhere", MsgStreamFailed, err)
		}
	}
	q := datastore.Query{Filter: node, OrderBy: params.Order, StartAfter: cursor, Limit: params.Limit}

	read := func(ctx context.Context) sm.Result {
		recs, err := d.backend.Query(ctx, d.collection, q)
		if err != nil {
			return sm.Failure(MsgQueryFailed, errors.Fault(err))
		}
		return listResult(recs, MsgListFound, MsgNoMatches)
	}
	return d.subscribe(ctx, "streamWhere", "", fn, read)
}

func (d *DocumentStore) subscribe(ctx context.Context, op, id string, fn sm.StreamFunc, read func(context.Context) sm.Result) sm.Result {
	if fn == nil {
		return d.fail(op, MsgStreamFailed, errors.NewValidationError("callback", "must not be nil"))
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		cancel: cancel,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: d.logger.With("op", op),
	}

	watch, err := d.backend.Watch(subCtx, d.collection, id, func(datastore.ChangeEvent) { s.notify() })
	if err != nil {
		cancel()
		return d.fail(op, MsgStreamFailed, fmt.Errorf("%w: %w", errors.ErrSubscription, err))
	}
	s.watch = watch

	s.notify()
	go s.run(subCtx, read, fn)

	d.logger.Debug("subscription started", "op", op, "subscription", watch.ID(), "id", id)
	return sm.Success(MsgStreaming, sm.Subscription(s))
}

// subscription turns backend change callbacks into serialized deliveries.
type subscription struct {
	watch  sm.Subscription
	cancel context.CancelFunc
	signal chan struct{}
	done   chan struct{}
	logger *slog.Logger

	cancelled atomic.Bool
}

func (s *subscription) ID() string            { return s.watch.ID() }
func (s *subscription) Done() <-chan struct{} { return s.done }

// Cancel stops the subscription. No delivery starts after it returns.
func (s *subscription) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// notify never blocks; a pending signal already covers the new change.
func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context, read func(context.Context) sm.Result, fn sm.StreamFunc) {
	defer close(s.done)
	defer s.watch.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.watch.Done():
			return
		case <-s.signal:
		}

		res := read(ctx)
		if !res.OK() {
			if ctx.Err() == nil {
				s.logger.Warn("stream read failed, delivery skipped", "error", res.Err)
			}
			continue
		}
		s.deliver(res, fn)
	}
}

// deliver may be cancelled from inside fn.
func (s *subscription) deliver(res sm.Result, fn sm.StreamFunc) {
	if s.cancelled.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("stream callback panicked", "panic", r)
		}
	}()
	fn(res)
}
