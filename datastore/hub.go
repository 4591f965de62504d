/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/suparena/storemodel/storagemodels"
)

// Hub fans change events out to in-process watchers. Backends that own all
// writes to their data (memory, SQLite) publish into a Hub after each write.
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]*watcher
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{watchers: make(map[string]*watcher)}
}

type watcher struct {
	hub        *Hub
	id         string
	collection string
	docID      string
	fn         ChangeFunc
	once       sync.Once
	done       chan struct{}
}

func (w *watcher) ID() string            { return w.id }
func (w *watcher) Done() <-chan struct{} { return w.done }

func (w *watcher) Cancel() {
	w.once.Do(func() {
		w.hub.mu.Lock()
		delete(w.hub.watchers, w.id)
		w.hub.mu.Unlock()
		close(w.done)
	})
}

// Subscribe registers fn for changes to collection, or to one document when
// docID is set. The subscription ends on Cancel or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, collection, docID string, fn ChangeFunc) storagemodels.Subscription {
	w := &watcher{
		hub:        h,
		id:         uuid.NewString(),
		collection: collection,
		docID:      docID,
		fn:         fn,
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	h.watchers[w.id] = w
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.Cancel()
		case <-w.done:
		}
	}()
	return w
}

// Publish delivers ev to every matching watcher.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.RLock()
	matched := make([]*watcher, 0, len(h.watchers))
	for _, w := range h.watchers {
		if w.collection != ev.Collection {
			continue
		}
		if w.docID != "" && w.docID != ev.ID {
			continue
		}
		matched = append(matched, w)
	}
	h.mu.RUnlock()

	for _, w := range matched {
		select {
		case <-w.done:
		default:
			w.fn(ev)
		}
	}
}

// Len returns the number of active watchers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// CloseAll cancels every watcher.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*watcher, 0, len(h.watchers))
	for _, w := range h.watchers {
		all = append(all, w)
	}
	h.mu.RUnlock()

	for _, w := range all {
		w.Cancel()
	}
}
