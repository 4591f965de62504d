/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"sort"
	"strings"

	"github.com/suparena/storemodel/filter"
	"github.com/suparena/storemodel/storagemodels"
)

// Arrange applies ordering, cursor and limit of q to records that already
// passed q.Filter. Backends without native ordering use it client side.
func Arrange(records []Record, q Query) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.OrderBy != "" {
			if _, ok := filter.Lookup(r.Data, q.OrderBy); !ok {
				continue
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return compareRecords(out[i], out[j], q.OrderBy) < 0
	})

	if q.StartAfter != nil {
		cursor := *q.StartAfter
		start := sort.Search(len(out), func(i int) bool {
			return compareRecords(out[i], cursor, q.OrderBy) > 0
		})
		out = out[start:]
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func compareRecords(a, b Record, orderBy string) int {
	if orderBy != "" {
		av, _ := filter.Lookup(a.Data, orderBy)
		bv, _ := filter.Lookup(b.Data, orderBy)
		if c := filter.Compare(filter.Normalize(av), filter.Normalize(bv)); c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID, b.ID)
}

// StripReference returns a copy of data without the derived reference field.
func StripReference(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if k == storagemodels.ReferenceField {
			continue
		}
		out[k] = v
	}
	return out
}

// WithReference returns a copy of the record's data with the reference field
// set to its identifier.
func WithReference(r Record) map[string]any {
	out := make(map[string]any, len(r.Data)+1)
	for k, v := range r.Data {
		out[k] = v
	}
	out[storagemodels.ReferenceField] = r.ID
	return out
}

// SetPath assigns v at a dotted key path inside doc, creating intermediate
// objects as needed. Used for partial updates, where "a.b" addresses the
// nested field b of a.
func SetPath(doc map[string]any, key string, v any) {
	parts := strings.Split(key, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
