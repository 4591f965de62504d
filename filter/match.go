/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package filter

import (
	"reflect"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/suparena/storemodel/storagemodels"
)

// Match evaluates n against doc. A nil node matches everything.
func Match(n Node, doc map[string]any) bool {
	switch t := n.(type) {
	case nil:
		return true
	case Predicate:
		return matchPredicate(t, doc)
	case And:
		for _, c := range t {
			if !Match(c, doc) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range t {
			if Match(c, doc) {
				return true
			}
		}
		return false
	}
	return false
}

func matchPredicate(p Predicate, doc map[string]any) bool {
	v, ok := Lookup(doc, p.Key)
	if !ok {
		return false
	}

	switch p.Op {
	case storagemodels.OpEqual:
		return Equal(v, p.Value)
	case storagemodels.OpNotEqual:
		return v != nil && !Equal(v, p.Value)
	case storagemodels.OpLess:
		return orderable(v, p.Value) && Compare(v, p.Value) < 0
	case storagemodels.OpLessOrEqual:
		return orderable(v, p.Value) && Compare(v, p.Value) <= 0
	case storagemodels.OpGreater:
		return orderable(v, p.Value) && Compare(v, p.Value) > 0
	case storagemodels.OpGreaterOrEqual:
		return orderable(v, p.Value) && Compare(v, p.Value) >= 0
	case storagemodels.OpArrayContains:
		arr, isArr := v.([]any)
		return isArr && contains(arr, p.Value)
	case storagemodels.OpIn:
		return contains(p.Value.([]any), v)
	case storagemodels.OpNotIn:
		return v != nil && !contains(p.Value.([]any), v)
	case storagemodels.OpArrayContainsAny:
		arr, isArr := v.([]any)
		if !isArr {
			return false
		}
		for _, want := range p.Value.([]any) {
			if contains(arr, want) {
				return true
			}
		}
	}
	return false
}

func contains(list []any, v any) bool {
	for _, e := range list {
		if Equal(e, v) {
			return true
		}
	}
	return false
}

// Lookup resolves a dotted key path inside doc. Every dot descends into a
// nested map; a top-level key containing a dot is never matched.
func Lookup(doc map[string]any, key string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// rank orders values of different types: null, bool, number, string, list, map.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case []any:
		return 4
	case map[string]any:
		return 5
	}
	return 6
}

func orderable(a, b any) bool {
	r := rank(a)
	return r == rank(b) && r > 0 && r < 5
}

// Compare orders two normalized values, first by type rank then by value.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case []any:
		y := b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := Compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(x) < len(y):
			return -1
		case len(x) > len(y):
			return 1
		}
	}
	return 0
}

// Equal reports whether two normalized values are the same.
func Equal(a, b any) bool {
	if rank(a) != rank(b) {
		return false
	}
	switch a.(type) {
	case bool, float64, string, nil:
		return Compare(a, b) == 0
	}
	return reflect.DeepEqual(a, b)
}

// Normalize converts v to the shapes documents have after a JSON round trip:
// numbers become float64, lists []any, objects map[string]any and times
// RFC 3339 strings.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = Normalize(iter.Value().Interface())
			}
			return out
		}
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
