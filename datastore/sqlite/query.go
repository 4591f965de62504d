/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/filter"
	sm "github.com/suparena/storemodel/storagemodels"
)

// errInMemory marks filters the SQL translation cannot express exactly,
// such as equality on lists. Those queries are evaluated in memory.
var errInMemory = stderrors.New("filter requires in-memory evaluation")

// jsonPath returns the JSON1 path of a dotted key.
func jsonPath(key string) (string, bool) {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(key, ".") {
		if part == "" || strings.ContainsAny(part, `"\`) {
			return "", false
		}
		b.WriteString(`."`)
		b.WriteString(part)
		b.WriteString(`"`)
	}
	return b.String(), true
}

// column is a JSON value in SQL: its json_type and its SQL value.
type column struct {
	typ, val string
	args     []any
}

func field(path string) column {
	return column{typ: "json_type(data, ?)", val: "json_extract(data, ?)", args: []any{path}}
}

var element = column{typ: "je.type", val: "je.value"}

// compiler renders a filter tree as a WHERE fragment. Helpers append their
// arguments as they return placeholders, so fragments must be built in
// lexical order.
type compiler struct {
	args []any
}

func (c *compiler) typ(col column) string {
	c.args = append(c.args, col.args...)
	return col.typ
}

func (c *compiler) val(col column) string {
	c.args = append(c.args, col.args...)
	return col.val
}

func (c *compiler) bind(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			v = 1
		} else {
			v = 0
		}
	}
	c.args = append(c.args, v)
	return "?"
}

func (c *compiler) render(n filter.Node) (string, error) {
	switch t := n.(type) {
	case nil:
		return "", nil
	case filter.Predicate:
		return c.predicate(t)
	case filter.And:
		return c.join(" AND ", t)
	case filter.Or:
		return c.join(" OR ", t)
	}
	return "", errInMemory
}

func (c *compiler) join(sep string, nodes []filter.Node) (string, error) {
	parts := make([]string, 0, len(nodes))
	for _, child := range nodes {
		s, err := c.render(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	return strings.Join(parts, sep), nil
}

// eq renders type-strict equality of col with a scalar.
func (c *compiler) eq(col column, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return c.typ(col) + " = 'null'", nil
	case bool:
		if x {
			return c.typ(col) + " = 'true'", nil
		}
		return c.typ(col) + " = 'false'", nil
	case float64:
		return "(" + c.typ(col) + " IN ('integer', 'real') AND " + c.val(col) + " = " + c.bind(x) + ")", nil
	case string:
		return "(" + c.typ(col) + " = 'text' AND " + c.val(col) + " = " + c.bind(x) + ")", nil
	}
	return "", errInMemory
}

func (c *compiler) anyEq(col column, values []any) (string, error) {
	parts := make([]string, len(values))
	for i, v := range values {
		s, err := c.eq(col, v)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (c *compiler) present(col column) string {
	return c.typ(col) + " IS NOT NULL AND " + c.typ(col) + " <> 'null'"
}

var sqlComparisons = map[sm.Operator]string{
	sm.OpLess:           "<",
	sm.OpLessOrEqual:    "<=",
	sm.OpGreaterOrEqual: ">=",
	sm.OpGreater:        ">",
}

func (c *compiler) predicate(p filter.Predicate) (string, error) {
	path, ok := jsonPath(p.Key)
	if !ok {
		return "", errInMemory
	}
	col := field(path)

	if op, ok := sqlComparisons[p.Op]; ok {
		var types string
		switch p.Value.(type) {
		case nil:
			// null never orders
			return "0", nil
		case bool:
			types = "('true', 'false')"
		case float64:
			types = "('integer', 'real')"
		case string:
			types = "('text')"
		default:
			return "", errInMemory
		}
		return "(" + c.typ(col) + " IN " + types + " AND " + c.val(col) + " " + op + " " + c.bind(p.Value) + ")", nil
	}

	switch p.Op {
	case sm.OpEqual:
		return c.eq(col, p.Value)

	case sm.OpNotEqual:
		s := "(" + c.present(col) + " AND NOT "
		eq, err := c.eq(col, p.Value)
		if err != nil {
			return "", err
		}
		return s + eq + ")", nil

	case sm.OpIn:
		return c.anyEq(col, p.Value.([]any))

	case sm.OpNotIn:
		s := "(" + c.present(col) + " AND NOT "
		in, err := c.anyEq(col, p.Value.([]any))
		if err != nil {
			return "", err
		}
		return s + in + ")", nil

	case sm.OpArrayContains, sm.OpArrayContainsAny:
		values := []any{p.Value}
		if p.Op == sm.OpArrayContainsAny {
			values = p.Value.([]any)
		}
		s := "(" + c.typ(col) + " = 'array' AND EXISTS (SELECT 1 FROM json_each(data, " + c.bind(path) + ") AS je WHERE "
		in, err := c.anyEq(element, values)
		if err != nil {
			return "", err
		}
		return s + in + "))", nil
	}
	return "", errInMemory
}

const rankExpr = `CASE json_type(data, ?)
	WHEN 'null' THEN 0 WHEN 'true' THEN 1 WHEN 'false' THEN 1
	WHEN 'integer' THEN 2 WHEN 'real' THEN 2 WHEN 'text' THEN 3
	WHEN 'array' THEN 4 ELSE 5 END`

const valueExpr = `CASE WHEN json_type(data, ?) IN ('array', 'object') THEN NULL ELSE json_extract(data, ?) END`

// rankOf mirrors rankExpr for a decoded value.
func rankOf(v any) int {
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
	}
	return 5
}

// selectSQL renders the full query for q. Documents lacking the order
// field are excluded; ties and unordered queries sort by id.
func selectSQL(collection string, q datastore.Query) (string, []any, error) {
	c := &compiler{}
	var b strings.Builder
	b.WriteString("SELECT id, data FROM documents WHERE collection = ")
	b.WriteString(c.bind(collection))

	where, err := c.render(q.Filter)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" AND (" + where + ")")
	}

	var path string
	if q.OrderBy != "" {
		var ok bool
		if path, ok = jsonPath(q.OrderBy); !ok {
			return "", nil, errInMemory
		}
		b.WriteString(" AND json_type(data, " + c.bind(path) + ") IS NOT NULL")
	}

	if q.StartAfter != nil {
		if q.OrderBy == "" {
			b.WriteString(" AND id > " + c.bind(q.StartAfter.ID))
		} else {
			v, _ := filter.Lookup(q.StartAfter.Data, q.OrderBy)
			v = filter.Normalize(v)
			r := rankOf(v)
			b.WriteString(" AND (" + rankWith(c, path) + " > " + c.bind(r) + " OR (" + rankWith(c, path) + " = " + c.bind(r) + " AND ")
			switch v.(type) {
			case nil, map[string]any:
				b.WriteString("id > " + c.bind(q.StartAfter.ID))
			case []any:
				return "", nil, errInMemory
			default:
				b.WriteString("(" + valueWith(c, path) + " > " + c.bind(v) + " OR (" + valueWith(c, path) + " = " + c.bind(v) + " AND id > " + c.bind(q.StartAfter.ID) + "))")
			}
			b.WriteString("))")
		}
	}

	if q.OrderBy != "" {
		b.WriteString(" ORDER BY " + rankWith(c, path) + ", " + valueWith(c, path) + ", id")
	} else {
		b.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + c.bind(q.Limit))
	}
	return b.String(), c.args, nil
}

func rankWith(c *compiler, path string) string {
	c.args = append(c.args, path)
	return rankExpr
}

func valueWith(c *compiler, path string) string {
	c.args = append(c.args, path, path)
	return valueExpr
}

// Query lists matching documents, filtering, ordering and paginating in SQL.
func (s *Backend) Query(ctx context.Context, collection string, q datastore.Query) ([]datastore.Record, error) {
	query, args, err := selectSQL(collection, q)
	if stderrors.Is(err, errInMemory) {
		s.logger.Debug("evaluating query in memory", "collection", collection, "filter", q.Filter)
		recs, err := s.scan(ctx, collection, q.Filter)
		if err != nil {
			return nil, err
		}
		return datastore.Arrange(recs, q), nil
	}
	if err != nil {
		return nil, err
	}
	return s.records(ctx, query, args...)
}

// Count returns the number of matching documents.
func (s *Backend) Count(ctx context.Context, collection string, f filter.Node) (int64, error) {
	c := &compiler{}
	query := "SELECT COUNT(*) FROM documents WHERE collection = " + c.bind(collection)
	where, err := c.render(f)
	if stderrors.Is(err, errInMemory) {
		recs, err := s.scan(ctx, collection, f)
		return int64(len(recs)), err
	}
	if err != nil {
		return 0, err
	}
	if where != "" {
		query += " AND (" + where + ")"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	if err := s.db.QueryRowContext(ctx, query, c.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// scan reads a whole collection and filters it in memory.
func (s *Backend) scan(ctx context.Context, collection string, f filter.Node) ([]datastore.Record, error) {
	all, err := s.records(ctx, "SELECT id, data FROM documents WHERE collection = ? ORDER BY id", collection)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if filter.Match(f, r.Data) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Backend) records(ctx context.Context, query string, args ...any) ([]datastore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []datastore.Record
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			s.logger.Warn("skipping corrupt document", "id", id, "error", err)
			continue
		}
		out = append(out, datastore.Record{ID: id, Data: doc})
	}
	return out, rows.Err()
}
