/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/filter"
	"github.com/suparena/storemodel/registry"
	sm "github.com/suparena/storemodel/storagemodels"
)

const testTable = "storemodel-test"

func newTestBackend(t *testing.T, opts ...Option) (*Backend, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	b := New(fake, nil, testTable, opts...)
	t.Cleanup(func() { _ = b.Close() })
	return b, fake
}

func registerMatches(t *testing.T) {
	t.Helper()
	require.NoError(t, registry.RegisterIndexMap("matches", map[string]string{
		"PK":  "LEAGUE#{collection}",
		"SK":  "MATCH#{id}#V1",
		"PK1": "EMAIL#{email}",
		"SK1": "{id}",
	}))
	t.Cleanup(func() { registry.UnregisterIndexMap("matches") })
}

func TestKeyLayoutDefault(t *testing.T) {
	l := layoutOf("players")
	key := l.key("p1")
	assert.Equal(t, "COLL#players", s(key["PK"]))
	assert.Equal(t, "DOC#p1", s(key["SK"]))

	id, ok := l.idFromSort("DOC#p1")
	assert.True(t, ok)
	assert.Equal(t, "p1", id)

	_, ok = l.idFromSort("OTHER#p1")
	assert.False(t, ok)
}

func TestKeyLayoutDerivedAttributes(t *testing.T) {
	registerMatches(t)
	l := layoutOf("matches")

	item, err := l.item("m1", map[string]any{"email": "a@example.com", "score": 3, "PK": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "LEAGUE#matches", s(item["PK"]))
	assert.Equal(t, "MATCH#m1#V1", s(item["SK"]))
	assert.Equal(t, "EMAIL#a@example.com", s(item["PK1"]))
	assert.Equal(t, "m1", s(item["SK1"]))

	sparse, err := l.item("m2", map[string]any{"score": 1})
	require.NoError(t, err)
	assert.NotContains(t, sparse, "PK1")

	rec, err := l.record(item)
	require.NoError(t, err)
	assert.Equal(t, "m1", rec.ID)
	assert.Equal(t, map[string]any{"email": "a@example.com", "score": 3.0}, rec.Data)
}

func TestFilterExpressionRender(t *testing.T) {
	pred := func(key string, op sm.Operator, v any) filter.Predicate {
		p, err := filter.NewPredicate(sm.WhereClause{Key: key, Operator: op, Value: v})
		require.NoError(t, err)
		return p
	}

	tests := []struct {
		name string
		node filter.Node
		want string
	}{
		{"nil", nil, ""},
		{"comparison", pred("rating", sm.OpGreaterOrEqual, 1700), "#f0 >= :v0"},
		{"nested path", pred("stats.wins", sm.OpEqual, 3), "#f0.#f1 = :v0"},
		{"not equal", pred("a", sm.OpNotEqual, 1),
			"attribute_exists(#f0) AND NOT attribute_type(#f0, :v1) AND #f0 <> :v0"},
		{"array contains", pred("tags", sm.OpArrayContains, "x"),
			"attribute_type(#f0, :v1) AND contains(#f0, :v0)"},
		{"in", pred("a", sm.OpIn, []any{1, 2}), "#f0 IN (:v0, :v1)"},
		{"not in", pred("a", sm.OpNotIn, []any{1}),
			"attribute_exists(#f0) AND NOT attribute_type(#f0, :v1) AND NOT (#f0 IN (:v0))"},
		{"array contains any", pred("tags", sm.OpArrayContainsAny, []any{"x", "y"}),
			"attribute_type(#f0, :v2) AND (contains(#f0, :v0) OR contains(#f0, :v1))"},
		{"and or", filter.And{pred("a", sm.OpEqual, 1), filter.Or{pred("b", sm.OpLess, 2), pred("a", sm.OpGreater, 5)}},
			"(#f0 = :v0) AND ((#f1 < :v1) OR (#f0 > :v2))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := newFilterExpression()
			got, err := fe.render(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			for ph := range fe.values {
				assert.Contains(t, got, ph)
			}
		})
	}

	many := make([]any, 101)
	for i := range many {
		many[i] = i
	}
	_, err := newFilterExpression().render(pred("a", sm.OpIn, many))
	assert.True(t, errors.IsInvalidFilter(err))
}

func TestBackendCRUD(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	require.NoError(t, b.Set(ctx, "players", "p1", map[string]any{"name": "Ana", "rating": 1500}))
	rec, err := b.Get(ctx, "players", "p1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "p1", rec.ID)
	assert.Equal(t, map[string]any{"name": "Ana", "rating": 1500.0}, rec.Data)

	id, err := b.Create(ctx, "players", map[string]any{"name": "Bo"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	created, err := b.Get(ctx, "players", id)
	require.NoError(t, err)
	require.NotNil(t, created)

	missing, err := b.Get(ctx, "players", "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, b.Delete(ctx, "players", "p1"))
	require.NoError(t, b.Delete(ctx, "players", "p1"))
	gone, err := b.Get(ctx, "players", "p1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCreateConflict(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)
	require.NoError(t, b.Set(ctx, "players", "p1", map[string]any{"n": 1}))

	err := b.put(ctx, "players", "p1", map[string]any{"n": 2}, true)
	assert.True(t, errors.IsConditionFailed(err))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestBackend(t)
	require.NoError(t, b.Set(ctx, "players", "p1", map[string]any{"n": 1}))

	require.NoError(t, b.Update(ctx, "players", "p1", map[string]any{"n": 2, "stats.wins": 1}))
	require.Len(t, fake.updates, 1)
	in := fake.updates[0]
	assert.True(t, strings.HasPrefix(aws.ToString(in.UpdateExpression), "SET "))
	assert.Contains(t, aws.ToString(in.ConditionExpression), "attribute_exists")
	assert.Equal(t, "DOC#p1", s(in.Key["SK"]))

	err := b.Update(ctx, "players", "ghost", map[string]any{"n": 2})
	assert.True(t, errors.IsNotFound(err))

	err = b.Update(ctx, "players", "ghost", nil)
	assert.True(t, errors.IsNotFound(err))
	assert.NoError(t, b.Update(ctx, "players", "p1", nil))

	fake.updateErr = fmt.Errorf("network down")
	err = b.Update(ctx, "players", "p1", map[string]any{"n": 3})
	require.Error(t, err)
	assert.False(t, errors.IsNotFound(err))
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestBackend(t)
	require.NoError(t, b.Set(ctx, "players", "p1", map[string]any{"score": 10}))

	require.NoError(t, b.Increment(ctx, "players", "p1", "score", -5))
	require.Len(t, fake.updates, 1)
	assert.True(t, strings.HasPrefix(aws.ToString(fake.updates[0].UpdateExpression), "ADD "))

	assert.True(t, errors.IsNotFound(b.Increment(ctx, "players", "ghost", "score", 1)))
	assert.True(t, errors.IsValidationError(b.Increment(ctx, "players", "p1", "SK", 1)))
}

func seedPlayers(t *testing.T, b *Backend) {
	t.Helper()
	ctx := context.Background()
	for i, rating := range []int{1500, 1800, 1600, 1700, 1400} {
		id := fmt.Sprintf("p%d", i+1)
		require.NoError(t, b.Set(ctx, "players", id, map[string]any{"rating": rating, "team": []any{"red"}}))
	}
	require.NoError(t, b.Set(ctx, "coaches", "c1", map[string]any{"rating": 2000}))
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestBackend(t)
	seedPlayers(t, b)

	all, err := b.Query(ctx, "players", datastore.Query{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "p1", all[0].ID)

	node, err := filter.Where([]sm.WhereClause{{Key: "rating", Operator: sm.OpGreaterOrEqual, Value: 1600}})
	require.NoError(t, err)
	cursor := &datastore.Record{ID: "p3", Data: map[string]any{"rating": 1600.0}}
	recs, err := b.Query(ctx, "players", datastore.Query{Filter: node, OrderBy: "rating", StartAfter: cursor, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "p4", recs[0].ID)

	last := fake.queries[len(fake.queries)-1]
	assert.Equal(t, "#f0 >= :v0", aws.ToString(last.FilterExpression))
	assert.True(t, aws.ToBool(last.ConsistentRead))
	assert.Nil(t, last.IndexName)
	assert.Contains(t, last.ExpressionAttributeNames, "#f0")
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)
	seedPlayers(t, b)

	n, err := b.Count(ctx, "players", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCountRequiresListForArrayOperators(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestBackend(t)
	seedPlayers(t, b)

	for _, clause := range []sm.WhereClause{
		{Key: "team", Operator: sm.OpArrayContains, Value: "e"},
		{Key: "team", Operator: sm.OpArrayContainsAny, Value: []any{"e"}},
	} {
		node, err := filter.Where([]sm.WhereClause{clause})
		require.NoError(t, err)
		_, err = b.Count(ctx, "players", node)
		require.NoError(t, err)

		// Select COUNT is never rechecked client side, so the server filter
		// must reject string attributes where contains() is a substring test
		in := fake.queries[len(fake.queries)-1]
		assert.Equal(t, types.SelectCount, in.Select)
		expr := aws.ToString(in.FilterExpression)
		require.True(t, strings.HasPrefix(expr, "attribute_type(#f0, "), expr)
		guard := strings.TrimSuffix(strings.Fields(expr)[1], ")")
		assert.Equal(t, &types.AttributeValueMemberS{Value: "L"}, in.ExpressionAttributeValues[guard])
	}
}

func TestQueryUsesGSI(t *testing.T) {
	registerMatches(t)
	ctx := context.Background()
	gsi, ok := GetGSIConfig("GSI1")
	require.True(t, ok)
	b, fake := newTestBackend(t, WithGSI(gsi))

	require.NoError(t, b.Set(ctx, "matches", "m1", map[string]any{"email": "a@example.com"}))
	require.NoError(t, b.Set(ctx, "matches", "m2", map[string]any{"email": "b@example.com"}))

	node, err := filter.Where([]sm.WhereClause{{Key: "email", Operator: sm.OpEqual, Value: "a@example.com"}})
	require.NoError(t, err)
	recs, err := b.Query(ctx, "matches", datastore.Query{Filter: node})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "m1", recs[0].ID)

	in := fake.queries[len(fake.queries)-1]
	assert.Equal(t, "GSI1", aws.ToString(in.IndexName))
	assert.Nil(t, in.ConsistentRead)
	assert.True(t, strings.HasPrefix(aws.ToString(in.FilterExpression), "#f1 = :v1 AND ("))

	node, err = filter.Where([]sm.WhereClause{{Key: "score", Operator: sm.OpEqual, Value: 1}})
	require.NoError(t, err)
	_, err = b.Query(ctx, "matches", datastore.Query{Filter: node})
	require.NoError(t, err)
	assert.Nil(t, fake.queries[len(fake.queries)-1].IndexName)
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestBackend(t)

	ids, err := b.CreateBatch(ctx, "players", []map[string]any{{"n": 1}, {"n": 2}})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Len(t, fake.transacts, 1)
	assert.Len(t, fake.transacts[0].TransactItems, 2)
	for _, id := range ids {
		rec, err := b.Get(ctx, "players", id)
		require.NoError(t, err)
		assert.NotNil(t, rec)
	}

	require.NoError(t, b.UpdateBatch(ctx, "players", []sm.BatchUpdate{
		{ID: ids[0], Data: map[string]any{"n": 10}},
		{ID: ids[1]},
	}))
	items := fake.transacts[1].TransactItems
	assert.NotNil(t, items[0].Update)
	assert.NotNil(t, items[1].ConditionCheck)

	fake.transactErr = &types.TransactionCanceledException{
		Message: aws.String("cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}
	err = b.UpdateBatch(ctx, "players", []sm.BatchUpdate{
		{ID: ids[0], Data: map[string]any{"n": 11}},
		{ID: "ghost", Data: map[string]any{"n": 1}},
	})
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "ghost")
	fake.transactErr = nil

	err = b.DeleteBatch(ctx, "players", []string{ids[0], ids[0]})
	assert.True(t, errors.IsValidationError(err))

	require.NoError(t, b.DeleteBatch(ctx, "players", ids))
	rec, err := b.Get(ctx, "players", ids[0])
	require.NoError(t, err)
	assert.Nil(t, rec)

	tooMany := make([]string, MaxTransactItems+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("id-%d", i)
	}
	assert.True(t, errors.IsValidationError(b.DeleteBatch(ctx, "players", tooMany)))
}

func TestNewFromConfigRequiresTable(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{Region: "us-east-1"})
	assert.True(t, errors.IsValidationError(err))
}
