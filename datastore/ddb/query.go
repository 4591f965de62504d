/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/filter"
)

// queryInput builds the Query over a collection's partition, or over a GSI
// when one is usable for f.
func (b *Backend) queryInput(l keyLayout, f filter.Node) (*sdk.QueryInput, error) {
	fe := newFilterExpression()
	filterExpr, err := fe.render(f)
	if err != nil {
		return nil, err
	}

	input := &sdk.QueryInput{TableName: aws.String(b.table)}
	keyCond := expression.Key("PK").Equal(expression.Value(l.partition()))

	if gsi, value, ok := b.indexFor(l, f); ok {
		keyCond = expression.Key(gsi.PartitionKeyName).Equal(expression.Value(value))
		input.IndexName = aws.String(gsi.IndexName)
		// the index spans collections
		partition := fmt.Sprintf("%s = %s", fe.path("PK"), fe.mustValue(l.partition()))
		if filterExpr == "" {
			filterExpr = partition
		} else {
			filterExpr = partition + " AND (" + filterExpr + ")"
		}
		b.logger.Debug("querying through GSI", "index", gsi.IndexName, "collection", l.collection)
	} else {
		input.ConsistentRead = aws.Bool(true)
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}
	input.KeyConditionExpression = expr.KeyCondition()
	input.ExpressionAttributeNames, input.ExpressionAttributeValues = fe.merge(expr.Names(), expr.Values())
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}
	return input, nil
}

// Query lists the documents of a collection matching q. DynamoDB evaluates
// the filter; ordering, cursor and limit are applied after all pages are read.
func (b *Backend) Query(ctx context.Context, collection string, q datastore.Query) ([]datastore.Record, error) {
	l := layoutOf(collection)
	input, err := b.queryInput(l, q.Filter)
	if err != nil {
		return nil, err
	}

	var records []datastore.Record
	err = b.paginate(ctx, input, func(items []map[string]types.AttributeValue) error {
		for _, item := range items {
			rec, err := l.record(item)
			if err != nil {
				return err
			}
			// FilterExpression narrows the read; Match settles mixed-type edge cases
			if filter.Match(q.Filter, rec.Data) {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return datastore.Arrange(records, q), nil
}

// Count returns the number of matching documents using Select COUNT.
func (b *Backend) Count(ctx context.Context, collection string, f filter.Node) (int64, error) {
	input, err := b.queryInput(layoutOf(collection), f)
	if err != nil {
		return 0, err
	}
	input.Select = types.SelectCount

	var total int64
	pages := sdk.NewQueryPaginator(b.client, input)
	for pages.HasMorePages() {
		out, err := b.nextPage(ctx, pages)
		if err != nil {
			return 0, err
		}
		total += int64(out.Count)
	}
	return total, nil
}

func (b *Backend) paginate(ctx context.Context, input *sdk.QueryInput, fn func([]map[string]types.AttributeValue) error) error {
	pages := sdk.NewQueryPaginator(b.client, input)
	for pages.HasMorePages() {
		out, err := b.nextPage(ctx, pages)
		if err != nil {
			return err
		}
		if err := fn(out.Items); err != nil {
			return err
		}
	}
	return nil
}

// nextPage fetches a page, retrying throttling and server errors.
func (b *Backend) nextPage(ctx context.Context, pages *sdk.QueryPaginator) (*sdk.QueryOutput, error) {
	var lastErr error
	for attempt := 0; attempt <= b.streamOpts.MaxRetries; attempt++ {
		out, err := pages.NextPage(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		if attempt < b.streamOpts.MaxRetries {
			if err := sleep(ctx, time.Duration(attempt+1)*b.streamOpts.RetryBackoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("query failed after %d retries: %w", b.streamOpts.MaxRetries, lastErr)
}
