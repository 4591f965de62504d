/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/xid"

	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

// MaxTransactItems is the DynamoDB limit of items in one transaction.
const MaxTransactItems = 100

// CreateBatch stores docs under new ids in one transaction.
func (b *Backend) CreateBatch(ctx context.Context, collection string, docs []map[string]any) ([]string, error) {
	if err := checkBatchSize(len(docs)); err != nil {
		return nil, err
	}
	l := layoutOf(collection)
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build put condition: %w", err)
	}

	ids := make([]string, len(docs))
	items := make([]types.TransactWriteItem, len(docs))
	for i, doc := range docs {
		ids[i] = xid.New().String()
		item, err := l.item(ids[i], doc)
		if err != nil {
			return nil, err
		}
		items[i] = types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(b.table),
			Item:                     item,
			ConditionExpression:      cond.Condition(),
			ExpressionAttributeNames: cond.Names(),
		}}
	}

	if err := b.transact(ctx, items, func(i int) error {
		return errors.NewConditionFailedError("put", "attribute_not_exists(PK)")
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateBatch merges every update in one transaction. A missing target
// cancels the whole transaction.
func (b *Backend) UpdateBatch(ctx context.Context, collection string, updates []sm.BatchUpdate) error {
	if err := checkBatchSize(len(updates)); err != nil {
		return err
	}
	l := layoutOf(collection)
	seen := make(map[string]bool, len(updates))
	items := make([]types.TransactWriteItem, len(updates))
	for i, u := range updates {
		if seen[u.ID] {
			return errors.NewValidationError("id", fmt.Sprintf("duplicate id %q in batch", u.ID))
		}
		seen[u.ID] = true

		if len(u.Data) == 0 {
			cond, err := expression.NewBuilder().
				WithCondition(expression.AttributeExists(expression.Name("PK"))).
				Build()
			if err != nil {
				return fmt.Errorf("failed to build condition check: %w", err)
			}
			items[i] = types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
				TableName:                aws.String(b.table),
				Key:                      l.key(u.ID),
				ConditionExpression:      cond.Condition(),
				ExpressionAttributeNames: cond.Names(),
			}}
			continue
		}

		expr, err := l.buildUpdate(u.ID, u.Data)
		if err != nil {
			return fmt.Errorf("failed to build update expression: %w", err)
		}
		items[i] = types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(b.table),
			Key:                       l.key(u.ID),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}}
	}

	return b.transact(ctx, items, func(i int) error {
		return errors.NewNotFoundError(collection, updates[i].ID)
	})
}

// DeleteBatch removes ids in one transaction.
func (b *Backend) DeleteBatch(ctx context.Context, collection string, ids []string) error {
	if err := checkBatchSize(len(ids)); err != nil {
		return err
	}
	l := layoutOf(collection)
	seen := make(map[string]bool, len(ids))
	items := make([]types.TransactWriteItem, len(ids))
	for i, id := range ids {
		if seen[id] {
			return errors.NewValidationError("id", fmt.Sprintf("duplicate id %q in batch", id))
		}
		seen[id] = true
		items[i] = types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(b.table),
			Key:       l.key(id),
		}}
	}
	return b.transact(ctx, items, nil)
}

func checkBatchSize(n int) error {
	if n > MaxTransactItems {
		return errors.NewValidationError("batch", fmt.Sprintf("at most %d documents per batch, got %d", MaxTransactItems, n))
	}
	return nil
}

// transact runs a write transaction. onConditionFailed maps the index of
// the first item whose condition failed to an error.
func (b *Backend) transact(ctx context.Context, items []types.TransactWriteItem, onConditionFailed func(int) error) error {
	if len(items) == 0 {
		return nil
	}
	_, err := b.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if stderrors.As(err, &tce) && onConditionFailed != nil {
		for i, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return onConditionFailed(i)
			}
		}
	}
	return fmt.Errorf("TransactWriteItems failed: %w", err)
}
