/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// fakeDynamo stores items by key and records the requests it receives. It
// does not evaluate filter expressions: Query returns every item whose PK
// equals one of the request's string values.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	pageSize    int
	streamArn   string
	updateErr   error
	transactErr error

	queries   []*sdk.QueryInput
	updates   []*sdk.UpdateItemInput
	transacts []*sdk.TransactWriteItemsInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue), pageSize: 2}
}

func s(av types.AttributeValue) string {
	if v, ok := av.(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(key map[string]types.AttributeValue) string {
	return s(key["PK"]) + "|" + s(key["SK"])
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sdk.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := itemKey(in.Item)
	if _, exists := f.items[k]; exists && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[k] = in.Item
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, _ ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if _, exists := f.items[itemKey(in.Key)]; !exists {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
	}
	return &sdk.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemKey(in.Key))
	return &sdk.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)

	partitions := map[string]bool{}
	for _, v := range in.ExpressionAttributeValues {
		partitions[s(v)] = true
	}
	var keys []string
	for k, item := range f.items {
		if partitions[s(item["PK"])] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := itemKey(in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &sdk.QueryOutput{Count: int32(end - start)}
	if in.Select != types.SelectCount {
		for _, k := range keys[start:end] {
			out.Items = append(out.Items, f.items[k])
		}
	}
	if end < len(keys) {
		last := f.items[keys[end-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *sdk.TransactWriteItemsInput, _ ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts = append(f.transacts, in)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			f.items[itemKey(it.Put.Item)] = it.Put.Item
		case it.Delete != nil:
			delete(f.items, itemKey(it.Delete.Key))
		}
	}
	return &sdk.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *sdk.DescribeTableInput, _ ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	desc := &types.TableDescription{TableName: in.TableName}
	if f.streamArn != "" {
		desc.LatestStreamArn = aws.String(f.streamArn)
	}
	return &sdk.DescribeTableOutput{Table: desc}, nil
}

// fakeStreams serves one shard. GetRecords pops queued responses and then
// returns empty batches.
type fakeStreams struct {
	mu        sync.Mutex
	responses []getRecordsResponse
	iterators []streamtypes.ShardIteratorType
}

type getRecordsResponse struct {
	records []streamtypes.Record
	err     error
}

func (f *fakeStreams) queue(r getRecordsResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, r)
}

func (f *fakeStreams) iteratorTypes() []streamtypes.ShardIteratorType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]streamtypes.ShardIteratorType(nil), f.iterators...)
}

func (f *fakeStreams) DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	return &dynamodbstreams.DescribeStreamOutput{StreamDescription: &streamtypes.StreamDescription{
		StreamArn: in.StreamArn,
		Shards:    []streamtypes.Shard{{ShardId: aws.String("shard-0001")}},
	}}, nil
}

func (f *fakeStreams) GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iterators = append(f.iterators, in.ShardIteratorType)
	return &dynamodbstreams.GetShardIteratorOutput{ShardIterator: aws.String("iterator")}, nil
}

func (f *fakeStreams) GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := aws.String("iterator")
	if len(f.responses) == 0 {
		return &dynamodbstreams.GetRecordsOutput{NextShardIterator: next}, nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &dynamodbstreams.GetRecordsOutput{Records: r.records, NextShardIterator: next}, nil
}

func streamRecord(op streamtypes.OperationType, pk, sk, seq string) streamtypes.Record {
	return streamtypes.Record{
		EventName: op,
		Dynamodb: &streamtypes.StreamRecord{
			Keys: map[string]streamtypes.AttributeValue{
				"PK": &streamtypes.AttributeValueMemberS{Value: pk},
				"SK": &streamtypes.AttributeValueMemberS{Value: sk},
			},
			SequenceNumber: aws.String(seq),
		},
	}
}
